// Package migrations embeds the goose SQL migrations so the binary and the
// integration tests can apply the schema without a checkout-relative path.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

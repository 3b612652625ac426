package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/aegis-sec/aegis/pkg/http"
)

// RateLimitByIP applies a fixed-window request limit keyed by client address.
// This is a cheap volumetric backstop in front of the abuse engine, not a
// replacement for it; the engine's own counters are the authoritative policy.
func RateLimitByIP(requests int, window time.Duration) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "too many requests, slow down")
		}),
	)
}

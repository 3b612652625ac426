package http_test

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-sec/aegis/internal/models"
	pkghttp "github.com/aegis-sec/aegis/pkg/http"
)

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid credentials", models.ErrInvalidCredentials, nethttp.StatusUnauthorized, "unauthorized"},
		{"account locked", models.ErrAccountLocked, nethttp.StatusForbidden, "forbidden"},
		{"address blocked", models.ErrAddressBlocked, nethttp.StatusForbidden, "forbidden"},
		{"code invalid", models.ErrCodeInvalid, nethttp.StatusBadRequest, "bad_request"},
		{"phone in use", models.ErrPhoneInUse, nethttp.StatusConflict, "conflict"},
		{"delivery failed", models.ErrDeliveryFailed, nethttp.StatusBadGateway, "delivery_failed"},
		{"not found", models.ErrNotFound, nethttp.StatusNotFound, "not_found"},
		{"conflict", models.ErrConflict, nethttp.StatusConflict, "conflict"},
		{"unknown error", assert.AnError, nethttp.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			pkghttp.WriteServiceError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)

			var resp pkghttp.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tc.code, resp.Error)
		})
	}
}

func TestWriteServiceError_NeverLeaksInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	pkghttp.WriteServiceError(rec, assert.AnError)

	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

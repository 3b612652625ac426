package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-sec/aegis/internal/handlers"
	"github.com/aegis-sec/aegis/internal/models"
	"github.com/aegis-sec/aegis/internal/services"
	pkghttp "github.com/aegis-sec/aegis/pkg/http"
)

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51000"
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestLoginHandler_Allow(t *testing.T) {
	mock := &handlers.MockLoginService{
		LoginFunc: func(ctx context.Context, identifier, password, ipAddress, userAgent string) (*services.LoginResult, error) {
			return &services.LoginResult{
				Outcome: services.OutcomeAllow,
				Account: &models.Account{ID: "11111111-1111-1111-1111-111111111111", Email: identifier},
			}, nil
		},
	}
	h := handlers.NewLoginHandler(mock, &pkghttp.IPConfig{})

	rec := postJSON(t, h.Login, "/auth/login", handlers.LoginRequest{
		Email:    "User@Example.com",
		Password: "correct horse battery staple",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", resp.AccountID)

	// Email is normalized before it reaches the decision engine.
	assert.Equal(t, "user@example.com", mock.LastIdentifier)
	assert.Equal(t, "203.0.113.7", mock.LastIPAddress)
}

func TestLoginHandler_InvalidCredentials(t *testing.T) {
	h := handlers.NewLoginHandler(&handlers.MockLoginService{}, &pkghttp.IPConfig{})

	rec := postJSON(t, h.Login, "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "wrong",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication failed")
}

// A timed lock reports how long it has left; an indefinite lock only says to
// try later.
func TestLoginHandler_LockedReportsRemainingDuration(t *testing.T) {
	until := time.Now().Add(30 * time.Minute)
	cases := []struct {
		name        string
		lockedUntil *time.Time
		contains    string
		notContains string
	}{
		{"timed", &until, "Try again in 30m0s", ""},
		{"indefinite", nil, "Try again later", "Try again in "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &handlers.MockLoginService{
				LoginFunc: func(context.Context, string, string, string, string) (*services.LoginResult, error) {
					return &services.LoginResult{
						Outcome:     services.OutcomeDenyLocked,
						LockedUntil: tc.lockedUntil,
					}, nil
				},
			}
			h := handlers.NewLoginHandler(mock, &pkghttp.IPConfig{})

			rec := postJSON(t, h.Login, "/auth/login", handlers.LoginRequest{
				Email:    "user@example.com",
				Password: "hunter2hunter2",
			})

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.contains)
			if tc.notContains != "" {
				assert.NotContains(t, rec.Body.String(), tc.notContains)
			}
		})
	}
}

func TestLoginHandler_LockedAndBlockedUseGenericBodies(t *testing.T) {
	until := time.Now().Add(30 * time.Minute)
	cases := []struct {
		name    string
		result  *services.LoginResult
		status  int
		message string
	}{
		{"locked", &services.LoginResult{Outcome: services.OutcomeDenyLocked, LockedUntil: &until}, http.StatusForbidden, "temporarily locked"},
		{"address blocked", &services.LoginResult{Outcome: services.OutcomeDenyAddressBlocked}, http.StatusForbidden, "Request refused"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &handlers.MockLoginService{
				LoginFunc: func(context.Context, string, string, string, string) (*services.LoginResult, error) {
					return tc.result, nil
				},
			}
			h := handlers.NewLoginHandler(mock, &pkghttp.IPConfig{})

			rec := postJSON(t, h.Login, "/auth/login", handlers.LoginRequest{
				Email:    "user@example.com",
				Password: "anything",
			})

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.message)
			// The body never names the account or its lock expiry.
			assert.NotContains(t, rec.Body.String(), "user@example.com")
		})
	}
}

func TestLoginHandler_InfrastructureErrorDenies(t *testing.T) {
	mock := &handlers.MockLoginService{
		LoginFunc: func(context.Context, string, string, string, string) (*services.LoginResult, error) {
			return nil, assert.AnError
		},
	}
	h := handlers.NewLoginHandler(mock, &pkghttp.IPConfig{})

	rec := postJSON(t, h.Login, "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "anything",
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoginHandler_RejectsMalformedRequests(t *testing.T) {
	h := handlers.NewLoginHandler(&handlers.MockLoginService{}, &pkghttp.IPConfig{})

	rec := postJSON(t, h.Login, "/auth/login", handlers.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.Login, "/auth/login", handlers.LoginRequest{Email: "user@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginHandler_TrustedProxyHeader(t *testing.T) {
	mock := &handlers.MockLoginService{
		LoginFunc: func(context.Context, string, string, string, string) (*services.LoginResult, error) {
			return &services.LoginResult{Outcome: services.OutcomeDenyInvalid}, nil
		},
	}
	h := handlers.NewLoginHandler(mock, &pkghttp.IPConfig{TrustedProxies: []string{"203.0.113.0/24"}})

	payload, _ := json.Marshal(handlers.LoginRequest{Email: "user@example.com", Password: "x"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(payload))
	req.RemoteAddr = "203.0.113.7:51000"
	req.Header.Set("X-Forwarded-For", "198.51.100.44")
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, "198.51.100.44", mock.LastIPAddress)
}

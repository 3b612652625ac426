package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-sec/aegis/internal/auth"
)

const testSecret = "unit-test-secret-that-is-long-enough"

func TestAdminTokenManager_Roundtrip(t *testing.T) {
	tm := auth.NewAdminTokenManager(testSecret, 15*time.Minute)

	token, err := tm.Generate("admin-7")
	require.NoError(t, err)

	claims, err := tm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-7", claims.ActorID)
	assert.Equal(t, "admin", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestAdminTokenManager_RejectsWrongSecret(t *testing.T) {
	tm := auth.NewAdminTokenManager(testSecret, 15*time.Minute)
	other := auth.NewAdminTokenManager("a-completely-different-signing-secret", 15*time.Minute)

	token, err := tm.Generate("admin-7")
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.Error(t, err)
}

func TestAdminTokenManager_RejectsExpired(t *testing.T) {
	tm := auth.NewAdminTokenManager(testSecret, -1*time.Minute)

	token, err := tm.Generate("admin-7")
	require.NoError(t, err)

	_, err = tm.Validate(token)
	assert.Error(t, err)
}

func TestAdminTokenManager_RejectsGarbage(t *testing.T) {
	tm := auth.NewAdminTokenManager(testSecret, 15*time.Minute)

	_, err := tm.Validate("not.a.token")
	assert.Error(t, err)
}

func TestRequireAdmin(t *testing.T) {
	tm := auth.NewAdminTokenManager(testSecret, 15*time.Minute)

	var gotActor string
	handler := auth.RequireAdmin(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.AdminFromContext(r)
		require.NotNil(t, claims)
		gotActor = claims.ActorID
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes", func(t *testing.T) {
		token, err := tm.Generate("admin-7")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin/events", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "admin-7", gotActor)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/events", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/events", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		token, err := tm.Generate("admin-7")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin/events", nil)
		req.Header.Set("Authorization", "Bearer "+token+"x")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AdminClaims are the claims carried by tokens for the administrative surface
// (unblocking addresses, locking accounts, reading the event log).
type AdminClaims struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// AdminTokenManager signs and validates tokens for administrative endpoints.
type AdminTokenManager struct {
	secret []byte
	expiry time.Duration
}

// NewAdminTokenManager creates a new AdminTokenManager
func NewAdminTokenManager(secret string, expiry time.Duration) *AdminTokenManager {
	return &AdminTokenManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Generate creates a signed admin token for the given actor.
func (tm *AdminTokenManager) Generate(actorID string) (string, error) {
	now := time.Now()
	claims := &AdminClaims{
		ActorID: actorID,
		Role:    "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token, returning its claims.
func (tm *AdminTokenManager) Validate(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

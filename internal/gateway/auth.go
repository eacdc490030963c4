// Package gateway implements the client-facing duplex channel: one
// WebSocket connection carrying one conversation, opened with a
// conversation id, an opaque bearer credential, and an agent selector.
package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by Authenticator.Authenticate for a token
// that fails signature or expiry checks.
var ErrInvalidToken = errors.New("gateway: invalid authentication token")

// Claims is the subject of the opaque bearer credential: the fingerprint
// a turn's tools are scoped to, and the agent the connection is opening
// against.
type Claims struct {
	Fingerprint string `json:"fingerprint"`
	Agent       string `json:"agent"`
	jwt.RegisteredClaims
}

// Authenticator verifies the bearer token presented on connect, grounded
// on internal/auth/jwt.go's JWTService — narrowed to the two claims this
// service actually needs (a tenant fingerprint and an agent), since the out-of-scope
// fingerprint-issuing service is the token's issuer, not this process.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator builds an Authenticator around a shared HMAC secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate parses and validates token, returning the caller's
// fingerprint and requested agent name.
func (a *Authenticator) Authenticate(token string) (fingerprint, agent string, err error) {
	if len(a.secret) == 0 {
		return "", "", fmt.Errorf("gateway: authenticator not configured")
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", "", ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Fingerprint) == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Fingerprint, claims.Agent, nil
}

// tokenExpired reports whether err wraps a jwt expiry validation error,
// used only to pick the close reason text; the close code is 4001 (auth
// required/invalid) regardless of expiry vs. bad signature, since the client's
// only valid response to either is "reauthenticate", never "retry as-is".
func tokenExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

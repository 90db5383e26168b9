// Package domain contains the identity types produced by request
// authentication.
package domain

import (
	"context"
	"errors"
	"time"
)

// Claims are the verified token details the API relies on.
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Raw       map[string]any
}

// Verifier validates a bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrMissingToken        = errors.New("missing_token")
	ErrInvalidToken        = errors.New("invalid_token")
	ErrVerifierUnavailable = errors.New("verifier_unavailable")
)

type ctxKey int

const claimsKey ctxKey = iota

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// DevClaims is the fixed identity injected when authentication is disabled
// in a local environment.
func DevClaims() *Claims {
	return &Claims{
		Subject: "local-dev",
		Email:   "dev@localhost",
		Issuer:  "local",
		Raw:     map[string]any{"sub": "local-dev"},
	}
}

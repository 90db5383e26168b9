// Package verifier checks bearer JWTs against a JWKS endpoint.
package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/promptly/internal/auth/domain"
	"github.com/smallbiznis/promptly/internal/config"
	"go.uber.org/zap"
)

const defaultLeeway = 30 * time.Second

type JWKSVerifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	parser   *jwt.Parser
}

// New builds a verifier. An empty jwksURL derives the standard well-known
// location from the issuer.
func New(issuer, audience, jwksURL string) (*JWKSVerifier, error) {
	normalizedIssuer := normalizeIssuer(issuer)
	if normalizedIssuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if strings.TrimSpace(audience) == "" {
		return nil, errors.New("audience must be set")
	}
	if jwksURL == "" {
		jwksURL = normalizedIssuer + ".well-known/jwks.json"
	}

	keys, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("init jwks keyfunc: %w", err)
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(normalizedIssuer),
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodRS384.Name,
			jwt.SigningMethodRS512.Name,
		}),
	)

	return &JWKSVerifier{
		issuer:   normalizedIssuer,
		audience: audience,
		keyfunc:  keys,
		parser:   parser,
	}, nil
}

func (v *JWKSVerifier) Verify(_ context.Context, tokenString string) (*domain.Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, domain.ErrMissingToken
	}
	token, err := v.parser.Parse(tokenString, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.ErrInvalidToken
	}

	claims := &domain.Claims{
		Subject:   readString(mapClaims, "sub"),
		Email:     readString(mapClaims, "email"),
		Issuer:    readString(mapClaims, "iss"),
		Audience:  readAudience(mapClaims["aud"]),
		ExpiresAt: readExpiry(mapClaims["exp"]),
		Raw:       mapClaims,
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", domain.ErrInvalidToken)
	}
	return claims, nil
}

// disabled rejects every token; it stands in when no issuer is configured.
type disabled struct{}

func (disabled) Verify(context.Context, string) (*domain.Claims, error) {
	return nil, domain.ErrVerifierUnavailable
}

// Provide builds the verifier from config. Without an issuer every bearer
// token is rejected, and AUTH_DISABLED is the only way in.
func Provide(cfg config.Config, log *zap.Logger) (domain.Verifier, error) {
	log = log.Named("auth.verifier")
	if strings.TrimSpace(cfg.Auth.Issuer) == "" {
		if cfg.Auth.Disabled && cfg.IsLocal() {
			log.Warn("auth disabled for local development; requests use the dev identity")
		} else {
			log.Warn("AUTH_ISSUER not set; bearer tokens will be rejected")
		}
		return disabled{}, nil
	}
	v, err := New(cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.JWKSURL)
	if err != nil {
		return nil, err
	}
	log.Info("jwks verifier ready", zap.String("issuer", v.issuer))
	return v, nil
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return ""
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	return issuer
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

func readAudience(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func readExpiry(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}

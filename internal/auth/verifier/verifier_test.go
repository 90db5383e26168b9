package verifier

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/promptly/internal/auth/domain"
	"github.com/smallbiznis/promptly/internal/config"
	"go.uber.org/zap"
)

const (
	testIssuer   = "https://id.promptly.test/"
	testAudience = "https://api.promptly.test"
)

func TestVerifyValidToken(t *testing.T) {
	v, key := newTestVerifier(t)
	token := signToken(t, key, "test-key", jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   "user-123",
		"email": "ada@example.com",
		"exp":   time.Now().Add(10 * time.Minute).Unix(),
	})

	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Subject != "user-123" || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != testAudience {
		t.Fatalf("unexpected audience: %v", claims.Audience)
	}
}

func TestVerifyRejects(t *testing.T) {
	v, key := newTestVerifier(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss": testIssuer,
			"aud": testAudience,
			"sub": "user-123",
			"exp": time.Now().Add(10 * time.Minute).Unix(),
		}
	}

	cases := map[string]string{
		"foreign key": signToken(t, otherKey, "test-key", valid()),
		"wrong audience": signToken(t, key, "test-key", func() jwt.MapClaims {
			c := valid()
			c["aud"] = "https://elsewhere"
			return c
		}()),
		"expired": signToken(t, key, "test-key", func() jwt.MapClaims {
			c := valid()
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return c
		}()),
		"missing subject": signToken(t, key, "test-key", func() jwt.MapClaims {
			c := valid()
			delete(c, "sub")
			return c
		}()),
		"garbage": "not-a-jwt",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			if !errors.Is(err, domain.ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}

	if _, err := v.Verify(context.Background(), "  "); !errors.Is(err, domain.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestProvideWithoutIssuerRejectsEverything(t *testing.T) {
	v, err := Provide(config.Config{Environment: "development"}, zap.NewNop())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	if _, err := v.Verify(context.Background(), "anything"); !errors.Is(err, domain.ErrVerifierUnavailable) {
		t.Fatalf("expected ErrVerifierUnavailable, got %v", err)
	}
}

func TestNormalizeIssuer(t *testing.T) {
	if got := normalizeIssuer(" https://a.test "); got != "https://a.test/" {
		t.Fatalf("unexpected issuer %q", got)
	}
	if got := normalizeIssuer(""); got != "" {
		t.Fatalf("expected empty issuer, got %q", got)
	}
}

func newTestVerifier(t *testing.T) (*JWKSVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwks := newJWKS(key, "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	v, err := New(testIssuer, testAudience, server.URL)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v, key
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type jwksPayload struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKS(key *rsa.PrivateKey, kid string) jwksPayload {
	return jwksPayload{Keys: []jwk{{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}
}

// Package cronsecret guards the internal trigger endpoints with a shared
// secret presented as a bearer token.
package cronsecret

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/smallbiznis/promptly/internal/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ErrNotConfigured = errors.New("cron_secret_not_configured")

type Checker struct {
	secret []byte
	hash   []byte
}

// New prefers the bcrypt hash when both forms are configured.
func New(secret, hash string) *Checker {
	c := &Checker{}
	if h := strings.TrimSpace(hash); h != "" {
		c.hash = []byte(h)
		return c
	}
	if s := strings.TrimSpace(secret); s != "" {
		c.secret = []byte(s)
	}
	return c
}

func Provide(cfg config.Config, log *zap.Logger) *Checker {
	c := New(cfg.Cron.Secret, cfg.Cron.SecretHash)
	if !c.Configured() {
		log.Named("auth.cron").Warn("CRON_SECRET not set; internal cron endpoints will reject every call")
	}
	return c
}

func (c *Checker) Configured() bool {
	return c != nil && (len(c.hash) > 0 || len(c.secret) > 0)
}

// Check validates the raw Authorization header value.
func (c *Checker) Check(authorization string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	token, ok := bearer(authorization)
	if !ok {
		return errors.New("missing bearer token")
	}
	if len(c.hash) > 0 {
		if err := bcrypt.CompareHashAndPassword(c.hash, []byte(token)); err != nil {
			return errors.New("cron secret mismatch")
		}
		return nil
	}
	if subtle.ConstantTimeCompare(c.secret, []byte(token)) != 1 {
		return errors.New("cron secret mismatch")
	}
	return nil
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

package server

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	authdomain "github.com/smallbiznis/promptly/internal/auth/domain"
	"github.com/smallbiznis/promptly/internal/authorization"
	obscontext "github.com/smallbiznis/promptly/internal/observability/context"
	"github.com/smallbiznis/promptly/internal/observability/logger"
	"go.uber.org/zap"
)

const contextAccountKey = "account"

// AccountRequired verifies the bearer token and resolves the caller's
// account, provisioning a free account on first sight of a subject.
func (s *Server) AccountRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		claims, err := s.authenticate(ctx, c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		account, err := s.resolveAccount(ctx, claims)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx = authdomain.WithClaims(ctx, claims)
		ctx = obscontext.WithAccountID(ctx, account.ID.String())
		ctx = obscontext.WithActor(ctx, "account", account.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextAccountKey, account)
		c.Next()
	}
}

func (s *Server) authenticate(ctx context.Context, header string) (*authdomain.Claims, error) {
	if s.cfg.Auth.Disabled && s.cfg.IsLocal() {
		return authdomain.DevClaims(), nil
	}

	token, ok := bearerToken(header)
	if !ok {
		return nil, authdomain.ErrMissingToken
	}
	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		logger.WithContext(ctx, s.log).Debug("token rejected", zap.Error(err))
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, authdomain.ErrInvalidToken
	}
	return claims, nil
}

func (s *Server) resolveAccount(ctx context.Context, claims *authdomain.Claims) (accountdomain.Account, error) {
	if account, ok := s.identities.Get(claims.Subject); ok {
		return account, nil
	}

	account, created, err := s.accountSvc.EnsureAccount(ctx, accountdomain.EnsureAccountRequest{
		ExternalID: claims.Subject,
		Email:      claims.Email,
	})
	if err != nil {
		return accountdomain.Account{}, err
	}
	if created {
		logger.WithContext(ctx, s.log).Info("account provisioned",
			zap.String("account_id", account.ID.String()),
			zap.String("plan", string(account.Plan)),
			zap.Int64("credits", account.Credits),
		)
	}
	s.identities.Set(claims.Subject, account)
	return account, nil
}

func accountFromContext(c *gin.Context) (accountdomain.Account, bool) {
	value, ok := c.Get(contextAccountKey)
	if !ok {
		return accountdomain.Account{}, false
	}
	account, ok := value.(accountdomain.Account)
	return account, ok
}

// CronSecretRequired guards trigger endpoints with the shared cron secret.
// Rejections are terminal.
func (s *Server) CronSecretRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.cronAuth.Check(c.GetHeader("Authorization")); err != nil {
			logger.WithContext(c.Request.Context(), s.log).Warn("cron trigger rejected",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err),
			)
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := accountFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		err := s.authzSvc.Authorize(c.Request.Context(), authorization.Actor{
			AccountID: account.ID,
			Role:      account.Role,
		}, object, action)
		if err != nil {
			if errors.Is(err, authorization.ErrForbidden) {
				AbortWithError(c, ErrForbidden)
				return
			}
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

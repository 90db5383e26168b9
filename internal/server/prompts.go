package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/promptly/internal/generation"
	"github.com/smallbiznis/promptly/internal/observability/logger"
	"go.uber.org/zap"
)

const rateLimitReasonAccountRate = "account-rate"

type generateResponse struct {
	OperationID   string `json:"operation_id"`
	Text          string `json:"text"`
	Model         string `json:"model"`
	CreditsUsed   int64  `json:"credits_used"`
	DebitDeferred bool   `json:"debit_deferred"`
	Balance       *int64 `json:"balance,omitempty"`
}

// GenerateRateLimit applies the per-account token bucket. Without redis
// every request passes.
func (s *Server) GenerateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		account, ok := accountFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.AllowAccount(ctx, account.ID.String())
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("generate rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			endpoint := normalizeRateLimitEndpoint(c)
			logger.WithContext(ctx, s.log).Warn("generate rate limit exceeded",
				zap.String("reason", rateLimitReasonAccountRate),
				zap.String("endpoint", endpoint),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonAccountRate)

			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonAccountRate)
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// GeneratePrompt charges the configured cost only when generation succeeds.
func (s *Server) GeneratePrompt(c *gin.Context) {
	account, ok := accountFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req generation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := generation.Validate(&req); err != nil {
		AbortWithError(c, err)
		return
	}

	cost := s.cfg.Usage.GenerateCost
	if cost <= 0 {
		cost = 1
	}

	result, err := s.usageSvc.WithCredits(c.Request.Context(), account.ID, cost, func(ctx context.Context) (any, error) {
		resp, err := s.generator.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		return resp, nil
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, _ := result.Output.(*generation.Response)
	if resp == nil {
		AbortWithError(c, ErrGenerationFailed)
		return
	}

	c.Set("credits_used", result.CreditsUsed)
	c.JSON(http.StatusOK, gin.H{"data": generateResponse{
		OperationID:   result.OperationID,
		Text:          resp.Text,
		Model:         resp.Model,
		CreditsUsed:   result.CreditsUsed,
		DebitDeferred: result.DebitDeferred,
		Balance:       result.Balance,
	}})
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}

package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/promptly/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	reconcilerdomain "github.com/smallbiznis/promptly/internal/reconciler/domain"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

// HandlePaymentWebhook acknowledges every event the provider should not
// redeliver. Only failures worth retrying answer non-2xx.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
	case errors.Is(err, paymentdomain.ErrEventIgnored):
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case errors.Is(err, paymentdomain.ErrInvalidEvent):
		AbortWithError(c, err)
	case !reconcilerdomain.IsRetryable(err):
		logger.WithContext(c.Request.Context(), s.log).Warn("webhook event acknowledged without effect",
			zap.String("provider", provider),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"status": "dropped"})
	default:
		AbortWithError(c, err)
	}
}

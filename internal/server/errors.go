package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	authdomain "github.com/smallbiznis/promptly/internal/auth/domain"
	"github.com/smallbiznis/promptly/internal/authorization"
	creditdomain "github.com/smallbiznis/promptly/internal/credit/domain"
	"github.com/smallbiznis/promptly/internal/generation"
	obsmetrics "github.com/smallbiznis/promptly/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	reconcilerdomain "github.com/smallbiznis/promptly/internal/reconciler/domain"
	usagedomain "github.com/smallbiznis/promptly/internal/usage/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
	ErrGenerationFailed   = errors.New("generation_failed")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger. The second value is the
// payload type clients see.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server", payload.Type
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth", payload.Type
	default:
		return "client", payload.Type
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(err),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, creditdomain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credits",
			Message: "not enough credits for this request",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrUnauthorized),
		errors.Is(err, authdomain.ErrMissingToken),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrVerifierUnavailable):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, obsmetrics.ErrLockHeld):
		return http.StatusConflict, errorPayload{
			Type:    "reset_in_progress",
			Message: "a credit reset is already running",
		}
	case errors.Is(err, reconcilerdomain.ErrAccountNotFound):
		// The provider redelivers on non-2xx; the linking event may still arrive.
		return http.StatusConflict, errorPayload{
			Type:    "account_not_linked",
			Message: "no account is linked to this customer yet",
		}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrGenerationFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "generation_failed",
			Message: "generation failed, no credits were charged",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrCheckoutUnavailable),
		errors.Is(err, paymentdomain.ErrPriceNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = map[error]string{
	ErrInvalidRequest:                  "request",
	accountdomain.ErrInvalidID:         "id",
	accountdomain.ErrInvalidExternalID: "subject",
	creditdomain.ErrInvalidAmount:      "amount",
	creditdomain.ErrUnknownPlan:        "plan",
	generation.ErrEmptyPrompt:          "prompt",
	generation.ErrPromptTooLarge:       "prompt",
	paymentdomain.ErrInvalidPlan:       "plan",
	paymentdomain.ErrInvalidProvider:   "provider",
	paymentdomain.ErrInvalidSignature:  "signature",
	paymentdomain.ErrInvalidPayload:    "payload",
	paymentdomain.ErrInvalidEvent:      "event",
	usagedomain.ErrNilOperation:        "operation",
}

func matchValidation(err error) (error, bool) {
	for sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel, true
		}
	}
	return nil, false
}

func isValidationError(err error) bool {
	_, ok := matchValidation(err)
	return ok
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, creditdomain.ErrAccountNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if sentinel, ok := matchValidation(err); ok {
		return sentinel.Error()
	}
	return err.Error()
}

func validationErrorField(err error) string {
	if sentinel, ok := matchValidation(err); ok {
		return validationSentinels[sentinel]
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_prompt":
		return "prompt is required"
	case "prompt_too_large":
		return "prompt is too long"
	case "invalid_signature":
		return "signature verification failed"
	default:
		return "invalid value"
	}
}

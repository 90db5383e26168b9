package domain

import (
	"context"
	"errors"
	"net/http"
)

// Service ingests provider webhooks.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

type CheckoutService interface {
	CreateCheckout(ctx context.Context, accountID string, plan string) (*CheckoutSession, error)
}

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrCheckoutUnavailable   = errors.New("checkout_unavailable")
	ErrPriceNotConfigured    = errors.New("price_not_configured")
	ErrInvalidPlan           = errors.New("invalid_plan")
)

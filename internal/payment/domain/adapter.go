package domain

import (
	"context"
	"net/http"

	reconcilerdomain "github.com/smallbiznis/promptly/internal/reconciler/domain"
)

type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// PaymentAdapter verifies and decodes one provider's webhooks.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse returns ErrEventIgnored for event types the reconciler does not
	// handle.
	Parse(ctx context.Context, payload []byte) (*reconcilerdomain.Event, error)
}

// CheckoutAdapter is implemented by adapters able to open hosted checkouts.
type CheckoutAdapter interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

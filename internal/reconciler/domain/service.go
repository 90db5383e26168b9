package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
)

// Service applies billing provider lifecycle events to accounts. Every
// operation resolves and writes inside one transaction and is safe to
// replay with the same input.
type Service interface {
	OnCheckoutCompleted(ctx context.Context, event CheckoutCompleted) error
	OnSubscriptionUpserted(ctx context.Context, event SubscriptionChanged) error
	OnSubscriptionDeleted(ctx context.Context, event SubscriptionChanged) error
	OnInvoicePaymentSucceeded(ctx context.Context, event InvoicePayment) error
	OnInvoicePaymentFailed(ctx context.Context, event InvoicePayment) error
	// Dispatch routes a decoded event to the matching operation.
	Dispatch(ctx context.Context, event Event) error
}

// PlanFallback describes a subscription whose plan could not be resolved
// and was applied as free.
type PlanFallback struct {
	AccountID      snowflake.ID
	SubscriptionID string
	PriceIDs       []string
	MetadataPlan   string
	Applied        accountdomain.Plan
}

// PlanFallbackAlerter is notified whenever plan resolution falls back.
type PlanFallbackAlerter interface {
	PlanFallback(ctx context.Context, fallback PlanFallback)
}

var (
	ErrMissingReference = errors.New("missing_reference")
	ErrAccountNotFound  = errors.New("account_not_found")
	ErrInvalidEvent     = errors.New("invalid_event")
)

// IsRetryable reports whether the provider should redeliver an event that
// failed with err. Events without a usable reference can never succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrMissingReference) && !errors.Is(err, ErrInvalidEvent)
}

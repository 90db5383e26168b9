package domain

import "time"

// Event types recognised by the reconciler, named after the billing
// provider's webhook types.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Metadata keys written on checkout sessions and subscriptions.
const (
	MetadataAccountID = "accountId"
	MetadataPlanID    = "planId"
)

// Event is a verified provider event decoded into exactly one of the
// canonical payloads.
type Event struct {
	Provider     string
	ID           string
	Type         string
	Created      time.Time
	Checkout     *CheckoutCompleted
	Subscription *SubscriptionChanged
	Invoice      *InvoicePayment
}

type CheckoutCompleted struct {
	Provider          string
	EventID           string
	SessionID         string
	ClientReferenceID string
	CustomerID        string
	SubscriptionID    string
	Metadata          map[string]string
}

// AccountReference returns the embedded account id, preferring the client
// reference over metadata.
func (c CheckoutCompleted) AccountReference() string {
	if c.ClientReferenceID != "" {
		return c.ClientReferenceID
	}
	return c.Metadata[MetadataAccountID]
}

type SubscriptionChanged struct {
	Provider           string
	EventID            string
	SubscriptionID     string
	CustomerID         string
	Status             string
	PriceIDs           []string
	Metadata           map[string]string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	EndsAt             *time.Time
	OccurredAt         time.Time
}

type InvoicePayment struct {
	Provider       string
	EventID        string
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	Amount         int64
	Currency       string
	Succeeded      bool
	OccurredAt     time.Time
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is one received webhook delivery. ProcessedAt stays nil until
// the reconciler has applied it.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:varchar(64);not null;uniqueIndex:idx_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Payment is an append-only invoice payment outcome.
type Payment struct {
	ID                     snowflake.ID `json:"id" gorm:"primaryKey"`
	AccountID              snowflake.ID `json:"account_id" gorm:"not null;index"`
	Provider               string       `json:"provider" gorm:"type:text;not null"`
	ProviderEventID        string       `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ProviderInvoiceID      *string      `json:"provider_invoice_id,omitempty"`
	ProviderSubscriptionID *string      `json:"provider_subscription_id,omitempty"`
	Amount                 int64        `json:"amount" gorm:"not null"`
	Currency               string       `json:"currency" gorm:"type:text;not null"`
	Status                 string       `json:"status" gorm:"type:text;not null"`
	OccurredAt             time.Time    `json:"occurred_at" gorm:"not null"`
	CreatedAt              time.Time    `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// CheckoutRequest asks the provider for a hosted subscription checkout.
type CheckoutRequest struct {
	AccountID  snowflake.ID
	CustomerID string
	Email      string
	Plan       string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

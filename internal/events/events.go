// Package events publishes domain events to the message broker.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	TypePlanChanged = "account.plan_changed"
)

var ErrPublisherClosed = errors.New("publisher_closed")

// Envelope wraps every published payload. Type doubles as the routing key.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func NewEnvelope(eventType string, occurredAt time.Time, payload any) Envelope {
	return Envelope{
		ID:         ulid.Make().String(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Payload:    payload,
	}
}

// PlanChanged is emitted after a reconciler transaction changes an
// account's plan.
type PlanChanged struct {
	AccountID      string `json:"account_id"`
	PreviousPlan   string `json:"previous_plan"`
	Plan           string `json:"plan"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Status         string `json:"status,omitempty"`
	Source         string `json:"source"`
}

type Publisher interface {
	Publish(ctx context.Context, envelope Envelope) error
	Close() error
}

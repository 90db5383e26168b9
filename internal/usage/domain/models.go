// Package domain contains the usage-gated operation contract and the
// deferred debit ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type DeferredDebitStatus string

const (
	DeferredDebitPending DeferredDebitStatus = "pending"
	DeferredDebitSettled DeferredDebitStatus = "settled"
	DeferredDebitWaived  DeferredDebitStatus = "waived"
)

// DeferredDebit records a charge owed for an operation that succeeded but
// could not be debited at the time.
type DeferredDebit struct {
	ID          snowflake.ID        `gorm:"primaryKey" json:"id"`
	AccountID   snowflake.ID        `gorm:"not null;index" json:"account_id"`
	OperationID string              `gorm:"type:varchar(64);not null;uniqueIndex" json:"operation_id"`
	Amount      int64               `gorm:"not null" json:"amount"`
	Reason      string              `gorm:"type:text;not null" json:"reason"`
	Status      DeferredDebitStatus `gorm:"type:text;not null" json:"status"`
	Attempts    int                 `gorm:"not null;default:0" json:"attempts"`
	LastError   *string             `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"not null" json:"updated_at"`
	SettledAt   *time.Time          `json:"settled_at,omitempty"`
}

// TableName sets the database table name.
func (DeferredDebit) TableName() string { return "deferred_debits" }

// Result is returned for every operation that ran.
type Result struct {
	OperationID   string `json:"operation_id"`
	Output        any    `json:"output"`
	CreditsUsed   int64  `json:"credits_used"`
	DebitDeferred bool   `json:"debit_deferred"`
	// Balance is the post-debit balance; nil when the debit was deferred.
	Balance *int64 `json:"balance,omitempty"`
}

type SettleSummary struct {
	Selected int `json:"selected"`
	Settled  int `json:"settled"`
	Waived   int `json:"waived"`
	Retrying int `json:"retrying"`
}

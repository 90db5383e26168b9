// Package domain contains the persistence model for billing provider subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"gorm.io/datatypes"
)

// Status mirrors the billing provider's subscription status.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusTrialing   Status = "trialing"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusUnpaid     Status = "unpaid"
	StatusCanceled   Status = "canceled"
)

// Record is the local copy of a provider subscription, keyed by the
// provider subscription id.
type Record struct {
	ID                     snowflake.ID       `gorm:"primaryKey" json:"id"`
	AccountID              snowflake.ID       `gorm:"not null;index" json:"account_id"`
	Provider               string             `gorm:"type:text;not null" json:"provider"`
	ProviderSubscriptionID string             `gorm:"type:varchar(255);not null;uniqueIndex" json:"provider_subscription_id"`
	ProviderCustomerID     string             `gorm:"type:text;not null" json:"provider_customer_id"`
	Plan                   accountdomain.Plan `gorm:"type:text;not null" json:"plan"`
	Status                 Status             `gorm:"type:text;not null" json:"status"`
	CurrentPeriodStart     *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	TrialStart             *time.Time         `json:"trial_start,omitempty"`
	TrialEnd               *time.Time         `json:"trial_end,omitempty"`
	CancelAtPeriodEnd      bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty"`
	Metadata               datatypes.JSONMap  `gorm:"not null" json:"metadata,omitempty"`
	CreatedAt              time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "subscriptions" }

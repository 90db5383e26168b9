package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Plan string

const (
	PlanFree  Plan = "free"
	PlanPro   Plan = "pro"
	PlanElite Plan = "elite"
)

// Plans lists every plan in display order.
var Plans = []Plan{PlanFree, PlanPro, PlanElite}

// ParsePlan normalizes a plan name and reports whether it is known.
func ParsePlan(value string) (Plan, bool) {
	plan := Plan(strings.ToLower(strings.TrimSpace(value)))
	switch plan {
	case PlanFree, PlanPro, PlanElite:
		return plan, true
	default:
		return "", false
	}
}

// IsPaid reports whether the plan is billed through a subscription.
func (p Plan) IsPaid() bool {
	return p == PlanPro || p == PlanElite
}

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type Account struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	ExternalID          string       `gorm:"type:varchar(255);not null;uniqueIndex" json:"external_id"`
	Email               string       `gorm:"not null" json:"email"`
	Role                Role         `gorm:"not null;default:member" json:"role"`
	Credits             int64        `gorm:"not null" json:"credits"`
	Unlimited           bool         `gorm:"not null;default:false" json:"unlimited"`
	MonthlyCreditsUsed  int64        `gorm:"not null;default:0" json:"monthly_credits_used"`
	LastCreditResetDate time.Time    `gorm:"not null" json:"last_credit_reset_date"`
	Plan                Plan         `gorm:"not null;default:free" json:"plan"`
	SubscriptionID      *string      `json:"subscription_id,omitempty"`
	SubscriptionStatus  *string      `json:"subscription_status,omitempty"`
	SubscriptionEndsAt  *time.Time   `json:"subscription_ends_at,omitempty"`
	StripeCustomerID    *string      `gorm:"type:varchar(255);uniqueIndex" json:"stripe_customer_id,omitempty"`
	CreatedAt           time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// SubscriptionState is the billing linkage written by the reconciler.
type SubscriptionState struct {
	Plan           Plan
	SubscriptionID *string
	Status         *string
	EndsAt         *time.Time
}

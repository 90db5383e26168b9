package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"gorm.io/gorm"
)

// ResetParams describes one conditional reset. The update applies only while
// the account is still on Plan and, when DueBefore is set, still due.
type ResetParams struct {
	AccountID snowflake.ID
	Plan      accountdomain.Plan
	Grant     int64
	Now       time.Time
	DueBefore *time.Time
}

type Repository interface {
	GetBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Balance, error)
	// Debit decrements credits only when the balance covers amount, in one
	// conditional statement. Unlimited accounts only accrue usage.
	Debit(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, now time.Time) (bool, error)
	Reset(ctx context.Context, db *gorm.DB, params ResetParams) (bool, error)
	ApplyPlanCredits(ctx context.Context, db *gorm.DB, accountID snowflake.ID, credits int64, unlimited bool, now time.Time) error
	ListDue(ctx context.Context, db *gorm.DB, cutoff time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error)
}

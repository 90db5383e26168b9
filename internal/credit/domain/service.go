package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
)

type Service interface {
	GetBalance(ctx context.Context, accountID snowflake.ID) (Balance, error)
	Debit(ctx context.Context, accountID snowflake.ID, amount int64) (Balance, error)
	// ResetOne sets credits to the plan grant. Repeating it within a month
	// yields the same state.
	ResetOne(ctx context.Context, accountID snowflake.ID) (Balance, error)
	// ResetDue resets every account whose last reset precedes the first of
	// now's month. Accounts already reset are excluded, so reruns are no-ops.
	ResetDue(ctx context.Context, now time.Time) (ResetSummary, error)
	GrantAmountFor(plan accountdomain.Plan) (int64, error)
	// PlanCredits is the balance and unlimited flag a plan change writes.
	PlanCredits(plan accountdomain.Plan) (int64, bool, error)
	GrantTable() GrantTable
}

var (
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrUnknownPlan         = errors.New("unknown_plan")
	ErrInvalidAmount       = errors.New("invalid_amount")
)

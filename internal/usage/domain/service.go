package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Operation is the external work paid for with credits.
type Operation func(ctx context.Context) (any, error)

type Service interface {
	// WithCredits runs op only when the balance covers cost and debits cost
	// only after op succeeds. A failed op never spends credits.
	WithCredits(ctx context.Context, accountID snowflake.ID, cost int64, op Operation) (*Result, error)
	// SettleDeferred retries pending deferred debits, waiving rows that
	// exhausted their attempts.
	SettleDeferred(ctx context.Context) (SettleSummary, error)
	PendingDeferred(ctx context.Context) (int64, error)
}

var ErrNilOperation = errors.New("nil_operation")

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, debit *DeferredDebit) error
	// LockPending claims pending rows, skipping rows other workers hold.
	LockPending(ctx context.Context, db *gorm.DB, limit int) ([]DeferredDebit, error)
	MarkSettled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, waive bool, at time.Time) error
	CountPending(ctx context.Context, db *gorm.DB) (int64, error)
}

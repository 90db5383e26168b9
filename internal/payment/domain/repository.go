package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	// InsertEvent reports false when the (provider, event id) pair exists.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	CountUnprocessed(ctx context.Context, db *gorm.DB) (int64, error)
	// InsertPayment is write-once per provider event id.
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	ListPaymentsByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]Payment, error)
}

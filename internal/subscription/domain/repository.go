package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the record or refreshes every mutable column of the row
	// holding the same provider subscription id. Canceled rows are left as is.
	Upsert(ctx context.Context, db *gorm.DB, record *Record) error
	FindByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*Record, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]Record, error)
	// MarkCanceled reports false when no record exists.
	MarkCanceled(ctx context.Context, db *gorm.DB, providerSubscriptionID string, canceledAt time.Time) (bool, error)
}

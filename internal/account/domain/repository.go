package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert creates the account unless one already exists for the external id.
	Insert(ctx context.Context, db *gorm.DB, account *Account) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Account, error)
	FindByStripeCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*Account, error)
	LinkBillingCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, subscriptionID *string, now time.Time) error
	UpdateSubscriptionState(ctx context.Context, db *gorm.DB, id snowflake.ID, state SubscriptionState, now time.Time) error
	SetRole(ctx context.Context, db *gorm.DB, id snowflake.ID, role Role, now time.Time) (bool, error)
	CountByPlan(ctx context.Context, db *gorm.DB) (map[Plan]int64, error)
}

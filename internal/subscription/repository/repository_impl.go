package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promptly/internal/subscription/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const recordColumns = `id, account_id, provider, provider_subscription_id, provider_customer_id,
	plan, status, current_period_start, current_period_end, trial_start, trial_end,
	cancel_at_period_end, canceled_at, metadata, created_at, updated_at`

// Upsert inserts or refreshes the record keyed by provider subscription id.
// A canceled record is final, and a refresh that changes nothing keeps
// updated_at.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	metadata := record.Metadata
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider_subscription_id) DO UPDATE SET
			account_id = excluded.account_id,
			provider_customer_id = excluded.provider_customer_id,
			plan = excluded.plan,
			status = excluded.status,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			trial_start = excluded.trial_start,
			trial_end = excluded.trial_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			canceled_at = excluded.canceled_at,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		 WHERE subscriptions.status <> ?
		   AND (subscriptions.account_id <> excluded.account_id
			OR subscriptions.provider_customer_id <> excluded.provider_customer_id
			OR subscriptions.plan <> excluded.plan
			OR subscriptions.status <> excluded.status
			OR subscriptions.current_period_start IS DISTINCT FROM excluded.current_period_start
			OR subscriptions.current_period_end IS DISTINCT FROM excluded.current_period_end
			OR subscriptions.trial_start IS DISTINCT FROM excluded.trial_start
			OR subscriptions.trial_end IS DISTINCT FROM excluded.trial_end
			OR subscriptions.cancel_at_period_end <> excluded.cancel_at_period_end
			OR subscriptions.canceled_at IS DISTINCT FROM excluded.canceled_at
			OR subscriptions.metadata IS DISTINCT FROM excluded.metadata)`,
		record.ID,
		record.AccountID,
		record.Provider,
		record.ProviderSubscriptionID,
		record.ProviderCustomerID,
		record.Plan,
		record.Status,
		record.CurrentPeriodStart,
		record.CurrentPeriodEnd,
		record.TrialStart,
		record.TrialEnd,
		record.CancelAtPeriodEnd,
		record.CanceledAt,
		metadata,
		record.CreatedAt,
		record.UpdatedAt,
		domain.StatusCanceled,
	).Error
}

func (r *repo) FindByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*domain.Record, error) {
	var record domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM subscriptions
		 WHERE provider_subscription_id = ?
		 LIMIT 1`,
		providerSubscriptionID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]domain.Record, error) {
	var records []domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM subscriptions
		 WHERE account_id = ?
		 ORDER BY updated_at DESC, id DESC`,
		accountID,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) MarkCanceled(ctx context.Context, db *gorm.DB, providerSubscriptionID string, canceledAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?,
		     canceled_at = COALESCE(canceled_at, ?),
		     updated_at = ?
		 WHERE provider_subscription_id = ?`,
		domain.StatusCanceled,
		canceledAt,
		canceledAt,
		providerSubscriptionID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

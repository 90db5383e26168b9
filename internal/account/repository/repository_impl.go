package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promptly/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const accountColumns = `id, external_id, email, role, credits, unlimited, monthly_credits_used,
	last_credit_reset_date, plan, subscription_id, subscription_status, subscription_ends_at,
	stripe_customer_id, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO NOTHING`,
		account.ID,
		account.ExternalID,
		account.Email,
		account.Role,
		account.Credits,
		account.Unlimited,
		account.MonthlyCreditsUsed,
		account.LastCreditResetDate,
		account.Plan,
		account.SubscriptionID,
		account.SubscriptionStatus,
		account.SubscriptionEndsAt,
		account.StripeCustomerID,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Account, error) {
	return r.findOne(ctx, db, `external_id = ?`, externalID)
}

func (r *repo) FindByStripeCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.Account, error) {
	return r.findOne(ctx, db, `stripe_customer_id = ?`, customerID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

// LinkBillingCustomer only fills an empty subscription link; subscription
// events own it once set.
func (r *repo) LinkBillingCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, subscriptionID *string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET stripe_customer_id = ?,
		     subscription_id = COALESCE(subscription_id, ?),
		     updated_at = ?
		 WHERE id = ?`,
		customerID,
		subscriptionID,
		now,
		id,
	).Error
}

func (r *repo) UpdateSubscriptionState(ctx context.Context, db *gorm.DB, id snowflake.ID, state domain.SubscriptionState, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET plan = ?,
		     subscription_id = ?,
		     subscription_status = ?,
		     subscription_ends_at = ?,
		     updated_at = ?
		 WHERE id = ?`,
		state.Plan,
		state.SubscriptionID,
		state.Status,
		state.EndsAt,
		now,
		id,
	).Error
}

func (r *repo) SetRole(ctx context.Context, db *gorm.DB, id snowflake.ID, role domain.Role, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts SET role = ?, updated_at = ? WHERE id = ?`,
		role,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CountByPlan(ctx context.Context, db *gorm.DB) (map[domain.Plan]int64, error) {
	var rows []struct {
		Plan  domain.Plan
		Total int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT plan, COUNT(*) AS total FROM accounts GROUP BY plan`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.Plan]int64, len(domain.Plans))
	for _, plan := range domain.Plans {
		counts[plan] = 0
	}
	for _, row := range rows {
		counts[row.Plan] = row.Total
	}
	return counts, nil
}

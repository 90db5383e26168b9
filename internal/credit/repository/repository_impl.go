package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promptly/internal/credit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.Balance, error) {
	var row struct {
		ID                  snowflake.ID
		Plan                string
		Credits             int64
		Unlimited           bool
		MonthlyCreditsUsed  int64
		LastCreditResetDate time.Time
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id, plan, credits, unlimited, monthly_credits_used, last_credit_reset_date
		 FROM accounts
		 WHERE id = ?`,
		accountID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &domain.Balance{
		AccountID:           row.ID,
		Plan:                accountPlan(row.Plan),
		Credits:             row.Credits,
		Unlimited:           row.Unlimited,
		MonthlyCreditsUsed:  row.MonthlyCreditsUsed,
		LastCreditResetDate: row.LastCreditResetDate.UTC(),
	}, nil
}

func (r *repo) Debit(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET credits = CASE WHEN unlimited THEN credits ELSE credits - ? END,
		     monthly_credits_used = monthly_credits_used + ?,
		     updated_at = ?
		 WHERE id = ? AND (unlimited OR credits >= ?)`,
		amount,
		amount,
		now,
		accountID,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Reset(ctx context.Context, db *gorm.DB, params domain.ResetParams) (bool, error) {
	query := `UPDATE accounts
		 SET credits = ?,
		     monthly_credits_used = 0,
		     last_credit_reset_date = CASE WHEN last_credit_reset_date > ? THEN last_credit_reset_date ELSE ? END,
		     updated_at = ?
		 WHERE id = ? AND plan = ?`
	args := []any{
		params.Grant,
		params.Now,
		params.Now,
		params.Now,
		params.AccountID,
		params.Plan,
	}
	if params.DueBefore != nil {
		query += ` AND last_credit_reset_date < ?`
		args = append(args, *params.DueBefore)
	}

	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ApplyPlanCredits(ctx context.Context, db *gorm.DB, accountID snowflake.ID, credits int64, unlimited bool, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET credits = ?, unlimited = ?, updated_at = ?
		 WHERE id = ?`,
		credits,
		unlimited,
		now,
		accountID,
	).Error
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, cutoff time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var raw []int64
	err := db.WithContext(ctx).Raw(
		`SELECT id
		 FROM accounts
		 WHERE last_credit_reset_date < ? AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		cutoff,
		afterID,
		limit,
	).Scan(&raw).Error
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, snowflake.ID(id))
	}
	return ids, nil
}

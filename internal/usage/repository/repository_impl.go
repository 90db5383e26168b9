package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promptly/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, debit *domain.DeferredDebit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO deferred_debits (
			id, account_id, operation_id, amount, reason, status, attempts,
			last_error, created_at, updated_at, settled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (operation_id) DO NOTHING`,
		debit.ID,
		debit.AccountID,
		debit.OperationID,
		debit.Amount,
		debit.Reason,
		debit.Status,
		debit.Attempts,
		debit.LastError,
		debit.CreatedAt,
		debit.UpdatedAt,
		debit.SettledAt,
	).Error
}

func (r *repo) LockPending(ctx context.Context, db *gorm.DB, limit int) ([]domain.DeferredDebit, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []domain.DeferredDebit
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, operation_id, amount, reason, status, attempts,
			last_error, created_at, updated_at, settled_at
		 FROM deferred_debits
		 WHERE status = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		domain.DeferredDebitPending,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) MarkSettled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE deferred_debits
		 SET status = ?, attempts = attempts + 1, last_error = NULL, settled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.DeferredDebitSettled,
		at,
		at,
		id,
		domain.DeferredDebitPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RecordFailure(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, waive bool, at time.Time) error {
	status := domain.DeferredDebitPending
	if waive {
		status = domain.DeferredDebitWaived
	}
	return db.WithContext(ctx).Exec(
		`UPDATE deferred_debits
		 SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		reason,
		at,
		id,
		domain.DeferredDebitPending,
	).Error
}

func (r *repo) CountPending(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM deferred_debits WHERE status = ?`,
		domain.DeferredDebitPending,
	).Scan(&total).Error
	return total, err
}

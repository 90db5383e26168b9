package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/promptly/internal/clock"
	"github.com/smallbiznis/promptly/internal/config"
	creditdomain "github.com/smallbiznis/promptly/internal/credit/domain"
	"github.com/smallbiznis/promptly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/promptly/internal/observability/metrics"
	usagedomain "github.com/smallbiznis/promptly/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxSettleAttempts = 5
	settleBatchSize          = 100
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Credits    creditdomain.Service
	CreditRepo creditdomain.Repository
	Repo       usagedomain.Repository
	Cfg        config.Config
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	credits     creditdomain.Service
	creditRepo  creditdomain.Repository
	repo        usagedomain.Repository
	metrics     *obsmetrics.Metrics
	maxAttempts int
}

func NewService(p Params) usagedomain.Service {
	maxAttempts := p.Cfg.Usage.MaxSettleAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxSettleAttempts
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("usage.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		credits:     p.Credits,
		creditRepo:  p.CreditRepo,
		repo:        p.Repo,
		metrics:     p.Metrics,
		maxAttempts: maxAttempts,
	}
}

func (s *Service) WithCredits(ctx context.Context, accountID snowflake.ID, cost int64, op usagedomain.Operation) (*usagedomain.Result, error) {
	if op == nil {
		return nil, usagedomain.ErrNilOperation
	}
	if cost <= 0 {
		return nil, creditdomain.ErrInvalidAmount
	}

	balance, err := s.credits.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !balance.Covers(cost) {
		s.metrics.RecordInsufficientCredits(ctx, string(balance.Plan))
		return nil, creditdomain.ErrInsufficientCredits
	}

	operationID := ulid.Make().String()
	log := logger.WithAccount(logger.WithContext(ctx, s.log), accountID.String()).With(
		zap.String("operation_id", operationID),
	)

	output, err := op(ctx)
	if err != nil {
		log.Debug("usage operation failed, nothing debited", zap.Error(err))
		return nil, err
	}

	result := &usagedomain.Result{
		OperationID: operationID,
		Output:      output,
		CreditsUsed: cost,
	}

	// The work is done; a caller hanging up now must not skip the charge.
	debitCtx := context.WithoutCancel(ctx)
	after, err := s.credits.Debit(debitCtx, accountID, cost)
	if err == nil {
		credits := after.Credits
		result.Balance = &credits
		return result, nil
	}

	result.DebitDeferred = true
	s.metrics.RecordDeferredDebit(ctx, "recorded")
	log.Warn("debit after successful operation failed, deferring", zap.Error(err))
	if recErr := s.deferDebit(debitCtx, accountID, operationID, cost, err); recErr != nil {
		log.Error("deferred debit not recorded",
			zap.Int64("amount", cost),
			zap.Error(recErr),
		)
	}
	return result, nil
}

func (s *Service) deferDebit(ctx context.Context, accountID snowflake.ID, operationID string, amount int64, cause error) error {
	now := s.clock.Now()
	return s.repo.Insert(ctx, s.db, &usagedomain.DeferredDebit{
		ID:          s.genID.Generate(),
		AccountID:   accountID,
		OperationID: operationID,
		Amount:      amount,
		Reason:      cause.Error(),
		Status:      usagedomain.DeferredDebitPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (s *Service) SettleDeferred(ctx context.Context) (usagedomain.SettleSummary, error) {
	var summary usagedomain.SettleSummary

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.LockPending(ctx, tx, settleBatchSize)
		if err != nil {
			return err
		}
		summary.Selected = len(rows)

		for _, row := range rows {
			outcome, err := s.settleOne(ctx, tx, row)
			if err != nil {
				return fmt.Errorf("settle deferred debit %s: %w", row.ID, err)
			}
			switch outcome {
			case "settled":
				summary.Settled++
			case "waived":
				summary.Waived++
			default:
				summary.Retrying++
			}
			s.metrics.RecordDeferredDebit(ctx, outcome)
		}
		return nil
	})
	if err != nil {
		return summary, err
	}

	if summary.Selected > 0 {
		s.log.Info("deferred debits settled",
			zap.Int("selected", summary.Selected),
			zap.Int("settled", summary.Settled),
			zap.Int("waived", summary.Waived),
			zap.Int("retrying", summary.Retrying),
		)
	}
	return summary, nil
}

// settleOne debits the owed amount and closes the row in one savepoint, so a
// row is never closed without its debit or debited twice.
func (s *Service) settleOne(ctx context.Context, tx *gorm.DB, row usagedomain.DeferredDebit) (string, error) {
	now := s.clock.Now()
	errNotCovered := errors.New("balance does not cover deferred amount")

	err := tx.Transaction(func(sp *gorm.DB) error {
		debited, err := s.creditRepo.Debit(ctx, sp, row.AccountID, row.Amount, now)
		if err != nil {
			return err
		}
		if !debited {
			return errNotCovered
		}
		settled, err := s.repo.MarkSettled(ctx, sp, row.ID, now)
		if err != nil {
			return err
		}
		if !settled {
			return errors.New("deferred debit no longer pending")
		}
		return nil
	})
	if err == nil {
		return "settled", nil
	}

	waive := row.Attempts+1 >= s.maxAttempts
	if recErr := s.repo.RecordFailure(ctx, tx, row.ID, err.Error(), waive, now); recErr != nil {
		return "", recErr
	}
	if waive {
		s.log.Warn("deferred debit waived",
			zap.String("account_id", row.AccountID.String()),
			zap.String("operation_id", row.OperationID),
			zap.Int64("amount", row.Amount),
			zap.Error(err),
		)
		return "waived", nil
	}
	return "retrying", nil
}

func (s *Service) PendingDeferred(ctx context.Context) (int64, error) {
	return s.repo.CountPending(ctx, s.db)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/clock"
	"github.com/smallbiznis/promptly/internal/config"
	"github.com/smallbiznis/promptly/internal/credit/domain"
	"github.com/smallbiznis/promptly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/promptly/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultResetConcurrency = 8
	resetPageSize           = 500
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    domain.Repository
	Catalog *config.PlanCatalogHolder
	Cfg     config.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	catalog     *config.PlanCatalogHolder
	metrics     *obsmetrics.Metrics
	concurrency int
}

func NewService(p Params) domain.Service {
	concurrency := p.Cfg.Cron.ResetConcurrency
	if concurrency <= 0 {
		concurrency = defaultResetConcurrency
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("credit.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		catalog:     p.Catalog,
		metrics:     p.Metrics,
		concurrency: concurrency,
	}
}

func (s *Service) GrantTable() domain.GrantTable {
	if s.catalog == nil {
		return domain.GrantTableFrom(config.PlanCatalog{})
	}
	return domain.GrantTableFrom(s.catalog.Get())
}

func (s *Service) GrantAmountFor(plan accountdomain.Plan) (int64, error) {
	return s.GrantTable().AmountFor(plan)
}

func (s *Service) PlanCredits(plan accountdomain.Plan) (int64, bool, error) {
	grant, err := s.GrantAmountFor(plan)
	if err != nil {
		return 0, false, err
	}
	if plan.IsPaid() {
		return domain.UnlimitedCredits, true, nil
	}
	return grant, false, nil
}

func (s *Service) GetBalance(ctx context.Context, accountID snowflake.ID) (domain.Balance, error) {
	balance, err := s.repo.GetBalance(ctx, s.db, accountID)
	if err != nil {
		return domain.Balance{}, err
	}
	if balance == nil {
		return domain.Balance{}, domain.ErrAccountNotFound
	}
	return *balance, nil
}

func (s *Service) Debit(ctx context.Context, accountID snowflake.ID, amount int64) (domain.Balance, error) {
	if amount <= 0 {
		return domain.Balance{}, domain.ErrInvalidAmount
	}

	var out domain.Balance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		debited, err := s.repo.Debit(ctx, tx, accountID, amount, s.clock.Now())
		if err != nil {
			return err
		}

		balance, err := s.repo.GetBalance(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if balance == nil {
			return domain.ErrAccountNotFound
		}
		out = *balance
		if !debited {
			return domain.ErrInsufficientCredits
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			s.metrics.RecordInsufficientCredits(ctx, string(out.Plan))
			return out, err
		}
		return domain.Balance{}, err
	}

	s.metrics.RecordDebit(ctx, string(out.Plan), amount)
	return out, nil
}

func (s *Service) ResetOne(ctx context.Context, accountID snowflake.ID) (domain.Balance, error) {
	outcome, err := s.reset(ctx, accountID, s.clock.Now(), nil)
	if err != nil {
		s.metrics.RecordReset(ctx, string(domain.ResetOutcomeFailed))
		return domain.Balance{}, err
	}
	s.metrics.RecordReset(ctx, string(outcome))
	return s.GetBalance(ctx, accountID)
}

func (s *Service) ResetDue(ctx context.Context, now time.Time) (domain.ResetSummary, error) {
	now = now.UTC()
	cutoff := domain.FirstOfMonth(now)
	summary := domain.ResetSummary{
		Cutoff:    cutoff,
		StartedAt: s.clock.Now(),
		Results:   []domain.ResetResult{},
	}

	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(s.concurrency)

	record := func(result domain.ResetResult) {
		mu.Lock()
		defer mu.Unlock()
		summary.Results = append(summary.Results, result)
		switch result.Outcome {
		case domain.ResetOutcomeReset:
			summary.Succeeded++
		case domain.ResetOutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	var afterID snowflake.ID
	for {
		ids, err := s.repo.ListDue(ctx, s.db, cutoff, afterID, resetPageSize)
		if err != nil {
			_ = group.Wait()
			summary.FinishedAt = s.clock.Now()
			return summary, fmt.Errorf("list due accounts: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		summary.Selected += len(ids)
		afterID = ids[len(ids)-1]

		for _, id := range ids {
			id := id
			group.Go(func() error {
				if err := ctx.Err(); err != nil {
					record(domain.ResetResult{AccountID: id, Outcome: domain.ResetOutcomeFailed, Err: err, Error: err.Error()})
					return nil
				}
				outcome, err := s.reset(ctx, id, now, &cutoff)
				if err != nil {
					logger.WithContext(ctx, s.log).Warn("account reset failed",
						zap.String("account_id", id.String()),
						zap.Error(err),
					)
					s.metrics.RecordReset(ctx, string(domain.ResetOutcomeFailed))
					record(domain.ResetResult{AccountID: id, Outcome: domain.ResetOutcomeFailed, Err: err, Error: err.Error()})
					return nil
				}
				s.metrics.RecordReset(ctx, string(outcome))
				record(domain.ResetResult{AccountID: id, Outcome: outcome})
				return nil
			})
		}

		if len(ids) < resetPageSize {
			break
		}
	}
	_ = group.Wait()

	summary.FinishedAt = s.clock.Now()
	s.log.Info("credit reset batch finished",
		zap.Time("cutoff", cutoff),
		zap.Int("selected", summary.Selected),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// reset applies one conditional reset. A plan change racing the reset is
// retried once against the new plan; a due account that another run already
// reset is reported as skipped.
func (s *Service) reset(ctx context.Context, accountID snowflake.ID, now time.Time, dueBefore *time.Time) (domain.ResetOutcome, error) {
	for attempt := 0; attempt < 2; attempt++ {
		balance, err := s.repo.GetBalance(ctx, s.db, accountID)
		if err != nil {
			return "", err
		}
		if balance == nil {
			return "", domain.ErrAccountNotFound
		}
		if dueBefore != nil && !balance.LastCreditResetDate.Before(*dueBefore) {
			return domain.ResetOutcomeSkipped, nil
		}

		grant, err := s.GrantAmountFor(balance.Plan)
		if err != nil {
			return "", err
		}

		applied, err := s.repo.Reset(ctx, s.db, domain.ResetParams{
			AccountID: accountID,
			Plan:      balance.Plan,
			Grant:     grant,
			Now:       now,
			DueBefore: dueBefore,
		})
		if err != nil {
			return "", err
		}
		if applied {
			return domain.ResetOutcomeReset, nil
		}
	}
	return "", fmt.Errorf("reset account %s: plan changed concurrently", accountID)
}

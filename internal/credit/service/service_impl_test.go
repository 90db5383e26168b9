package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/clock"
	"github.com/smallbiznis/promptly/internal/config"
	"github.com/smallbiznis/promptly/internal/credit/domain"
	"github.com/smallbiznis/promptly/internal/credit/repository"
	"github.com/smallbiznis/promptly/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	svc   domain.Service
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db := dbtest.Open(t, dbtest.AccountsDDL)
	fc := clock.NewFakeClock(now)
	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Clock:   fc,
		Repo:    repository.Provide(),
		Catalog: config.NewStaticPlanCatalogHolder(domain.DefaultCatalog()),
		Cfg:     config.Config{Cron: config.CronConfig{ResetConcurrency: 4}},
	})
	return &fixture{db: db, clock: fc, svc: svc}
}

func (f *fixture) insertAccount(t *testing.T, id snowflake.ID, plan accountdomain.Plan, credits int64, unlimited bool, lastReset time.Time) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO accounts (id, external_id, email, role, credits, unlimited, monthly_credits_used,
			last_credit_reset_date, plan, created_at, updated_at)
		 VALUES (?, ?, ?, 'member', ?, ?, 0, ?, ?, ?, ?)`,
		id, id.String()+"@example.com", id.String()+"@example.com", credits, unlimited, lastReset, plan, lastReset, lastReset,
	).Error
	require.NoError(t, err)
}

func TestDebit_Scenario(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC))
	f.insertAccount(t, 1, accountdomain.PlanFree, 50, false, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	balance, err := f.svc.Debit(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance.Credits)
	assert.Equal(t, int64(10), balance.MonthlyCreditsUsed)

	_, err = f.svc.Debit(ctx, 1, 1000)
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)

	balance, err = f.svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance.Credits)
	assert.Equal(t, int64(10), balance.MonthlyCreditsUsed)
}

func TestDebit_Validation(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, 1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Debit(ctx, 1, -5)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Debit(ctx, 404, 1)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = f.svc.GetBalance(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestDebit_ConcurrentNeverNegative(t *testing.T) {
	f := newFixture(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	f.insertAccount(t, 7, accountdomain.PlanFree, 50, false, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  atomic.Int64
	)
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Debit(context.Background(), 7, 1)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientCredits):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	balance, err := f.svc.GetBalance(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(50), succeeded.Load())
	assert.Equal(t, int64(30), rejected.Load())
	assert.Equal(t, int64(0), balance.Credits)
	assert.Equal(t, 50-succeeded.Load(), balance.Credits)
}

func TestDebit_UnlimitedAccruesUsageOnly(t *testing.T) {
	f := newFixture(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	f.insertAccount(t, 9, accountdomain.PlanPro, domain.UnlimitedCredits, true, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	balance, err := f.svc.Debit(context.Background(), 9, 25)
	require.NoError(t, err)
	assert.Equal(t, domain.UnlimitedCredits, balance.Credits)
	assert.Equal(t, int64(25), balance.MonthlyCreditsUsed)
	assert.True(t, balance.Unlimited)
}

func TestResetOne_IdempotentWithinMonth(t *testing.T) {
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.insertAccount(t, 3, accountdomain.PlanFree, 12, false, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		balance, err := f.svc.ResetOne(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(50), balance.Credits)
		assert.Equal(t, int64(0), balance.MonthlyCreditsUsed)
		assert.True(t, balance.LastCreditResetDate.Equal(now))
		f.clock.Advance(time.Hour)
		_, err = f.svc.Debit(ctx, 3, 5)
		require.NoError(t, err)
	}

	_, err := f.svc.ResetOne(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestResetOne_ResetDateNeverMovesBackwards(t *testing.T) {
	future := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC))
	f.insertAccount(t, 4, accountdomain.PlanElite, 3, false, future)

	balance, err := f.svc.ResetOne(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(9999), balance.Credits)
	assert.True(t, balance.LastCreditResetDate.Equal(future))
}

func TestResetDue_Scenario(t *testing.T) {
	created := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.insertAccount(t, 10, accountdomain.PlanFree, 4, false, created)
	f.insertAccount(t, 11, accountdomain.PlanPro, 120, false, created)
	f.insertAccount(t, 12, accountdomain.PlanFree, 33, false, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	summary, err := f.svc.ResetDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Selected)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.NoError(t, summary.Err())
	assert.Empty(t, summary.FailedIDs())

	free, err := f.svc.GetBalance(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(50), free.Credits)
	assert.True(t, free.LastCreditResetDate.Equal(now))

	pro, err := f.svc.GetBalance(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(500), pro.Credits)

	untouched, err := f.svc.GetBalance(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(33), untouched.Credits)

	again, err := f.svc.ResetDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Selected)
	assert.Empty(t, again.Results)

	after, err := f.svc.GetBalance(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, free, after)
}

func TestResetDue_ReportsFailuresWithoutAborting(t *testing.T) {
	created := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	f.insertAccount(t, 20, accountdomain.PlanFree, 1, false, created)
	f.insertAccount(t, 21, accountdomain.Plan("legacy"), 1, false, created)

	summary, err := f.svc.ResetDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Selected)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []snowflake.ID{21}, summary.FailedIDs())
	assert.ErrorIs(t, summary.Err(), domain.ErrUnknownPlan)
}

func TestGrantAmountFor(t *testing.T) {
	f := newFixture(t, time.Now())

	for plan, want := range map[accountdomain.Plan]int64{
		accountdomain.PlanFree:  50,
		accountdomain.PlanPro:   500,
		accountdomain.PlanElite: 9999,
	} {
		got, err := f.svc.GrantAmountFor(plan)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := f.svc.GrantAmountFor("platinum")
	assert.ErrorIs(t, err, domain.ErrUnknownPlan)
}

func TestPlanCredits(t *testing.T) {
	f := newFixture(t, time.Now())

	credits, unlimited, err := f.svc.PlanCredits(accountdomain.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, domain.UnlimitedCredits, credits)
	assert.True(t, unlimited)

	credits, unlimited, err = f.svc.PlanCredits(accountdomain.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, int64(50), credits)
	assert.False(t, unlimited)
}

func TestGrantTable_CatalogOverride(t *testing.T) {
	db := dbtest.Open(t, dbtest.AccountsDDL)
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Now()),
		Repo:  repository.Provide(),
		Catalog: config.NewStaticPlanCatalogHolder(config.PlanCatalog{
			Grants: map[string]int64{"free": 25, "platinum": 10},
		}),
	})

	got, err := svc.GrantAmountFor(accountdomain.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, int64(25), got)

	_, err = svc.GrantAmountFor("platinum")
	assert.ErrorIs(t, err, domain.ErrUnknownPlan)
}

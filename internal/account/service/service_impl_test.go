package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/account/repository"
	"github.com/smallbiznis/promptly/internal/clock"
	"github.com/smallbiznis/promptly/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGrants map[domain.Plan]int64

func (f fakeGrants) GrantAmountFor(plan domain.Plan) (int64, error) {
	return f[plan], nil
}

func newTestService(t *testing.T, now time.Time) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(Params{
		DB:     dbtest.Open(t, dbtest.AccountsDDL),
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(now),
		Repo:   repository.Provide(),
		Grants: fakeGrants{domain.PlanFree: 50},
	}).(*Service)
}

func TestEnsureAccount_ProvisionsFreeAccountOnce(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	svc := newTestService(t, now)
	ctx := context.Background()

	account, created, err := svc.EnsureAccount(ctx, domain.EnsureAccountRequest{ExternalID: " user@example.com "})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "user@example.com", account.ExternalID)
	assert.Equal(t, "user@example.com", account.Email)
	assert.Equal(t, domain.PlanFree, account.Plan)
	assert.Equal(t, domain.RoleMember, account.Role)
	assert.Equal(t, int64(50), account.Credits)
	assert.False(t, account.Unlimited)
	assert.True(t, account.LastCreditResetDate.Equal(now))

	again, created, err := svc.EnsureAccount(ctx, domain.EnsureAccountRequest{ExternalID: "user@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, account.ID, again.ID)

	_, _, err = svc.EnsureAccount(ctx, domain.EnsureAccountRequest{ExternalID: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidExternalID)
}

func TestEnsureAccount_ConcurrentFirstLogin(t *testing.T) {
	svc := newTestService(t, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[snowflake.ID]struct{}{}
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account, isNew, err := svc.EnsureAccount(context.Background(), domain.EnsureAccountRequest{
				ExternalID: "racer@example.com",
				Email:      "racer@example.com",
			})
			if err != nil {
				t.Errorf("ensure account: %v", err)
				return
			}
			mu.Lock()
			ids[account.ID] = struct{}{}
			if isNew {
				created++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
}

func TestLookups(t *testing.T) {
	svc := newTestService(t, time.Now().UTC())
	ctx := context.Background()

	account, _, err := svc.EnsureAccount(ctx, domain.EnsureAccountRequest{ExternalID: "sub|123", Email: "a@example.com"})
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, account.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)

	_, err = svc.GetByID(ctx, "not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.GetByID(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByStripeCustomerID(ctx, "cus_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	customerID := "cus_123"
	require.NoError(t, svc.repo.LinkBillingCustomer(ctx, svc.db, account.ID, customerID, nil, time.Now().UTC()))
	linked, err := svc.GetByStripeCustomerID(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, linked.ID)
	require.NotNil(t, linked.StripeCustomerID)
	assert.Equal(t, customerID, *linked.StripeCustomerID)
}

func TestSetRoleAndCountByPlan(t *testing.T) {
	svc := newTestService(t, time.Now().UTC())
	ctx := context.Background()

	account, _, err := svc.EnsureAccount(ctx, domain.EnsureAccountRequest{ExternalID: "admin@example.com"})
	require.NoError(t, err)
	_, _, err = svc.EnsureAccount(ctx, domain.EnsureAccountRequest{ExternalID: "member@example.com"})
	require.NoError(t, err)

	require.NoError(t, svc.SetRole(ctx, account.ID.String(), domain.RoleAdmin))
	got, err := svc.GetByID(ctx, account.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)

	assert.ErrorIs(t, svc.SetRole(ctx, account.ID.String(), "owner"), domain.ErrInvalidRole)
	assert.ErrorIs(t, svc.SetRole(ctx, "77", domain.RoleAdmin), domain.ErrNotFound)

	counts, err := svc.CountByPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[domain.PlanFree])
}

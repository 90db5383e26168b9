package checkout

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	accountrepo "github.com/smallbiznis/promptly/internal/account/repository"
	"github.com/smallbiznis/promptly/internal/config"
	"github.com/smallbiznis/promptly/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	reconcilerdomain "github.com/smallbiznis/promptly/internal/reconciler/domain"
	"github.com/smallbiznis/promptly/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCheckoutAdapter struct {
	requests []paymentdomain.CheckoutRequest
}

func (f *fakeCheckoutAdapter) Verify(context.Context, []byte, http.Header) error { return nil }

func (f *fakeCheckoutAdapter) Parse(context.Context, []byte) (*reconcilerdomain.Event, error) {
	return nil, paymentdomain.ErrEventIgnored
}

func (f *fakeCheckoutAdapter) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	f.requests = append(f.requests, req)
	return &paymentdomain.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil
}

type fakeFactory struct {
	adapter *fakeCheckoutAdapter
}

func (f fakeFactory) Provider() string { return "stripe" }

func (f fakeFactory) NewAdapter(paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	return f.adapter, nil
}

func TestCreateCheckout(t *testing.T) {
	db := dbtest.Open(t, dbtest.AccountsDDL)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Exec(
		`INSERT INTO accounts (id, external_id, email, credits, last_credit_reset_date, plan, stripe_customer_id, created_at, updated_at)
		 VALUES (7, 'sub|7', 'seven@example.com', 50, ?, 'free', 'cus_7', ?, ?)`, now, now, now,
	).Error)

	adapter := &fakeCheckoutAdapter{}
	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		AccountRepo: accountrepo.Provide(),
		Adapters:    adapters.NewRegistry(fakeFactory{adapter: adapter}),
		Catalog: config.NewStaticPlanCatalogHolder(config.PlanCatalog{
			Grants: map[string]int64{"free": 50, "pro": 500, "elite": 9999},
			Prices: []config.PriceMapping{{PriceID: "price_pro", Plan: "pro"}},
		}),
		Cfg: config.Config{Stripe: config.StripeConfig{SuccessURL: "https://app.test/ok", CancelURL: "https://app.test/no"}},
	})
	ctx := context.Background()

	session, err := svc.CreateCheckout(ctx, "7", "PRO")
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	require.Len(t, adapter.requests, 1)
	req := adapter.requests[0]
	assert.Equal(t, "price_pro", req.PriceID)
	assert.Equal(t, "cus_7", req.CustomerID)
	assert.Equal(t, "pro", req.Plan)
	assert.Equal(t, "https://app.test/ok", req.SuccessURL)

	_, err = svc.CreateCheckout(ctx, "7", "elite")
	assert.True(t, errors.Is(err, paymentdomain.ErrPriceNotConfigured))

	_, err = svc.CreateCheckout(ctx, "7", "free")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPlan)

	_, err = svc.CreateCheckout(ctx, "8", "pro")
	assert.ErrorIs(t, err, accountdomain.ErrNotFound)
}

package checkout

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/config"
	"github.com/smallbiznis/promptly/internal/payment/adapters"
	"github.com/smallbiznis/promptly/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	AccountRepo accountdomain.Repository
	Adapters    *adapters.Registry
	Catalog     *config.PlanCatalogHolder
	Cfg         config.Config
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	accountRepo accountdomain.Repository
	catalog     *config.PlanCatalogHolder
	checkout    paymentdomain.CheckoutAdapter
	successURL  string
	cancelURL   string
}

func NewService(p Params) paymentdomain.CheckoutService {
	log := p.Log.Named("payment.checkout")
	svc := &Service{
		db:          p.DB,
		log:         log,
		accountRepo: p.AccountRepo,
		catalog:     p.Catalog,
		successURL:  p.Cfg.Stripe.SuccessURL,
		cancelURL:   p.Cfg.Stripe.CancelURL,
	}
	if adapter, ok := p.Adapters.Build(adapters.ConfigsFrom(p.Cfg), log).Checkout(stripe.ProviderName); ok {
		svc.checkout = adapter
	}
	return svc
}

func (s *Service) CreateCheckout(ctx context.Context, accountID string, planName string) (*paymentdomain.CheckoutSession, error) {
	if s.checkout == nil {
		return nil, paymentdomain.ErrCheckoutUnavailable
	}
	plan, ok := accountdomain.ParsePlan(planName)
	if !ok || !plan.IsPaid() {
		return nil, paymentdomain.ErrInvalidPlan
	}
	id, err := snowflake.ParseString(strings.TrimSpace(accountID))
	if err != nil || id == 0 {
		return nil, accountdomain.ErrInvalidID
	}

	priceID, ok := s.catalog.Get().PriceForPlan(string(plan))
	if !ok {
		return nil, paymentdomain.ErrPriceNotConfigured
	}

	account, err := s.accountRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrNotFound
	}

	req := paymentdomain.CheckoutRequest{
		AccountID:  account.ID,
		Email:      account.Email,
		Plan:       string(plan),
		PriceID:    priceID,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
	}
	if account.StripeCustomerID != nil {
		req.CustomerID = *account.StripeCustomerID
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, err
	}
	s.log.Info("checkout session created",
		zap.String("account_id", account.ID.String()),
		zap.String("plan", string(plan)),
		zap.String("session_id", session.ID),
	)
	return session, nil
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/clock"
	"github.com/smallbiznis/promptly/internal/config"
	creditdomain "github.com/smallbiznis/promptly/internal/credit/domain"
	"github.com/smallbiznis/promptly/internal/events"
	"github.com/smallbiznis/promptly/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	"github.com/smallbiznis/promptly/internal/reconciler/domain"
	subscriptiondomain "github.com/smallbiznis/promptly/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	AccountRepo      accountdomain.Repository
	CreditRepo       creditdomain.Repository
	CreditSvc        creditdomain.Service
	SubscriptionRepo subscriptiondomain.Repository
	PaymentRepo      paymentdomain.Repository
	Catalog          *config.PlanCatalogHolder
	Publisher        events.Publisher
	Alerter          domain.PlanFallbackAlerter
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	accountRepo      accountdomain.Repository
	creditRepo       creditdomain.Repository
	creditSvc        creditdomain.Service
	subscriptionRepo subscriptiondomain.Repository
	paymentRepo      paymentdomain.Repository
	catalog          *config.PlanCatalogHolder
	publisher        events.Publisher
	alerter          domain.PlanFallbackAlerter
}

func NewService(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNoopPublisher(p.Log)
	}
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("reconciler.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		accountRepo:      p.AccountRepo,
		creditRepo:       p.CreditRepo,
		creditSvc:        p.CreditSvc,
		subscriptionRepo: p.SubscriptionRepo,
		paymentRepo:      p.PaymentRepo,
		catalog:          p.Catalog,
		publisher:        publisher,
		alerter:          p.Alerter,
	}
}

func (s *Service) Dispatch(ctx context.Context, event domain.Event) error {
	switch event.Type {
	case domain.EventCheckoutCompleted:
		if event.Checkout == nil {
			return domain.ErrInvalidEvent
		}
		return s.OnCheckoutCompleted(ctx, *event.Checkout)
	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated:
		if event.Subscription == nil {
			return domain.ErrInvalidEvent
		}
		return s.OnSubscriptionUpserted(ctx, *event.Subscription)
	case domain.EventSubscriptionDeleted:
		if event.Subscription == nil {
			return domain.ErrInvalidEvent
		}
		return s.OnSubscriptionDeleted(ctx, *event.Subscription)
	case domain.EventInvoicePaymentSucceeded:
		if event.Invoice == nil {
			return domain.ErrInvalidEvent
		}
		return s.OnInvoicePaymentSucceeded(ctx, *event.Invoice)
	case domain.EventInvoicePaymentFailed:
		if event.Invoice == nil {
			return domain.ErrInvalidEvent
		}
		return s.OnInvoicePaymentFailed(ctx, *event.Invoice)
	default:
		return fmt.Errorf("%w: unsupported type %q", domain.ErrInvalidEvent, event.Type)
	}
}

func (s *Service) OnCheckoutCompleted(ctx context.Context, event domain.CheckoutCompleted) error {
	log := logger.WithContext(ctx, s.log).With(zap.String("event_id", event.EventID))

	ref := strings.TrimSpace(event.AccountReference())
	if ref == "" {
		log.Warn("checkout completed without account reference", zap.String("session_id", event.SessionID))
		return domain.ErrMissingReference
	}
	accountID, err := snowflake.ParseString(ref)
	if err != nil || accountID == 0 {
		log.Warn("checkout account reference malformed", zap.String("reference", ref))
		return fmt.Errorf("%w: malformed reference %q", domain.ErrMissingReference, ref)
	}
	customerID := strings.TrimSpace(event.CustomerID)
	if customerID == "" {
		return fmt.Errorf("%w: checkout without customer", domain.ErrInvalidEvent)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.FindByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("%w: account %s", domain.ErrAccountNotFound, accountID)
		}
		subscriptionID := optionalString(event.SubscriptionID)
		if subscriptionID != nil {
			record, err := s.subscriptionRepo.FindByProviderID(ctx, tx, *subscriptionID)
			if err != nil {
				return err
			}
			if record != nil && record.Status == subscriptiondomain.StatusCanceled {
				subscriptionID = nil
			}
		}
		return s.accountRepo.LinkBillingCustomer(ctx, tx, account.ID, customerID, subscriptionID, s.clock.Now())
	})
	if err != nil {
		return err
	}

	logger.WithAccount(log, accountID.String()).Info("billing customer linked",
		zap.String("customer_id", customerID),
		zap.String("subscription_id", event.SubscriptionID),
	)
	return nil
}

func (s *Service) OnSubscriptionUpserted(ctx context.Context, event domain.SubscriptionChanged) error {
	if err := validateSubscriptionEvent(event); err != nil {
		return err
	}
	now := s.clock.Now()
	plan, fallback := s.resolvePlan(event)

	var (
		previous accountdomain.Plan
		account  *accountdomain.Account
		canceled bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		account, err = s.accountRepo.FindByStripeCustomerID(ctx, tx, event.CustomerID)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("%w: customer %s", domain.ErrAccountNotFound, event.CustomerID)
		}
		previous = account.Plan

		// Deletion is final for a subscription id; later deliveries of older
		// created/updated events must not bring it back.
		existing, err := s.subscriptionRepo.FindByProviderID(ctx, tx, event.SubscriptionID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == subscriptiondomain.StatusCanceled {
			canceled = true
			return nil
		}

		status := event.Status
		if err := s.accountRepo.UpdateSubscriptionState(ctx, tx, account.ID, accountdomain.SubscriptionState{
			Plan:           plan,
			SubscriptionID: optionalString(event.SubscriptionID),
			Status:         optionalString(status),
			EndsAt:         event.EndsAt,
		}, now); err != nil {
			return err
		}

		// A free resolution only rewrites credits when it actually leaves a
		// paid state, so repeated updates never re-grant.
		if plan.IsPaid() || previous != plan || account.Unlimited {
			credits, unlimited, err := s.creditSvc.PlanCredits(plan)
			if err != nil {
				return err
			}
			if err := s.creditRepo.ApplyPlanCredits(ctx, tx, account.ID, credits, unlimited, now); err != nil {
				return err
			}
		}

		return s.subscriptionRepo.Upsert(ctx, tx, &subscriptiondomain.Record{
			ID:                     s.genID.Generate(),
			AccountID:              account.ID,
			Provider:               event.Provider,
			ProviderSubscriptionID: event.SubscriptionID,
			ProviderCustomerID:     event.CustomerID,
			Plan:                   plan,
			Status:                 subscriptiondomain.Status(status),
			CurrentPeriodStart:     event.CurrentPeriodStart,
			CurrentPeriodEnd:       event.CurrentPeriodEnd,
			TrialStart:             event.TrialStart,
			TrialEnd:               event.TrialEnd,
			CancelAtPeriodEnd:      event.CancelAtPeriodEnd,
			CanceledAt:             event.CanceledAt,
			Metadata:               metadataMap(event.Metadata),
			CreatedAt:              now,
			UpdatedAt:              now,
		})
	})
	if err != nil {
		return err
	}

	log := logger.WithAccount(logger.WithContext(ctx, s.log), account.ID.String())
	if canceled {
		log.Info("ignored update for canceled subscription",
			zap.String("event_id", event.EventID),
			zap.String("subscription_id", event.SubscriptionID),
			zap.String("status", event.Status),
		)
		return nil
	}
	if fallback != nil {
		fallback.AccountID = account.ID
		if s.alerter != nil {
			s.alerter.PlanFallback(ctx, *fallback)
		}
	}
	log.Info("subscription reconciled",
		zap.String("event_id", event.EventID),
		zap.String("subscription_id", event.SubscriptionID),
		zap.String("status", event.Status),
		zap.String("plan", string(plan)),
	)
	if previous != plan {
		s.publishPlanChanged(ctx, account.ID, previous, plan, event, "subscription.upserted")
	}
	return nil
}

func (s *Service) OnSubscriptionDeleted(ctx context.Context, event domain.SubscriptionChanged) error {
	if err := validateSubscriptionEvent(event); err != nil {
		return err
	}
	now := s.clock.Now()
	canceledAt := now
	if event.CanceledAt != nil {
		canceledAt = *event.CanceledAt
	}

	var (
		account    *accountdomain.Account
		downgraded bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		account, err = s.accountRepo.FindByStripeCustomerID(ctx, tx, event.CustomerID)
		if err != nil {
			return err
		}
		if account == nil {
			// Nothing left to downgrade; redelivery cannot help.
			return fmt.Errorf("%w: %w: customer %s", domain.ErrMissingReference, domain.ErrAccountNotFound, event.CustomerID)
		}

		// A stale subscription ending must not downgrade a newer one.
		if account.SubscriptionID == nil || *account.SubscriptionID == event.SubscriptionID {
			credits, unlimited, err := s.creditSvc.PlanCredits(accountdomain.PlanFree)
			if err != nil {
				return err
			}
			if err := s.accountRepo.UpdateSubscriptionState(ctx, tx, account.ID, accountdomain.SubscriptionState{
				Plan: accountdomain.PlanFree,
			}, now); err != nil {
				return err
			}
			if err := s.creditRepo.ApplyPlanCredits(ctx, tx, account.ID, credits, unlimited, now); err != nil {
				return err
			}
			downgraded = true
		}

		_, err = s.subscriptionRepo.MarkCanceled(ctx, tx, event.SubscriptionID, canceledAt)
		return err
	})
	if err != nil {
		return err
	}

	log := logger.WithAccount(logger.WithContext(ctx, s.log), account.ID.String())
	if !downgraded {
		log.Info("ignored deletion of superseded subscription",
			zap.String("subscription_id", event.SubscriptionID),
		)
		return nil
	}
	log.Info("subscription ended, account downgraded to free",
		zap.String("event_id", event.EventID),
		zap.String("subscription_id", event.SubscriptionID),
	)
	if account.Plan != accountdomain.PlanFree {
		s.publishPlanChanged(ctx, account.ID, account.Plan, accountdomain.PlanFree, event, "subscription.deleted")
	}
	return nil
}

func (s *Service) OnInvoicePaymentSucceeded(ctx context.Context, event domain.InvoicePayment) error {
	return s.recordPayment(ctx, event, paymentdomain.StatusSucceeded)
}

func (s *Service) OnInvoicePaymentFailed(ctx context.Context, event domain.InvoicePayment) error {
	return s.recordPayment(ctx, event, paymentdomain.StatusFailed)
}

func (s *Service) recordPayment(ctx context.Context, event domain.InvoicePayment, status string) error {
	customerID := strings.TrimSpace(event.CustomerID)
	if customerID == "" || strings.TrimSpace(event.EventID) == "" {
		return fmt.Errorf("%w: invoice without customer", domain.ErrInvalidEvent)
	}
	now := s.clock.Now()
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	var (
		account  *accountdomain.Account
		inserted bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		account, err = s.accountRepo.FindByStripeCustomerID(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("%w: %w: customer %s", domain.ErrMissingReference, domain.ErrAccountNotFound, customerID)
		}
		inserted, err = s.paymentRepo.InsertPayment(ctx, tx, &paymentdomain.Payment{
			ID:                     s.genID.Generate(),
			AccountID:              account.ID,
			Provider:               event.Provider,
			ProviderEventID:        event.EventID,
			ProviderInvoiceID:      optionalString(event.InvoiceID),
			ProviderSubscriptionID: optionalString(event.SubscriptionID),
			Amount:                 event.Amount,
			Currency:               event.Currency,
			Status:                 status,
			OccurredAt:             occurredAt,
			CreatedAt:              now,
		})
		return err
	})
	if err != nil {
		return err
	}

	log := logger.WithAccount(logger.WithContext(ctx, s.log), account.ID.String())
	if !inserted {
		log.Debug("payment already recorded", zap.String("event_id", event.EventID))
		return nil
	}
	log.Info("payment recorded",
		zap.String("invoice_id", event.InvoiceID),
		zap.String("status", status),
		zap.Int64("amount", event.Amount),
		zap.String("currency", event.Currency),
	)
	return nil
}

// resolvePlan prefers metadata planId, then the configured price map, then
// free. The fallback result is non-nil only when free was applied by default.
func (s *Service) resolvePlan(event domain.SubscriptionChanged) (accountdomain.Plan, *domain.PlanFallback) {
	metadataPlan := strings.TrimSpace(event.Metadata[domain.MetadataPlanID])
	if plan, ok := accountdomain.ParsePlan(metadataPlan); ok {
		return plan, nil
	}

	if s.catalog != nil {
		catalog := s.catalog.Get()
		for _, priceID := range event.PriceIDs {
			name, ok := catalog.PlanForPrice(priceID)
			if !ok {
				continue
			}
			if plan, ok := accountdomain.ParsePlan(name); ok {
				return plan, nil
			}
		}
	}

	return accountdomain.PlanFree, &domain.PlanFallback{
		SubscriptionID: event.SubscriptionID,
		PriceIDs:       event.PriceIDs,
		MetadataPlan:   metadataPlan,
		Applied:        accountdomain.PlanFree,
	}
}

func (s *Service) publishPlanChanged(ctx context.Context, accountID snowflake.ID, previous, plan accountdomain.Plan, event domain.SubscriptionChanged, source string) {
	envelope := events.NewEnvelope(events.TypePlanChanged, s.clock.Now(), events.PlanChanged{
		AccountID:      accountID.String(),
		PreviousPlan:   string(previous),
		Plan:           string(plan),
		SubscriptionID: event.SubscriptionID,
		Status:         event.Status,
		Source:         source,
	})
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(publishCtx, envelope); err != nil {
		logger.WithContext(ctx, s.log).Warn("plan change event not published",
			zap.String("account_id", accountID.String()),
			zap.Error(err),
		)
	}
}

func validateSubscriptionEvent(event domain.SubscriptionChanged) error {
	if strings.TrimSpace(event.SubscriptionID) == "" {
		return fmt.Errorf("%w: subscription id missing", domain.ErrInvalidEvent)
	}
	if strings.TrimSpace(event.CustomerID) == "" {
		return fmt.Errorf("%w: customer id missing", domain.ErrInvalidEvent)
	}
	return nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func metadataMap(metadata map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/promptly/internal/clock"
	"github.com/smallbiznis/promptly/internal/config"
	"github.com/smallbiznis/promptly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/promptly/internal/observability/metrics"
	"github.com/smallbiznis/promptly/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	reconcilerdomain "github.com/smallbiznis/promptly/internal/reconciler/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	Reconciler reconcilerdomain.Service
	Cfg        config.Config
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	reconciler reconcilerdomain.Service
	metrics    *obsmetrics.Metrics
	adapters   *adapters.Set
}

type eventHeader struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func NewService(p Params) paymentdomain.Service {
	log := p.Log.Named("payment.webhook")
	return &Service{
		db:         p.DB,
		log:        log,
		clock:      p.Clock,
		genID:      p.GenID,
		repo:       p.Repo,
		reconciler: p.Reconciler,
		metrics:    p.Metrics,
		adapters:   p.Adapters.Build(adapters.ConfigsFrom(p.Cfg), log),
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.metrics.RecordWebhookEvent(ctx, provider, "unknown", "rejected")
		logger.WithContext(ctx, s.log).Warn("webhook signature rejected", zap.String("provider", provider))
		return err
	}

	var header eventHeader
	if err := json.Unmarshal(payload, &header); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(header.ID) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", provider),
		zap.String("event_id", header.ID),
		zap.String("event_type", header.Type),
	)

	record, err := s.claim(ctx, provider, header, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			s.metrics.RecordWebhookEvent(ctx, provider, header.Type, "duplicate")
			log.Debug("webhook event already processed")
		}
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.metrics.RecordWebhookEvent(ctx, provider, header.Type, "ignored")
			return s.finish(ctx, record, paymentdomain.ErrEventIgnored)
		}
		s.metrics.RecordWebhookEvent(ctx, provider, header.Type, "invalid")
		return err
	}

	if err := s.reconciler.Dispatch(ctx, *event); err != nil {
		if !reconcilerdomain.IsRetryable(err) {
			log.Warn("webhook event dropped", zap.Error(err))
			s.metrics.RecordWebhookEvent(ctx, provider, header.Type, "dropped")
			return s.finish(ctx, record, err)
		}
		log.Warn("webhook event failed, awaiting redelivery", zap.Error(err))
		s.metrics.RecordWebhookEvent(ctx, provider, header.Type, "failed")
		return err
	}

	s.metrics.RecordWebhookEvent(ctx, provider, header.Type, "processed")
	log.Info("webhook event processed")
	return s.finish(ctx, record, nil)
}

// claim records the delivery. A redelivery of an event that never finished
// processing reuses the existing row.
func (s *Service) claim(ctx context.Context, provider string, header eventHeader, payload []byte) (*paymentdomain.EventRecord, error) {
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: header.ID,
		EventType:       header.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if inserted {
		return record, nil
	}

	existing, err := s.repo.FindEvent(ctx, s.db, provider, header.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if existing.ProcessedAt != nil {
		return nil, paymentdomain.ErrEventAlreadyProcessed
	}
	return existing, nil
}

func (s *Service) finish(ctx context.Context, record *paymentdomain.EventRecord, result error) error {
	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
		return err
	}
	return result
}

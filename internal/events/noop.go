package events

import (
	"context"

	"go.uber.org/zap"
)

// NoopPublisher drops events. Used when no broker is configured.
type NoopPublisher struct {
	log *zap.Logger
}

func NewNoopPublisher(log *zap.Logger) *NoopPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoopPublisher{log: log.Named("events.noop")}
}

func (p *NoopPublisher) Publish(ctx context.Context, envelope Envelope) error {
	p.log.Debug("event dropped", zap.String("type", envelope.Type), zap.String("id", envelope.ID))
	return nil
}

func (p *NoopPublisher) Close() error { return nil }

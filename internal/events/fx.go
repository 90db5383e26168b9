package events

import (
	"context"

	"github.com/smallbiznis/promptly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher connects to AMQP_URL when set. A broker that is unreachable at
// startup degrades to the noop publisher instead of failing boot.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	var publisher Publisher = NewNoopPublisher(log)
	if cfg.AMQP.URL != "" {
		amqpPublisher, err := NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			log.Warn("amqp unavailable, events will be dropped", zap.Error(err))
		} else {
			publisher = amqpPublisher
		}
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher
}

package pushmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/promptly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultInterval = 5 * time.Minute

var Module = fx.Module("push.metrics",
	fx.Provide(NewPusher),
	fx.Provide(NewSources),
	fx.Invoke(Start),
)

// Worker refreshes the gauges and pushes them on an interval.
type Worker struct {
	registry *prometheus.Registry
	gauges   *Gauges
	sources  *Sources
	pusher   Pusher
	interval time.Duration
	log      *zap.Logger
}

func NewWorker(pusher Pusher, sources *Sources, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	registry := prometheus.NewRegistry()
	return &Worker{
		registry: registry,
		gauges:   newGauges(registry),
		sources:  sources,
		pusher:   pusher,
		interval: interval,
		log:      log.Named("push.metrics"),
	}
}

// Tick runs one refresh and push. Gauge failures are logged and the push
// still goes out with the last known values.
func (w *Worker) Tick(ctx context.Context) error {
	if err := w.gauges.Update(ctx, w.sources); err != nil {
		w.log.Warn("gauge refresh incomplete", zap.Error(err))
	}
	return w.pusher.Push(ctx, w.registry)
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if err := w.Tick(ctx); err != nil {
		w.log.Error("initial metrics push failed", zap.Error(err))
	}
	for {
		select {
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.log.Error("periodic metrics push failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("stopping metrics push worker")
			return
		}
	}
}

func Start(lc fx.Lifecycle, cfg config.Config, pusher Pusher, sources *Sources, log *zap.Logger) {
	if pusher == nil {
		return
	}
	w := NewWorker(pusher, sources, cfg.Metrics.Interval, log)

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.log.Info("starting metrics push worker", zap.Duration("interval", w.interval))
			go w.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

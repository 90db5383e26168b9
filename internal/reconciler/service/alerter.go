package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/promptly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/promptly/internal/observability/metrics"
	"github.com/smallbiznis/promptly/internal/reconciler/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type AlerterParams struct {
	fx.In

	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// LogAlerter reports plan fallbacks as error logs and a counter.
type LogAlerter struct {
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewLogAlerter(p AlerterParams) domain.PlanFallbackAlerter {
	return &LogAlerter{
		log:     p.Log.Named("reconciler.plan_fallback"),
		metrics: p.Metrics,
	}
}

func (a *LogAlerter) PlanFallback(ctx context.Context, fallback domain.PlanFallback) {
	reason := FallbackReason(fallback)
	logger.WithContext(ctx, a.log).Error("subscription plan unresolved, applied free plan",
		zap.String("account_id", fallback.AccountID.String()),
		zap.String("subscription_id", fallback.SubscriptionID),
		zap.Strings("price_ids", fallback.PriceIDs),
		zap.String("metadata_plan", fallback.MetadataPlan),
		zap.String("reason", reason),
	)
	a.metrics.RecordPlanFallback(ctx, reason)
}

func FallbackReason(fallback domain.PlanFallback) string {
	switch {
	case strings.TrimSpace(fallback.MetadataPlan) != "":
		return "unknown_metadata_plan"
	case len(fallback.PriceIDs) > 0:
		return "unmapped_price"
	default:
		return "no_plan_reference"
	}
}

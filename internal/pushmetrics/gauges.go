// Package pushmetrics periodically snapshots account-level gauges and pushes
// them to a prometheus-compatible backend.
package pushmetrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	usagedomain "github.com/smallbiznis/promptly/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Gauges struct {
	accountsByPlan   *prometheus.GaugeVec
	pendingDeferred  prometheus.Gauge
	unprocessedHooks prometheus.Gauge
}

func newGauges(registry *prometheus.Registry) *Gauges {
	g := &Gauges{
		accountsByPlan: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "promptly_accounts",
			Help: "Accounts by plan.",
		}, []string{"plan"}),
		pendingDeferred: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptly_deferred_debits_pending",
			Help: "Deferred debits awaiting settlement.",
		}),
		unprocessedHooks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptly_webhook_events_unprocessed",
			Help: "Received webhook events not yet applied.",
		}),
	}
	registry.MustRegister(g.accountsByPlan, g.pendingDeferred, g.unprocessedHooks)
	return g
}

type SourceParams struct {
	fx.In

	DB       *gorm.DB
	Accounts accountdomain.Service
	Usage    usagedomain.Service
	Payments paymentdomain.Repository
}

// Sources reads the current values behind each gauge.
type Sources struct {
	db       *gorm.DB
	accounts accountdomain.Service
	usage    usagedomain.Service
	payments paymentdomain.Repository
}

func NewSources(p SourceParams) *Sources {
	return &Sources{db: p.DB, accounts: p.Accounts, usage: p.Usage, payments: p.Payments}
}

// Update refreshes every gauge it can; one failing source does not stop the
// others.
func (g *Gauges) Update(ctx context.Context, src *Sources) error {
	var errs []error

	counts, err := src.accounts.CountByPlan(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		g.accountsByPlan.Reset()
		for _, plan := range accountdomain.Plans {
			g.accountsByPlan.WithLabelValues(string(plan)).Set(float64(counts[plan]))
		}
	}

	pending, err := src.usage.PendingDeferred(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		g.pendingDeferred.Set(float64(pending))
	}

	unprocessed, err := src.payments.CountUnprocessed(ctx, src.db)
	if err != nil {
		errs = append(errs, err)
	} else {
		g.unprocessedHooks.Set(float64(unprocessed))
	}

	return errors.Join(errs...)
}

package pushmetrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/config"
	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	usagedomain "github.com/smallbiznis/promptly/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeAccounts struct {
	accountdomain.Service
	counts map[accountdomain.Plan]int64
	err    error
}

func (f fakeAccounts) CountByPlan(context.Context) (map[accountdomain.Plan]int64, error) {
	return f.counts, f.err
}

type fakeUsage struct {
	usagedomain.Service
	pending int64
}

func (f fakeUsage) PendingDeferred(context.Context) (int64, error) { return f.pending, nil }

type fakePayments struct {
	paymentdomain.Repository
	unprocessed int64
}

func (f fakePayments) CountUnprocessed(context.Context, *gorm.DB) (int64, error) {
	return f.unprocessed, nil
}

type capturePusher struct {
	pushed int
}

func (c *capturePusher) Push(_ context.Context, registry *prometheus.Registry) error {
	c.pushed++
	return nil
}

func TestGaugesUpdate(t *testing.T) {
	registry := prometheus.NewRegistry()
	g := newGauges(registry)
	src := &Sources{
		accounts: fakeAccounts{counts: map[accountdomain.Plan]int64{accountdomain.PlanFree: 10, accountdomain.PlanPro: 3}},
		usage:    fakeUsage{pending: 2},
		payments: fakePayments{unprocessed: 1},
	}

	require.NoError(t, g.Update(context.Background(), src))
	assert.Equal(t, 10.0, testutil.ToFloat64(g.accountsByPlan.WithLabelValues("free")))
	assert.Equal(t, 3.0, testutil.ToFloat64(g.accountsByPlan.WithLabelValues("pro")))
	assert.Equal(t, 0.0, testutil.ToFloat64(g.accountsByPlan.WithLabelValues("elite")))
	assert.Equal(t, 2.0, testutil.ToFloat64(g.pendingDeferred))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.unprocessedHooks))
}

func TestGaugesUpdatePartialFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	g := newGauges(registry)
	boom := errors.New("db down")
	src := &Sources{
		accounts: fakeAccounts{err: boom},
		usage:    fakeUsage{pending: 4},
		payments: fakePayments{},
	}

	err := g.Update(context.Background(), src)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4.0, testutil.ToFloat64(g.pendingDeferred))
}

func TestWorkerTickPushesEvenWhenGaugesFail(t *testing.T) {
	pusher := &capturePusher{}
	src := &Sources{
		accounts: fakeAccounts{err: errors.New("nope")},
		usage:    fakeUsage{},
		payments: fakePayments{},
	}
	w := NewWorker(pusher, src, 0, zap.NewNop())

	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, 1, pusher.pushed)
	assert.Equal(t, defaultInterval, w.interval)
}

func TestRemoteWritePush(t *testing.T) {
	var got prompb.WriteRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := got.Unmarshal(decoded); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	g := newGauges(registry)
	g.pendingDeferred.Set(7)

	p := NewRemoteWritePusher(server.URL, "tok", map[string]string{"service": "promptly", "environment": ""})
	require.NoError(t, p.Push(context.Background(), registry))
	assert.Equal(t, "Bearer tok", auth)

	var found bool
	for _, ts := range got.Timeseries {
		names := map[string]string{}
		for _, l := range ts.Labels {
			names[l.Name] = l.Value
		}
		if names["__name__"] != "promptly_deferred_debits_pending" {
			continue
		}
		found = true
		assert.Equal(t, 7.0, ts.Samples[0].Value)
		assert.Equal(t, "promptly", names["service"])
		assert.NotContains(t, names, "environment")
	}
	assert.True(t, found)
}

func TestRemoteWritePushRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	newGauges(registry)
	assert.Error(t, NewRemoteWritePusher(server.URL, "", nil).Push(context.Background(), registry))
}

func TestNewPusher(t *testing.T) {
	log := zap.NewNop()
	assert.Nil(t, NewPusher(config.Config{}, log))
	assert.Nil(t, NewPusher(config.Config{Metrics: config.MetricsPushConfig{Enabled: true}}, log))
	assert.Nil(t, NewPusher(config.Config{Metrics: config.MetricsPushConfig{Enabled: true, Exporter: "statsd", Endpoint: "x"}}, log))

	rw := NewPusher(config.Config{Metrics: config.MetricsPushConfig{
		Enabled: true, Exporter: exporterPrometheusRemoteWrite, Endpoint: "http://prom:9090/api/v1/write",
	}}, log)
	assert.IsType(t, &RemoteWritePusher{}, rw)

	pg := NewPusher(config.Config{AppName: "promptly", Metrics: config.MetricsPushConfig{
		Enabled: true, Exporter: exporterPrometheusPushgateway, Endpoint: "http://pushgateway:9091",
	}}, log)
	assert.IsType(t, &PushgatewayPusher{}, pg)
}

func TestPusherFromConfigErrors(t *testing.T) {
	_, err := pusherFromConfig(config.Config{Metrics: config.MetricsPushConfig{Enabled: true}})
	assert.ErrorIs(t, err, ErrExporterRequired)

	_, err = pusherFromConfig(config.Config{Metrics: config.MetricsPushConfig{Enabled: true, Exporter: exporterPrometheusPushgateway}})
	assert.ErrorIs(t, err, ErrEndpointRequired)

	_, err = pusherFromConfig(config.Config{Metrics: config.MetricsPushConfig{Enabled: true, Exporter: "statsd", Endpoint: "x"}})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestBuildRemoteWriteSeriesKeepsOwnLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	g := newGauges(registry)
	g.accountsByPlan.WithLabelValues("pro").Set(3)
	families, err := registry.Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, map[string]string{"plan": "override", "service": "promptly"}, 1000)
	var matched int
	for _, ts := range series {
		names := map[string]string{}
		for _, l := range ts.Labels {
			names[l.Name] = l.Value
		}
		if names["__name__"] != "promptly_accounts" {
			continue
		}
		matched++
		assert.Equal(t, "pro", names["plan"])
		assert.Equal(t, "promptly", names["service"])
		assert.Equal(t, int64(1000), ts.Samples[0].Timestamp)
	}
	assert.Equal(t, 1, matched)
}

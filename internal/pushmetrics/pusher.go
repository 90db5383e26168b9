package pushmetrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/promptly/internal/config"
	obstracing "github.com/smallbiznis/promptly/internal/observability/tracing"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	exporterPrometheusRemoteWrite = "prometheus_remote_write"
	exporterPrometheusPushgateway = "prometheus_pushgateway"
	defaultPushTimeout            = 5 * time.Second
)

var (
	ErrExporterRequired = errors.New("metrics push exporter is required")
	ErrEndpointRequired = errors.New("metrics push endpoint is required")
	ErrUnknownExporter  = errors.New("unknown metrics push exporter")
)

// Pusher ships a registry snapshot to a metrics backend. Implementations do
// not run goroutines of their own.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// NewPusher builds a pusher from config. A bad config is logged and yields
// nil so the API keeps serving.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Metrics.Enabled {
		return nil
	}
	p, err := pusherFromConfig(cfg)
	if err != nil {
		logger.Warn("metrics push disabled", zap.String("exporter", cfg.Metrics.Exporter), zap.Error(err))
		return nil
	}
	return p
}

func pusherFromConfig(cfg config.Config) (Pusher, error) {
	exporter := strings.ToLower(strings.TrimSpace(cfg.Metrics.Exporter))
	endpoint := strings.TrimSpace(cfg.Metrics.Endpoint)
	if exporter == "" {
		return nil, ErrExporterRequired
	}
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}

	// A pushed sample has no scrape target, so identify the process here.
	identity := map[string]string{
		"service":     strings.TrimSpace(cfg.AppName),
		"environment": strings.TrimSpace(cfg.Environment),
	}

	switch exporter {
	case exporterPrometheusRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEndpointRequired, err)
		}
		return NewRemoteWritePusher(endpoint, cfg.Metrics.AuthToken, identity), nil
	case exporterPrometheusPushgateway:
		return NewPushgatewayPusher(endpoint, cfg.AppName, identity), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, exporter)
	}
}

// RemoteWritePusher sends gauges and counters to a remote_write endpoint.
type RemoteWritePusher struct {
	endpoint   string
	authToken  string
	external   map[string]string
	httpClient *http.Client
	now        func() time.Time
}

func NewRemoteWritePusher(endpoint, authToken string, external map[string]string) *RemoteWritePusher {
	return &RemoteWritePusher{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(authToken),
		external:  external,
		httpClient: obstracing.WrapHTTPClient(&http.Client{
			Timeout: defaultPushTimeout,
		}),
		now: time.Now,
	}
}

func (p *RemoteWritePusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}

	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	series := buildRemoteWriteSeries(families, p.external, p.now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	payload, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(snappy.Encode(nil, payload)))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

// PushgatewayPusher replaces this process's group on a Pushgateway.
type PushgatewayPusher struct {
	endpoint   string
	job        string
	grouping   map[string]string
	httpClient *http.Client
}

func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	job = strings.TrimSpace(job)
	if job == "" {
		job = "promptly"
	}
	return &PushgatewayPusher{
		endpoint: strings.TrimSpace(endpoint),
		job:      job,
		grouping: grouping,
		httpClient: obstracing.WrapHTTPClient(&http.Client{
			Timeout: defaultPushTimeout,
		}),
	}
}

func (p *PushgatewayPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	if p.endpoint == "" {
		return ErrEndpointRequired
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(registry).Client(p.httpClient)
	keys := make([]string, 0, len(p.grouping))
	for key := range p.grouping {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		name, value := strings.TrimSpace(key), strings.TrimSpace(p.grouping[key])
		if name == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(name, value)
	}
	return pusher.PushContext(ctx)
}

// buildRemoteWriteSeries flattens counters and gauges. Histograms and
// summaries are not pushed.
func buildRemoteWriteSeries(families []*dto.MetricFamily, external map[string]string, timestampMs int64) []prompb.TimeSeries {
	series := make([]prompb.TimeSeries, 0, len(families))
	for _, family := range families {
		switch family.GetType() {
		case dto.MetricType_COUNTER, dto.MetricType_GAUGE:
		default:
			continue
		}
		for _, metric := range family.GetMetric() {
			value := extractMetricValue(family.GetType(), metric)
			if value == nil {
				continue
			}
			labels := make([]prompb.Label, 0, len(metric.GetLabel())+len(external)+1)
			labels = append(labels, prompb.Label{Name: "__name__", Value: family.GetName()})
			own := make(map[string]struct{}, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				own[label.GetName()] = struct{}{}
				labels = append(labels, prompb.Label{Name: label.GetName(), Value: label.GetValue()})
			}
			for name, value := range external {
				if _, clash := own[name]; clash || value == "" {
					continue
				}
				labels = append(labels, prompb.Label{Name: name, Value: value})
			}
			sort.Slice(labels, func(i, j int) bool {
				return labels[i].Name < labels[j].Name
			})

			series = append(series, prompb.TimeSeries{
				Labels: labels,
				Samples: []prompb.Sample{{
					Value:     *value,
					Timestamp: timestampMs,
				}},
			})
		}
	}
	return series
}

func extractMetricValue(metricType dto.MetricType, metric *dto.Metric) *float64 {
	if metric == nil {
		return nil
	}
	switch metricType {
	case dto.MetricType_COUNTER:
		if metric.GetCounter() == nil {
			return nil
		}
		value := metric.GetCounter().GetValue()
		return &value
	case dto.MetricType_GAUGE:
		if metric.GetGauge() == nil {
			return nil
		}
		value := metric.GetGauge().GetValue()
		return &value
	default:
		return nil
	}
}

package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("plan", "pro"),
		attribute.String("account_id", "456"),
		attribute.String("outcome", "reset"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "account_id" {
			t.Fatalf("account_id must not be used as a metric label")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordDebit(context.Background(), "free", 1)
	m.RecordPlanFallback(context.Background(), "unknown_price")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "promptly"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m.RecordDebit(context.Background(), "pro", 3)
	m.RecordWebhookEvent(context.Background(), "stripe", "invoice.payment_succeeded", "processed")
}

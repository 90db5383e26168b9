package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "lock_held", err: fmt.Errorf("reset_due_credits: %w", ErrLockHeld), want: SchedulerJobReasonLockHeld},
		{name: "partial", err: fmt.Errorf("2 accounts failed: %w", ErrPartialFailure), want: SchedulerJobReasonPartialFailure},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "promptly",
		Environment: "test",
	})

	metrics.AddBatchProcessed("reset_due_credits", "accounts", 3, 1)

	if got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("reset_due_credits", "accounts")); got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.batchFailed.WithLabelValues("reset_due_credits", "accounts")); got != 1 {
		t.Fatalf("expected failed count 1, got %v", got)
	}
}

func TestMarkSuccess(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{})
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	metrics.MarkSuccess("settle_deferred_debits", at)

	if got := testutil.ToFloat64(metrics.lastSuccess.WithLabelValues("settle_deferred_debits")); got != float64(at.Unix()) {
		t.Fatalf("expected timestamp %d, got %v", at.Unix(), got)
	}
}

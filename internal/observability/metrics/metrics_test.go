package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bsm/redislock"
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
		{name: "deadline", err: fmt.Errorf("run: %w", context.DeadlineExceeded), want: SchedulerJobReasonDeadlineExceeded},
		{name: "lock", err: redislock.ErrNotObtained, want: SchedulerJobReasonLockNotObtained},
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

func TestSchedulerObserveJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newSchedulerMetrics(reg, Config{ServiceName: "test"})

	m.ObserveJob("dispatch_notifications", 10*time.Millisecond, nil)
	m.ObserveJob("dispatch_notifications", time.Second, context.DeadlineExceeded)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("dispatch_notifications")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobTimeouts.WithLabelValues("dispatch_notifications")); got != 1 {
		t.Fatalf("expected 1 timeout, got %v", got)
	}
}

func TestDomainCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, Config{})

	m.RecordCreditMovement("consumption", "active")
	m.RecordOrderTransition("pending", "cancelled")
	m.RecordStockRejection("reserve")

	if got := testutil.ToFloat64(m.creditMovements.WithLabelValues("consumption", "active")); got != 1 {
		t.Fatalf("expected 1 movement, got %v", got)
	}
	if got := testutil.ToFloat64(m.stockRejections.WithLabelValues("reserve")); got != 1 {
		t.Fatalf("expected 1 rejection, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordNotification("email", "sent")
}

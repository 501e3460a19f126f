package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/clock"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	notificationrepository "github.com/smallbiznis/bistro/internal/notification/repository"
	notificationservice "github.com/smallbiznis/bistro/internal/notification/service"
	obsmetrics "github.com/smallbiznis/bistro/internal/observability/metrics"
	"github.com/smallbiznis/bistro/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDispatcher struct {
	notificationdomain.Service
	calls    int
	dispatch func(ctx context.Context, call int, limit int) (notificationdomain.DispatchResult, error)
}

func (s *stubDispatcher) DispatchDue(ctx context.Context, limit int) (notificationdomain.DispatchResult, error) {
	s.calls++
	return s.dispatch(ctx, s.calls, limit)
}

func newTestScheduler(t *testing.T, svc notificationdomain.Service, cfg Config, reg *prometheus.Registry) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	s, err := New(Params{
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clock.SystemClock{},
		Notifications: svc,
		Config:        cfg,
		Metrics:       obsmetrics.NewSchedulerWithRegistry(reg, obsmetrics.Config{ServiceName: "bistro", Environment: "test"}),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	registry := prometheus.NewRegistry()
	stub := &stubDispatcher{dispatch: func(ctx context.Context, _ int, _ int) (notificationdomain.DispatchResult, error) {
		<-ctx.Done()
		return notificationdomain.DispatchResult{}, ctx.Err()
	}}
	s := newTestScheduler(t, stub, Config{JobTimeout: 5 * time.Millisecond}, registry)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{"service": "bistro", "env": "test", "job": "dispatch_notifications"}
	if got := getCounterValue(t, registry, "bistro_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}
	errorLabels := map[string]string{
		"service": "bistro",
		"env":     "test",
		"job":     "dispatch_notifications",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "bistro_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestDispatchDrainsFullBatches(t *testing.T) {
	registry := prometheus.NewRegistry()
	stub := &stubDispatcher{dispatch: func(_ context.Context, call int, limit int) (notificationdomain.DispatchResult, error) {
		if call < 3 {
			return notificationdomain.DispatchResult{Claimed: limit, Sent: limit}, nil
		}
		return notificationdomain.DispatchResult{Claimed: 1, Retrying: 1}, nil
	}}
	s := newTestScheduler(t, stub, Config{BatchSize: 2}, registry)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 3, stub.calls)

	labels := map[string]string{"service": "bistro", "env": "test", "job": "dispatch_notifications"}
	assert.Equal(t, float64(5), getCounterValue(t, registry, "bistro_scheduler_items_processed_total", labels))
	assert.Equal(t, float64(1), getCounterValue(t, registry, "bistro_scheduler_job_runs_total", labels))
}

func TestRunOnceReportsJobErrors(t *testing.T) {
	boom := errors.New("boom")
	stub := &stubDispatcher{dispatch: func(context.Context, int, int) (notificationdomain.DispatchResult, error) {
		return notificationdomain.DispatchResult{}, boom
	}}
	s := newTestScheduler(t, stub, Config{}, prometheus.NewRegistry())

	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "dispatch_notifications")
}

func TestEnabledJobsFilter(t *testing.T) {
	stub := &stubDispatcher{dispatch: func(context.Context, int, int) (notificationdomain.DispatchResult, error) {
		return notificationdomain.DispatchResult{}, nil
	}}
	s := newTestScheduler(t, stub, Config{EnabledJobs: []string{"something_else"}}, prometheus.NewRegistry())
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, stub.calls)

	s = newTestScheduler(t, stub, Config{EnabledJobs: []string{" Dispatch_Notifications "}}, prometheus.NewRegistry())
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, stub.calls)
}

type flakySender struct {
	failures int
	sent     []snowflake.ID
}

func (f *flakySender) Send(_ context.Context, n notificationdomain.Notification) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, n.ID)
	return nil
}

func TestDispatchJobSendsQueuedNotifications(t *testing.T) {
	db := testutil.OpenDB(t, &notificationdomain.Notification{}, &notificationdomain.Preference{}, &notificationdomain.Channel{})
	fc := clock.NewFakeClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	sender := &flakySender{failures: 1}
	svc := notificationservice.New(notificationservice.Params{
		DB: db, Log: zap.NewNop(), GenID: testutil.Node(t), Clock: fc,
		Repo:   notificationrepository.Provide(),
		Sender: sender,
	})

	ctx := actorcontext.WithSystem(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Notify(ctx, nil, notificationdomain.NotifyRequest{
			UserID: snowflake.ID(100 + i),
			Event:  notificationdomain.EventOrderCreated,
		}))
	}

	s := newTestScheduler(t, svc, Config{BatchSize: 2}, prometheus.NewRegistry())
	s.clock = fc
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Len(t, sender.sent, 2)

	fc.Advance(5 * time.Minute)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Len(t, sender.sent, 3)

	var pending int64
	require.NoError(t, db.Model(&notificationdomain.Notification{}).
		Where("status <> ?", notificationdomain.StatusSent).Count(&pending).Error)
	assert.Zero(t, pending)
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

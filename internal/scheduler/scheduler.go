package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/distlock"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/bistro/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const lockPrefix = "bistro:scheduler:"

type Params struct {
	fx.In

	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Notifications notificationdomain.Service
	Config        Config                       `optional:"true"`
	Locker        *redislock.Client            `optional:"true"`
	Metrics       *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	notifications notificationdomain.Service
	locker        *redislock.Client
	metrics       *obsmetrics.SchedulerMetrics
}

type job struct {
	name string
	run  func(ctx context.Context, run *jobRun) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Notifications == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		notifications: p.Notifications,
		locker:        p.Locker,
		metrics:       p.Metrics,
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: "dispatch_notifications", run: s.DispatchNotificationsJob},
	}
}

// RunOnce runs every enabled job a single time and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)

	for {
		if lag := time.Since(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, j job) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, j.name)
	log := s.logger(ctx).With(zap.String("job", j.name), zap.String("run_id", run.runID))

	err := distlock.Run(ctx, s.locker, lockPrefix+j.name, s.cfg.LockTTL, func(ctx context.Context) error {
		log.Debug("scheduler job started", zap.Int("batch_size", s.cfg.BatchSize))
		err := j.run(ctx, run)
		run.finish(s.logger(ctx), s.clock.Now(), err)
		return err
	})
	if errors.Is(err, distlock.ErrBusy) {
		log.Debug("job skipped, lock held elsewhere")
		return nil
	}

	s.metrics.ObserveJob(j.name, time.Since(start), err)
	s.metrics.AddProcessed(j.name, run.processed)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the remainder
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", j.name, err)
}

func (s *Scheduler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), name) {
			return true
		}
	}
	return false
}

// DispatchNotificationsJob drains due notifications batch by batch until a
// batch comes back short.
func (s *Scheduler) DispatchNotificationsJob(ctx context.Context, run *jobRun) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.notifications.DispatchDue(ctx, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		run.AddProcessed(res.Sent + res.Retrying + res.Failed)
		if res.Failed > 0 {
			s.logger(ctx).Warn("notifications exhausted retries", zap.Int("failed", res.Failed))
		}
		if res.Claimed < s.cfg.BatchSize {
			return nil
		}
	}
}

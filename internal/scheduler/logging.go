package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/bistro/internal/actorcontext"
	obslogger "github.com/smallbiznis/bistro/internal/observability/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// jobRun tracks one execution of a job. Its id doubles as the request id of
// everything the run writes.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	processed int
	errors    int
}

func (r *jobRun) AddProcessed(n int) {
	if r != nil && n > 0 {
		r.processed += n
	}
}

func (s *Scheduler) newJobRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = obslogger.WithRequestID(actorcontext.WithSystem(ctx), run.runID)
	return ctx, run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (r *jobRun) fields(now time.Time) []zap.Field {
	return []zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.runID),
		zap.Duration("elapsed", now.Sub(r.startedAt)),
		zap.Int("processed", r.processed),
		zap.Int("errors", r.errors),
	}
}

// finish logs the outcome. Idle runs log at debug.
func (r *jobRun) finish(log *zap.Logger, now time.Time, err error) {
	level := zapcore.DebugLevel
	switch {
	case err != nil:
		r.errors++
		level = zapcore.WarnLevel
	case r.processed > 0:
		level = zapcore.InfoLevel
	}
	fields := r.fields(now)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	log.Log(level, "scheduler job finished", fields...)
}

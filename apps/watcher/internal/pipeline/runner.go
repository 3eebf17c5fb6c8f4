package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

// Locker hands out the run-level lease. Acquire returns model.ErrRunInProgress
// when another process holds it.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type runnable interface {
	Run(ctx context.Context) (Report, error)
}

// Runner invokes the pipeline once or on a fixed interval until ctx ends.
type Runner struct {
	pipeline runnable
	locker   Locker
	lockKey  string
	interval time.Duration
	logger   *zap.Logger

	lastReport atomicReport
}

func NewRunner(pipeline runnable, interval time.Duration, logger *zap.Logger) *Runner {
	return &Runner{pipeline: pipeline, interval: interval, logger: logger}
}

// WithLock makes every run hold the lease stored under key.
func (r *Runner) WithLock(locker Locker, key string) *Runner {
	r.locker = locker
	r.lockKey = key
	return r
}

// RunOnce performs a single guarded run.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, r.lockKey)
		if err != nil {
			return Report{Outcome: OutcomeSkipped}, err
		}
		defer release()
	}

	report, err := r.pipeline.Run(ctx)
	r.lastReport.Store(report)
	return report, err
}

// Start runs immediately and then on every tick until ctx is cancelled. Run
// failures are logged and retried on the next tick.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("Starting transfer watcher", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.tick(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("Transfer watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	report, err := r.RunOnce(ctx)
	switch {
	case errors.Is(err, model.ErrRunInProgress):
		r.logger.Info("Another run holds the lease, skipping")
	case err != nil && ctx.Err() != nil:
		r.logger.Info("Run interrupted by shutdown", zap.Uint64("checkpoint", report.LastCommitted))
	case err != nil:
		r.logger.Error("Run failed", zap.String("outcome", report.Outcome), zap.Uint64("checkpoint", report.LastCommitted), zap.Error(err))
	}
}

// State reports the pipeline step in progress, or idle when the wrapped
// pipeline does not expose one.
func (r *Runner) State() State {
	if s, ok := r.pipeline.(interface{ State() State }); ok {
		return s.State()
	}
	return StateIdle
}

// LastReport returns the report of the most recent completed run.
func (r *Runner) LastReport() (Report, bool) {
	return r.lastReport.Load()
}

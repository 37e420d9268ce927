package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

// Job is one pass of a periodic background task.
type Job func(ctx context.Context) error

// Periodic runs a Job on a fixed interval as a suture service.
// Job errors are logged and the loop keeps going.
type Periodic struct {
	name       string
	interval   time.Duration
	job        Job
	logger     logger.Logger
	runOnStart bool
	trigger    chan struct{}
}

type PeriodicOption func(*Periodic)

// RunOnStart runs the job once before the first tick.
func RunOnStart() PeriodicOption {
	return func(p *Periodic) { p.runOnStart = true }
}

func NewPeriodic(name string, interval time.Duration, job Job, log logger.Logger, opts ...PeriodicOption) *Periodic {
	p := &Periodic{
		name:     name,
		interval: interval,
		job:      job,
		logger:   log.With(logger.String("job", name)),
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Serve implements suture.Service.
func (p *Periodic) Serve(ctx context.Context) error {
	if p.runOnStart {
		p.run(ctx, "startup")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.run(ctx, "interval")
		case <-p.trigger:
			p.logger.Info("manual run triggered")
			p.run(ctx, "manual")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Periodic) run(ctx context.Context, reason string) {
	start := time.Now()
	if err := p.job(ctx); err != nil {
		p.logger.Error("periodic job failed",
			logger.String("reason", reason),
			logger.Error(err))
		return
	}
	p.logger.Debug("periodic job completed",
		logger.String("reason", reason),
		logger.Duration("elapsed", time.Since(start)))
}

// Trigger queues one manual run. It returns false when a run is already queued.
func (p *Periodic) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer for suture logs.
func (p *Periodic) String() string { return p.name }

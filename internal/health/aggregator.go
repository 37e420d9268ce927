package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Recorder persists aggregate results for audit history.
type Recorder interface {
	SaveResult(ctx context.Context, result *domain.HealthCheckResult) error
}

type AggregatorConfig struct {
	// Timeout bounds one whole pass; a sub-check still running is unhealthy.
	Timeout time.Duration
	// MaxResultAge is how long Last() may stand in for a fresh pass.
	MaxResultAge time.Duration
}

// Aggregator runs the registered sub-checks and folds them into one status.
type Aggregator struct {
	config   AggregatorConfig
	recorder Recorder
	logger   logger.Logger

	mu       sync.RWMutex
	checkers map[string]Checker

	flight singleflight.Group
	last   atomic.Pointer[domain.HealthCheckResult]
}

// NewAggregator creates an aggregator. recorder may be nil.
func NewAggregator(cfg AggregatorConfig, recorder Recorder, log logger.Logger) *Aggregator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxResultAge <= 0 {
		cfg.MaxResultAge = 30 * time.Second
	}
	return &Aggregator{
		config:   cfg,
		recorder: recorder,
		logger:   log,
		checkers: make(map[string]Checker),
	}
}

// Register adds or replaces the sub-check under its own name.
func (a *Aggregator) Register(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers[checker.Name()] = checker
}

func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.checkers, name)
}

// Has reports whether a dedicated sub-check exists for name.
func (a *Aggregator) Has(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.checkers[name]
	return ok
}

// CheckerNames returns the registered sub-check names, sorted.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	names := make([]string, 0, len(a.checkers))
	for name := range a.checkers {
		names = append(names, name)
	}
	a.mu.RUnlock()
	sort.Strings(names)
	return names
}

// PerformHealthCheck runs every sub-check in parallel and never fails.
// Concurrent callers share a single pass.
func (a *Aggregator) PerformHealthCheck(ctx context.Context) *domain.HealthCheckResult {
	v, _, _ := a.flight.Do("aggregate", func() (any, error) {
		return a.perform(ctx), nil
	})
	return v.(*domain.HealthCheckResult)
}

func (a *Aggregator) perform(ctx context.Context) *domain.HealthCheckResult {
	a.mu.RLock()
	checkers := make(map[string]Checker, len(a.checkers))
	for name, c := range a.checkers {
		checkers[name] = c
	}
	a.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(checkers))
		g       errgroup.Group
	)
	for name, checker := range checkers {
		g.Go(func() error {
			r := runCheck(ctx, checker)
			mu.Lock()
			results[name] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := &domain.HealthCheckResult{
		ID:        uuid.NewString(),
		Status:    OverallStatus(results),
		Checks:    make(map[string]domain.CheckResult, len(results)),
		Timestamp: start,
		Duration:  time.Since(start),
	}
	for name, r := range results {
		out.Checks[name] = r.CheckResult()
	}
	a.last.Store(out)

	if out.Status != domain.StatusHealthy {
		a.logger.Warn("aggregate health not healthy",
			logger.String("status", string(out.Status)),
			logger.Strings("checks", out.NonHealthy()))
	}

	if a.recorder != nil {
		// Persist on a fresh context: the pass deadline may already be spent.
		saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer saveCancel()
		if err := a.recorder.SaveResult(saveCtx, out); err != nil {
			a.logger.Warn("failed to persist health result",
				logger.String("result_id", out.ID),
				logger.Error(err))
		}
	}

	return out
}

// Last returns the most recent aggregate, or nil before the first pass.
func (a *Aggregator) Last() *domain.HealthCheckResult {
	return a.last.Load()
}

// CheckOne runs a single named sub-check.
func (a *Aggregator) CheckOne(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	checker, ok := a.checkers[name]
	a.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrCheckerNotFound, name)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	return runCheck(ctx, checker), nil
}

// ServiceHealth returns the aggregator's entry for one service.
// A dedicated sub-check is run directly; otherwise the overall status of a
// recent aggregate (or a fresh pass) stands in for the service.
func (a *Aggregator) ServiceHealth(ctx context.Context, name string) domain.CheckResult {
	if r, err := a.CheckOne(ctx, name); err == nil {
		return r.CheckResult()
	}

	last := a.Last()
	if last == nil || time.Since(last.Timestamp) > a.config.MaxResultAge {
		last = a.PerformHealthCheck(ctx)
	}
	return domain.CheckResult{
		Status:  last.Status,
		Message: "overall status, no dedicated check",
		Latency: last.Duration,
	}
}

// OverallStatus folds sub-check results: any unhealthy wins, then any degraded.
func OverallStatus(results map[string]Result) domain.HealthStatus {
	hasDegraded := false
	for _, r := range results {
		switch r.Status {
		case domain.StatusUnhealthy:
			return domain.StatusUnhealthy
		case domain.StatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return domain.StatusDegraded
	}
	return domain.StatusHealthy
}

// runCheck bounds checker by ctx and turns panics into unhealthy results.
func runCheck(ctx context.Context, checker Checker) Result {
	start := time.Now()
	resultCh := make(chan Result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				resultCh <- Unhealthy("check panicked", fmt.Errorf("%w: panic: %v", ErrCheckFailed, p))
			}
		}()
		resultCh <- checker.Check(ctx)
	}()

	var result Result
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		result = Unhealthy("check timed out", domain.ErrCheckTimeout)
	}
	result.Duration = time.Since(start)
	if result.Timestamp.IsZero() {
		result.Timestamp = start
	}
	if result.Status == "" || result.Status == domain.StatusUnknown {
		result.Status = domain.StatusUnhealthy
		if result.Message == "" {
			result.Message = "check reported no status"
		}
	}
	return result
}

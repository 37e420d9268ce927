package supervisor

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"github.com/MrSnakeDoc/sentinel/internal/scheduler"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrSnakeDoc/sentinel/internal/supervisor"

// HealthSource is the aggregator view used when a service has no probe.
type HealthSource interface {
	ServiceHealth(ctx context.Context, name string) domain.CheckResult
}

// Scanner runs the global aggregate pass.
type Scanner interface {
	PerformHealthCheck(ctx context.Context) *domain.HealthCheckResult
	Has(name string) bool
}

// MetricsClient reports CPU utilization as a fraction of one core.
type MetricsClient interface {
	CPUUtilization(ctx context.Context, service string) (float64, error)
}

// AnomalyScorer serves scores and collects feedback.
type AnomalyScorer interface {
	Score(service string) (float64, error)
	Ingest(rec domain.FeedbackRecord)
	Forget(service string)
}

// Alerter raises escalations. It must not panic.
type Alerter interface {
	Raise(service string, cause error, severity domain.Severity) bool
}

// Observer receives per-service metrics.
type Observer interface {
	ObserveCheck(service string, healthy bool, d time.Duration)
	SetFailedChecks(service string, n int)
	ObserveRestart(service string, err error)
	SetRegistered(n int)
	ForgetService(service string)
}

// Config holds the supervisor thresholds.
type Config struct {
	CPUThreshold     float64
	AnomalyThreshold float64
	CheckTimeout     time.Duration
	RestartTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.CPUThreshold <= 0 {
		c.CPUThreshold = 0.9
	}
	if c.AnomalyThreshold <= 0 {
		c.AnomalyThreshold = 0.8
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 10 * time.Second
	}
	if c.RestartTimeout <= 0 {
		c.RestartTimeout = 30 * time.Second
	}
	return c
}

// Deps are the collaborators of the supervisor. Every field is optional
// except Logger.
type Deps struct {
	Health   HealthSource
	Scanner  Scanner
	Metrics  MetricsClient
	Scorer   AnomalyScorer
	Alerter  Alerter
	Observer Observer
	Tracer   trace.Tracer
	Logger   logger.Logger
}

// Supervisor is the service registry. It owns one timer per enabled
// service and every status transition of its entries.
type Supervisor struct {
	cfg      Config
	health   HealthSource
	scanner  Scanner
	metrics  MetricsClient
	scorer   AnomalyScorer
	alerter  Alerter
	observer Observer
	tracer   trace.Tracer
	logger   logger.Logger

	group *scheduler.Group
	seq   atomic.Uint64

	mu      sync.RWMutex
	entries map[string]*entry
	stopped bool

	now func() time.Time
}

func New(cfg Config, deps Deps) *Supervisor {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		health:   deps.Health,
		scanner:  deps.Scanner,
		metrics:  deps.Metrics,
		scorer:   deps.Scorer,
		alerter:  deps.Alerter,
		observer: deps.Observer,
		tracer:   deps.Tracer,
		logger:   deps.Logger,
		group:    scheduler.NewGroup(context.Background()),
		entries:  make(map[string]*entry),
		now:      time.Now,
	}
}

// Register adds a service and starts its timer. A name that is already
// registered is rejected with *domain.DuplicateServiceError and the
// existing entry is left untouched. A dependency list that leads back to
// the service is rejected with *domain.DependencyCycleError.
func (s *Supervisor) Register(cfg domain.ServiceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return domain.ErrSupervisorStopped
	}
	if _, ok := s.entries[cfg.Name]; ok {
		return &domain.DuplicateServiceError{Name: cfg.Name}
	}
	if cycle := s.cycleThrough(cfg); cycle != nil {
		return &domain.DependencyCycleError{Path: cycle}
	}

	e := newEntry(cfg, s.seq.Add(1))
	if !cfg.Disabled {
		err := s.group.Start(e.ticker, cfg.HealthCheckInterval, func(ctx context.Context) {
			s.checkHealth(ctx, e, "scheduled")
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", cfg.Name, err)
		}
	}
	s.entries[cfg.Name] = e
	s.observer.SetRegistered(len(s.entries))

	s.logger.Info("service registered",
		logger.String("service", cfg.Name),
		logger.Duration("interval", cfg.HealthCheckInterval),
		logger.Int("max_retries", cfg.MaxRetries),
		logger.String("restart_strategy", string(cfg.RestartStrategy)),
		logger.Bool("critical", cfg.CriticalService),
		logger.Bool("disabled", cfg.Disabled))
	return nil
}

// cycleThrough walks the registered graph as if cfg were added.
// Caller holds s.mu.
func (s *Supervisor) cycleThrough(cfg domain.ServiceConfig) []string {
	if len(cfg.Dependencies) == 0 {
		return nil
	}
	return domain.DependencyCycle(cfg.Name, func(name string) []string {
		if name == cfg.Name {
			return cfg.Dependencies
		}
		if e, ok := s.entries[name]; ok {
			return e.cfg.Dependencies
		}
		return nil
	})
}

// Unregister stops the service's timer and drops its entry. It is rejected
// with *domain.DependencyConflictError while another enabled service lists
// name as a dependency.
func (s *Supervisor) Unregister(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrServiceNotFound, name)
	}

	var dependents []string
	for other, oe := range s.entries {
		if other == name || oe.cfg.Disabled {
			continue
		}
		if oe.cfg.DependsOn(name) {
			dependents = append(dependents, other)
		}
	}
	if len(dependents) > 0 {
		s.mu.Unlock()
		sort.Strings(dependents)
		return &domain.DependencyConflictError{Name: name, Dependents: dependents}
	}

	delete(s.entries, name)
	s.observer.SetRegistered(len(s.entries))
	s.mu.Unlock()

	// Stop waits for an in-flight check, which may itself read the registry.
	s.group.Stop(e.ticker)

	if s.scorer != nil {
		s.scorer.Forget(name)
	}
	if f, ok := s.alerter.(interface{ Forget(string) }); ok {
		f.Forget(name)
	}
	s.observer.ForgetService(name)

	s.logger.Info("service unregistered", logger.String("service", name))
	return nil
}

// Has reports whether name is registered.
func (s *Supervisor) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[name]
	return ok
}

func (s *Supervisor) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrServiceNotFound, name)
	}
	return e, nil
}

// Running reports whether the service currently owns a timer.
func (s *Supervisor) Running(name string) bool {
	e, err := s.lookup(name)
	if err != nil {
		return false
	}
	return s.group.Running(e.ticker)
}

// GetServicesStatus returns a snapshot of every service, sorted by name.
func (s *Supervisor) GetServicesStatus() []domain.ServiceSnapshot {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]domain.ServiceSnapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	slices.SortFunc(out, func(a, b domain.ServiceSnapshot) int {
		switch {
		case a.Config.Name < b.Config.Name:
			return -1
		case a.Config.Name > b.Config.Name:
			return 1
		}
		return 0
	})
	return out
}

// GetServiceStatus returns one service's snapshot.
func (s *Supervisor) GetServiceStatus(name string) (domain.ServiceSnapshot, error) {
	e, err := s.lookup(name)
	if err != nil {
		return domain.ServiceSnapshot{}, err
	}
	return e.snapshot(), nil
}

// TriggerHealthCheck runs one check now on the caller's goroutine and
// returns the resulting status.
func (s *Supervisor) TriggerHealthCheck(ctx context.Context, name string) (domain.ServiceSnapshot, error) {
	e, err := s.lookup(name)
	if err != nil {
		return domain.ServiceSnapshot{}, err
	}
	if s.isStopped() {
		return domain.ServiceSnapshot{}, domain.ErrSupervisorStopped
	}
	s.checkHealth(ctx, e, "manual")
	return e.snapshot(), nil
}

// TriggerRestart restarts the service now regardless of its restart policy.
// A failed restart is recorded on the status, not returned. The restart
// outlives ctx and is bounded by RestartTimeout and Shutdown only.
func (s *Supervisor) TriggerRestart(ctx context.Context, name string) (domain.ServiceSnapshot, error) {
	e, err := s.lookup(name)
	if err != nil {
		return domain.ServiceSnapshot{}, err
	}
	if s.isStopped() {
		return domain.ServiceSnapshot{}, domain.ErrSupervisorStopped
	}

	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	go func() {
		select {
		case <-s.group.Done():
			cancel()
		case <-rctx.Done():
		}
	}()

	e.op.Lock()
	s.restart(rctx, e, "manual")
	e.op.Unlock()
	return e.snapshot(), nil
}

func (s *Supervisor) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// Shutdown cancels every service timer and waits for in-flight checks.
// Entries stay readable; new registrations are refused.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.group.StopAll()
	s.logger.Info("supervisor stopped")
}

// Serve implements suture.Service. It returns once ctx is done and every
// timer has stopped.
func (s *Supervisor) Serve(ctx context.Context) error {
	<-ctx.Done()
	s.Shutdown()
	return ctx.Err()
}

func (s *Supervisor) String() string {
	return "supervisor"
}

// Stopped reports whether Shutdown ran.
func (s *Supervisor) Stopped() bool {
	return s.isStopped()
}

// Ready is used by readiness probes.
func (s *Supervisor) Ready() error {
	if s.isStopped() {
		return domain.ErrSupervisorStopped
	}
	return nil
}

type nopObserver struct{}

func (nopObserver) ObserveCheck(string, bool, time.Duration) {}
func (nopObserver) SetFailedChecks(string, int)              {}
func (nopObserver) ObserveRestart(string, error)             {}
func (nopObserver) SetRegistered(int)                        {}
func (nopObserver) ForgetService(string)                     {}

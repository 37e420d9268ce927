package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ─────────────────────────────
// Fakes
// ─────────────────────────────

type switchProbe struct {
	mu  sync.Mutex
	err error
	n   int
}

func (p *switchProbe) Probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return p.err
}

func (p *switchProbe) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *switchProbe) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

type countingRestarter struct {
	calls atomic.Int32
	err   error
}

func (r *countingRestarter) Restart(context.Context) error {
	r.calls.Add(1)
	return r.err
}

// blockingRestarter holds until its context ends and reports the first call.
type blockingRestarter struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingRestarter() *blockingRestarter {
	return &blockingRestarter{started: make(chan struct{})}
}

func (r *blockingRestarter) Restart(ctx context.Context) error {
	r.once.Do(func() { close(r.started) })
	<-ctx.Done()
	return ctx.Err()
}

type stubMetrics struct {
	cpu float64
	err error
}

func (m stubMetrics) CPUUtilization(context.Context, string) (float64, error) {
	return m.cpu, m.err
}

type stubScorer struct {
	mu       sync.Mutex
	scores   map[string]float64
	err      error
	ingested []domain.FeedbackRecord
	forgot   []string
}

func (s *stubScorer) Score(service string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[service], s.err
}

func (s *stubScorer) Ingest(rec domain.FeedbackRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingested = append(s.ingested, rec)
}

func (s *stubScorer) Forget(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgot = append(s.forgot, service)
}

type raised struct {
	service  string
	severity domain.Severity
	err      error
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []raised
}

func (a *recordingAlerter) Raise(service string, cause error, severity domain.Severity) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, raised{service, severity, cause})
	return true
}

func (a *recordingAlerter) bySeverity(sev domain.Severity) []raised {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []raised
	for _, r := range a.alerts {
		if r.severity == sev {
			out = append(out, r)
		}
	}
	return out
}

type fakeHealth struct {
	mu      sync.Mutex
	results map[string]domain.CheckResult
}

func (f *fakeHealth) ServiceHealth(_ context.Context, name string) domain.CheckResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.results[name]; ok {
		return r
	}
	return domain.CheckResult{Status: domain.StatusHealthy}
}

type fakeScanner struct {
	result *domain.HealthCheckResult
	known  map[string]bool
}

func (f *fakeScanner) PerformHealthCheck(context.Context) *domain.HealthCheckResult {
	return f.result
}

func (f *fakeScanner) Has(name string) bool {
	return f.known[name]
}

type harness struct {
	sup     *Supervisor
	scorer  *stubScorer
	alerter *recordingAlerter
}

func newHarness(t *testing.T, deps Deps) *harness {
	t.Helper()
	return newHarnessWith(t, Config{CheckTimeout: 200 * time.Millisecond, RestartTimeout: 200 * time.Millisecond}, deps)
}

func newHarnessWith(t *testing.T, cfg Config, deps Deps) *harness {
	t.Helper()
	h := &harness{
		scorer:  &stubScorer{scores: map[string]float64{}},
		alerter: &recordingAlerter{},
	}
	if deps.Scorer == nil {
		deps.Scorer = h.scorer
	}
	deps.Alerter = h.alerter
	deps.Logger = logger.NewNop()
	h.sup = New(cfg, deps)
	t.Cleanup(h.sup.Shutdown)
	return h
}

// slow keeps scheduled ticks out of the way of manual triggers.
const slow = time.Hour

func (h *harness) check(t *testing.T, name string) domain.ServiceStatus {
	t.Helper()
	snap, err := h.sup.TriggerHealthCheck(context.Background(), name)
	require.NoError(t, err)
	return snap.Status
}

// ─────────────────────────────
// Registration
// ─────────────────────────────

func TestRegisterInitialStatus(t *testing.T) {
	h := newHarness(t, Deps{})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow}))

	snap, err := h.sup.GetServiceStatus("api")
	require.NoError(t, err)
	assert.True(t, snap.Status.IsRunning)
	assert.Equal(t, domain.StatusUnknown, snap.Status.HealthCheckStatus)
	assert.Nil(t, snap.Status.LastHealthCheck)
	assert.Equal(t, domain.DefaultMaxRetries, snap.Config.MaxRetries)
	assert.True(t, h.sup.Running("api"))
}

func TestRegisterDuplicateLeavesExistingEntry(t *testing.T) {
	h := newHarness(t, Deps{})
	probe := &switchProbe{err: errors.New("down")}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, MaxRetries: 5, Probe: probe}))
	before := h.check(t, "api")

	err := h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, MaxRetries: 1})
	var dup *domain.DuplicateServiceError
	require.ErrorAs(t, err, &dup)
	assert.ErrorIs(t, err, domain.ErrDuplicateService)

	snap, _ := h.sup.GetServiceStatus("api")
	assert.Equal(t, before, snap.Status)
	assert.Equal(t, 5, snap.Config.MaxRetries)
}

func TestRegisterRejectsInvalid(t *testing.T) {
	h := newHarness(t, Deps{})
	assert.Error(t, h.sup.Register(domain.ServiceConfig{}))
	assert.Error(t, h.sup.Register(domain.ServiceConfig{Name: "a", Dependencies: []string{"a"}}))
	assert.Error(t, h.sup.Register(domain.ServiceConfig{Name: "a", RestartStrategy: "sometimes"}))
	assert.Empty(t, h.sup.GetServicesStatus())
}

func TestRegisterRejectsDependencyCycle(t *testing.T) {
	h := newHarness(t, Deps{})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "a", HealthCheckInterval: slow, Dependencies: []string{"b"}}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "b", HealthCheckInterval: slow, Dependencies: []string{"c"}}))

	err := h.sup.Register(domain.ServiceConfig{Name: "c", HealthCheckInterval: slow, Dependencies: []string{"a"}})
	var cycle *domain.DependencyCycleError
	require.ErrorAs(t, err, &cycle)
	assert.ErrorIs(t, err, domain.ErrDependencyCycle)
	assert.Equal(t, []string{"c", "a", "b", "c"}, cycle.Path)
	assert.False(t, h.sup.Has("c"))

	// a diamond is not a cycle
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "c", HealthCheckInterval: slow}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "d", HealthCheckInterval: slow, Dependencies: []string{"a", "b", "c"}}))
}

func TestDisabledServiceIsNotScheduled(t *testing.T) {
	h := newHarness(t, Deps{})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "batch", Disabled: true}))
	assert.True(t, h.sup.Has("batch"))
	assert.False(t, h.sup.Running("batch"))
}

func TestRegisterAfterShutdown(t *testing.T) {
	h := newHarness(t, Deps{})
	h.sup.Shutdown()
	assert.ErrorIs(t, h.sup.Register(domain.ServiceConfig{Name: "api"}), domain.ErrSupervisorStopped)
}

// ─────────────────────────────
// Health checks
// ─────────────────────────────

func TestHealthyCheckResetsFailures(t *testing.T) {
	h := newHarness(t, Deps{})
	probe := &switchProbe{err: errors.New("down")}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, MaxRetries: 10, Probe: probe}))

	for want := 1; want <= 4; want++ {
		st := h.check(t, "api")
		assert.Equal(t, want, st.FailedHealthChecks)
		assert.Equal(t, domain.StatusUnhealthy, st.HealthCheckStatus)
		assert.ErrorIs(t, st.LastError, domain.ErrTransientCheck)
	}

	probe.set(nil)
	st := h.check(t, "api")
	assert.Zero(t, st.FailedHealthChecks)
	assert.Equal(t, domain.StatusHealthy, st.HealthCheckStatus)
	assert.NoError(t, st.LastError)
	assert.NotNil(t, st.LastHealthCheck)
	assert.Zero(t, st.RestartAttempts)
}

func TestRestartExactlyAtMaxRetries(t *testing.T) {
	h := newHarness(t, Deps{})
	probe := &switchProbe{err: errors.New("down")}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, MaxRetries: 3, Probe: probe}))

	st := h.check(t, "api")
	assert.Equal(t, 1, st.FailedHealthChecks)
	assert.Zero(t, st.RestartAttempts)

	st = h.check(t, "api")
	assert.Equal(t, 2, st.FailedHealthChecks)
	assert.Zero(t, st.RestartAttempts)

	// third failure reaches the threshold; the simulated restart succeeds
	st = h.check(t, "api")
	assert.Equal(t, 1, st.RestartAttempts)
	assert.Zero(t, st.FailedHealthChecks)
	assert.True(t, st.IsRunning)
	assert.NotNil(t, st.LastRestartAttempt)

	probe.set(nil)
	st = h.check(t, "api")
	assert.Equal(t, domain.StatusHealthy, st.HealthCheckStatus)
	assert.Equal(t, 1, st.RestartAttempts)
}

func TestRestartAttemptsCountFailures(t *testing.T) {
	h := newHarness(t, Deps{})
	restarter := &countingRestarter{err: errors.New("exit 1")}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{
		Name:                "worker",
		HealthCheckInterval: slow,
		MaxRetries:          1,
		Probe:               &switchProbe{err: errors.New("down")},
		Restarter:           restarter,
	}))

	prev := 0
	for i := 1; i <= 5; i++ {
		st := h.check(t, "worker")
		assert.Equal(t, i, st.RestartAttempts, "one attempt per restart")
		assert.GreaterOrEqual(t, st.RestartAttempts, prev)
		prev = st.RestartAttempts

		assert.False(t, st.IsRunning)
		var rerr *domain.RestartError
		require.ErrorAs(t, st.LastError, &rerr)
		assert.Equal(t, i, rerr.Attempt)
	}
	assert.EqualValues(t, 5, restarter.calls.Load())

	// non-critical failures are reported as high, never critical
	assert.Len(t, h.alerter.bySeverity(domain.SeverityHigh), 5)
	assert.Empty(t, h.alerter.bySeverity(domain.SeverityCritical))
}

func TestAnomalyScoreVetoesHealth(t *testing.T) {
	h := newHarness(t, Deps{Metrics: stubMetrics{cpu: 0.1}})
	h.scorer.scores["api"] = 0.85
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, MaxRetries: 10, Probe: &switchProbe{}}))

	st := h.check(t, "api")
	assert.Equal(t, domain.StatusUnhealthy, st.HealthCheckStatus)
	assert.Equal(t, 1, st.FailedHealthChecks)
	assert.InDelta(t, 0.85, st.AnomalyScore, 1e-9)
	assert.Contains(t, st.LastErrorMessage(), "anomaly score")
}

func TestAnomalyUnavailableIsNeutral(t *testing.T) {
	h := newHarness(t, Deps{})
	h.scorer.err = domain.ErrModelUnavailable
	h.scorer.scores["api"] = 0.99
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, Probe: &switchProbe{}}))

	st := h.check(t, "api")
	assert.Equal(t, domain.StatusHealthy, st.HealthCheckStatus)
	assert.Zero(t, st.AnomalyScore)
}

func TestCPUVetoesHealth(t *testing.T) {
	h := newHarness(t, Deps{Metrics: stubMetrics{cpu: 0.95}})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, MaxRetries: 10, Probe: &switchProbe{}}))

	st := h.check(t, "api")
	assert.Equal(t, domain.StatusUnhealthy, st.HealthCheckStatus)
	require.NotNil(t, st.CPUUtilization)
	assert.InDelta(t, 0.95, *st.CPUUtilization, 1e-9)
}

func TestMetricsFailureNeverFailsACheck(t *testing.T) {
	h := newHarness(t, Deps{Metrics: stubMetrics{err: domain.ErrMetricsUnavailable}})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, Probe: &switchProbe{}}))

	st := h.check(t, "api")
	assert.Equal(t, domain.StatusHealthy, st.HealthCheckStatus)
	assert.Nil(t, st.CPUUtilization)
	assert.Zero(t, st.FailedHealthChecks)
}

func TestAggregatorPredicate(t *testing.T) {
	agg := &fakeHealth{results: map[string]domain.CheckResult{
		"redis": {Status: domain.StatusDegraded, Message: "slow"},
		"disk":  {Status: domain.StatusUnhealthy, Message: "disk full", Error: "98% used"},
	}}
	h := newHarness(t, Deps{Health: agg})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "cache", CheckName: "redis", HealthCheckInterval: slow}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "disk", HealthCheckInterval: slow, MaxRetries: 10}))

	st := h.check(t, "cache")
	assert.Equal(t, domain.StatusDegraded, st.HealthCheckStatus, "degraded passes")
	assert.Zero(t, st.FailedHealthChecks)

	st = h.check(t, "disk")
	assert.Equal(t, domain.StatusUnhealthy, st.HealthCheckStatus)
	assert.Contains(t, st.LastErrorMessage(), "disk full")
	assert.Contains(t, st.LastErrorMessage(), "98% used")
}

func TestDegradedAggregatorResultPasses(t *testing.T) {
	agg := &fakeHealth{results: map[string]domain.CheckResult{
		"redis": {Status: domain.StatusDegraded, Message: "slow"},
	}}
	h := newHarness(t, Deps{Health: agg})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "cache", CheckName: "redis", HealthCheckInterval: slow, MaxRetries: 1}))

	for i := 0; i < 3; i++ {
		st := h.check(t, "cache")
		assert.Equal(t, domain.StatusDegraded, st.HealthCheckStatus, "status keeps the aggregator's detail")
		assert.Zero(t, st.FailedHealthChecks)
		assert.NoError(t, st.LastError)
		assert.Zero(t, st.RestartAttempts, "degraded never counts toward max retries")
	}
	assert.Empty(t, h.alerter.alerts)
}

func TestFeedbackOnEveryCheck(t *testing.T) {
	h := newHarness(t, Deps{})
	probe := &switchProbe{err: errors.New("down")}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, MaxRetries: 10, Probe: probe}))

	h.check(t, "api")
	h.check(t, "api")
	probe.set(nil)
	h.check(t, "api")

	h.scorer.mu.Lock()
	defer h.scorer.mu.Unlock()
	require.Len(t, h.scorer.ingested, 3)
	assert.Equal(t, []int{1, 2, 0}, []int{
		h.scorer.ingested[0].FailedHealthChecks,
		h.scorer.ingested[1].FailedHealthChecks,
		h.scorer.ingested[2].FailedHealthChecks,
	})
	assert.Equal(t, "api", h.scorer.ingested[0].ServiceName)
}

func TestCheckTimeoutIsAFailure(t *testing.T) {
	h := newHarness(t, Deps{})
	release := make(chan struct{})
	defer close(release)
	stuck := domain.ProbeFunc(func(context.Context) error {
		<-release // ignores its context on purpose
		return nil
	})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, MaxRetries: 10, Probe: stuck}))

	start := time.Now()
	st := h.check(t, "api")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, st.FailedHealthChecks)
	assert.ErrorIs(t, st.LastError, domain.ErrCheckTimeout)
	assert.Len(t, h.alerter.bySeverity(domain.SeverityMedium), 1)
}

func TestProbePanicIsRecovered(t *testing.T) {
	h := newHarness(t, Deps{})
	boom := domain.ProbeFunc(func(context.Context) error { panic("nil map") })
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, MaxRetries: 10, Probe: boom}))

	st := h.check(t, "api")
	assert.Equal(t, domain.StatusUnhealthy, st.HealthCheckStatus)
	assert.Contains(t, st.LastErrorMessage(), "panic")
	assert.Len(t, h.alerter.bySeverity(domain.SeverityMedium), 1)
}

func TestCriticalUnhealthyCheckRaisesHigh(t *testing.T) {
	h := newHarness(t, Deps{})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{
		Name: "db", HealthCheckInterval: slow, MaxRetries: 10, CriticalService: true,
		Probe: &switchProbe{err: errors.New("refused")},
	}))

	h.check(t, "db")
	assert.Len(t, h.alerter.bySeverity(domain.SeverityHigh), 1)
	assert.Empty(t, h.alerter.bySeverity(domain.SeverityCritical))
}

// ─────────────────────────────
// Restart policy
// ─────────────────────────────

func TestCriticalServiceExhaustedRaisesCritical(t *testing.T) {
	h := newHarness(t, Deps{})
	restarter := &countingRestarter{err: errors.New("container missing")}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{
		Name:                "db",
		HealthCheckInterval: slow,
		MaxRetries:          1,
		MaxRestarts:         2,
		CriticalService:     true,
		Probe:               &switchProbe{err: errors.New("refused")},
		Restarter:           restarter,
	}))

	var st domain.ServiceStatus
	for i := 0; i < 6; i++ {
		st = h.check(t, "db")
	}

	assert.EqualValues(t, 2, restarter.calls.Load(), "no automatic restart past the budget")
	assert.Equal(t, 2, st.RestartAttempts)
	assert.False(t, st.IsRunning)
	assert.True(t, st.CriticalAlertRaised)

	crit := h.alerter.bySeverity(domain.SeverityCritical)
	require.NotEmpty(t, crit)
	var cf *domain.CriticalServiceFailure
	require.ErrorAs(t, crit[0].err, &cf)
	assert.Equal(t, "db", cf.Service)
}

func TestCriticalExhaustionAlertsOnce(t *testing.T) {
	h := newHarness(t, Deps{})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{
		Name:                "db",
		HealthCheckInterval: slow,
		MaxRetries:          1,
		MaxRestarts:         1,
		CriticalService:     true,
		Probe:               &switchProbe{err: errors.New("refused")},
	}))

	// first breach spends the only restart, which succeeds (simulated)
	st := h.check(t, "db")
	assert.Equal(t, 1, st.RestartAttempts)
	assert.False(t, st.CriticalAlertRaised)

	for i := 0; i < 4; i++ {
		h.check(t, "db")
	}
	assert.Len(t, h.alerter.bySeverity(domain.SeverityCritical), 1)
}

func TestManualStrategyOnlyRestartsOnTrigger(t *testing.T) {
	h := newHarness(t, Deps{})
	restarter := &countingRestarter{}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{
		Name:                "legacy",
		HealthCheckInterval: slow,
		MaxRetries:          1,
		RestartStrategy:     domain.StrategyManual,
		Probe:               &switchProbe{err: errors.New("down")},
		Restarter:           restarter,
	}))

	for i := 0; i < 3; i++ {
		h.check(t, "legacy")
	}
	assert.Zero(t, restarter.calls.Load())

	snap, err := h.sup.TriggerRestart(context.Background(), "legacy")
	require.NoError(t, err)
	assert.EqualValues(t, 1, restarter.calls.Load())
	assert.Equal(t, 1, snap.Status.RestartAttempts)
	assert.Zero(t, snap.Status.FailedHealthChecks)
}

func TestShutdownDuringRestartRaisesNothing(t *testing.T) {
	h := newHarnessWith(t, Config{CheckTimeout: 200 * time.Millisecond, RestartTimeout: time.Minute}, Deps{})
	restarter := newBlockingRestarter()
	require.NoError(t, h.sup.Register(domain.ServiceConfig{
		Name:                "db",
		HealthCheckInterval: 5 * time.Millisecond,
		MaxRetries:          1,
		CriticalService:     true,
		Probe:               &switchProbe{err: errors.New("refused")},
		Restarter:           restarter,
	}))

	select {
	case <-restarter.started:
	case <-time.After(2 * time.Second):
		t.Fatal("restart never started")
	}
	h.sup.Shutdown()

	snap, err := h.sup.GetServiceStatus("db")
	require.NoError(t, err)
	assert.True(t, snap.Status.IsRunning)
	assert.False(t, snap.Status.Restarting)
	assert.False(t, snap.Status.CriticalAlertRaised)
	var rerr *domain.RestartError
	assert.False(t, errors.As(snap.Status.LastError, &rerr), "cancellation is not a restart failure")
	assert.Empty(t, h.alerter.bySeverity(domain.SeverityCritical))
}

func TestManualRestartOutlivesCaller(t *testing.T) {
	h := newHarness(t, Deps{})
	restarter := &countingRestarter{}
	slowRestart := domain.RestartFunc(func(ctx context.Context) error {
		select {
		case <-time.After(50 * time.Millisecond):
			return restarter.Restart(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{
		Name:                "db",
		HealthCheckInterval: slow,
		CriticalService:     true,
		Restarter:           slowRestart,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	snap, err := h.sup.TriggerRestart(ctx, "db")
	require.NoError(t, err)

	assert.EqualValues(t, 1, restarter.calls.Load())
	assert.Equal(t, 1, snap.Status.RestartAttempts)
	assert.True(t, snap.Status.IsRunning)
	assert.NoError(t, snap.Status.LastError)
	assert.Empty(t, h.alerter.bySeverity(domain.SeverityCritical))
}

func TestRestartTimeoutIsLabelled(t *testing.T) {
	h := newHarness(t, Deps{})
	restarter := newBlockingRestarter()
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "db", HealthCheckInterval: slow, Restarter: restarter}))

	snap, err := h.sup.TriggerRestart(context.Background(), "db")
	require.NoError(t, err)
	assert.False(t, snap.Status.IsRunning)
	assert.ErrorIs(t, snap.Status.LastError, errRestartTimeout)
	assert.Len(t, h.alerter.bySeverity(domain.SeverityHigh), 1)
}

func TestBackoffStrategyDefersRestarts(t *testing.T) {
	h := newHarness(t, Deps{})
	now := time.Unix(1_700_000_000, 0)
	h.sup.now = func() time.Time { return now }

	restarter := &countingRestarter{err: errors.New("exit 1")}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{
		Name:                "api",
		HealthCheckInterval: slow,
		MaxRetries:          1,
		RetryDelay:          10 * time.Second,
		RestartStrategy:     domain.StrategyExponentialBackoff,
		Probe:               &switchProbe{err: errors.New("down")},
		Restarter:           restarter,
	}))

	h.check(t, "api")
	assert.EqualValues(t, 1, restarter.calls.Load())

	now = now.Add(5 * time.Second)
	h.check(t, "api")
	assert.EqualValues(t, 1, restarter.calls.Load(), "inside the 10s window")

	now = now.Add(5 * time.Second)
	h.check(t, "api")
	assert.EqualValues(t, 2, restarter.calls.Load())

	now = now.Add(10 * time.Second)
	h.check(t, "api")
	assert.EqualValues(t, 2, restarter.calls.Load(), "second window is 20s")

	now = now.Add(10 * time.Second)
	h.check(t, "api")
	assert.EqualValues(t, 3, restarter.calls.Load())
}

// Flagged behaviour: without MaxRestarts the immediate strategy restarts
// a permanently failing service on every breach, forever.
func TestImmediateDefaultRestartsWithoutLimit(t *testing.T) {
	h := newHarness(t, Deps{})
	restarter := &countingRestarter{err: errors.New("exit 1")}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{
		Name:                "api",
		HealthCheckInterval: slow,
		MaxRetries:          1,
		Probe:               &switchProbe{err: errors.New("down")},
		Restarter:           restarter,
	}))

	for i := 0; i < 25; i++ {
		h.check(t, "api")
	}
	assert.EqualValues(t, 25, restarter.calls.Load())
}

// ─────────────────────────────
// Dependencies & unregister
// ─────────────────────────────

func TestDependencyDownFailsCheck(t *testing.T) {
	h := newHarness(t, Deps{})
	dbProbe := &switchProbe{err: errors.New("refused")}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, MaxRetries: 10, Dependencies: []string{"db", "not-yet-known"}, Probe: &switchProbe{}}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "db", HealthCheckInterval: slow, MaxRetries: 10, Probe: dbProbe}))

	// unknown dependency state does not block
	st := h.check(t, "api")
	assert.Equal(t, domain.StatusHealthy, st.HealthCheckStatus)

	h.check(t, "db")
	st = h.check(t, "api")
	assert.Equal(t, domain.StatusUnhealthy, st.HealthCheckStatus)
	assert.ErrorIs(t, st.LastError, domain.ErrDependencyDown)

	dbProbe.set(nil)
	h.check(t, "db")
	st = h.check(t, "api")
	assert.Equal(t, domain.StatusHealthy, st.HealthCheckStatus)
}

func TestUnregisterRejectedWhileDependedOn(t *testing.T) {
	h := newHarness(t, Deps{})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "db", HealthCheckInterval: slow}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow, Dependencies: []string{"db"}}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "batch", Disabled: true, Dependencies: []string{"db"}}))

	err := h.sup.Unregister("db")
	var conflict *domain.DependencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"api"}, conflict.Dependents, "disabled services do not count")
	assert.True(t, h.sup.Running("db"), "timer keeps running")
	assert.True(t, h.sup.Has("db"))

	require.NoError(t, h.sup.Unregister("api"))
	require.NoError(t, h.sup.Unregister("db"))
	assert.False(t, h.sup.Has("db"))
}

func TestUnregisterStopsTimerAndForgets(t *testing.T) {
	h := newHarness(t, Deps{})
	probe := &switchProbe{}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: 5 * time.Millisecond, Probe: probe}))
	require.Eventually(t, func() bool { return probe.calls() >= 2 }, 2*time.Second, time.Millisecond)

	require.NoError(t, h.sup.Unregister("api"))
	assert.False(t, h.sup.Running("api"))
	n := probe.calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, probe.calls(), "no check after unregister")

	_, err := h.sup.GetServiceStatus("api")
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
	assert.ErrorIs(t, h.sup.Unregister("api"), domain.ErrServiceNotFound)
	assert.Contains(t, h.scorer.forgot, "api")

	// the name can be reused
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: slow}))
}

// ─────────────────────────────
// Scheduling
// ─────────────────────────────

func TestScheduledChecksAndShutdown(t *testing.T) {
	h := newHarness(t, Deps{})
	probes := map[string]*switchProbe{"a": {}, "b": {}, "c": {}}
	for name, p := range probes {
		require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: name, HealthCheckInterval: 5 * time.Millisecond, Probe: p}))
	}
	for _, p := range probes {
		require.Eventually(t, func() bool { return p.calls() >= 3 }, 2*time.Second, time.Millisecond)
	}

	h.sup.Shutdown()
	assert.False(t, h.sup.Running("a"))
	_, err := h.sup.TriggerHealthCheck(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrSupervisorStopped)

	snaps := h.sup.GetServicesStatus()
	require.Len(t, snaps, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{snaps[0].Config.Name, snaps[1].Config.Name, snaps[2].Config.Name})
}

func TestSlowServiceDoesNotDelayOthers(t *testing.T) {
	h := newHarness(t, Deps{})
	release := make(chan struct{})
	defer close(release)
	stuck := domain.ProbeFunc(func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	fast := &switchProbe{}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "slow", HealthCheckInterval: 5 * time.Millisecond, Probe: stuck}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "fast", HealthCheckInterval: 5 * time.Millisecond, Probe: fast}))

	require.Eventually(t, func() bool { return fast.calls() >= 5 }, time.Second, time.Millisecond)
}

func TestServeStopsOnCancel(t *testing.T) {
	h := newHarness(t, Deps{})
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "api", HealthCheckInterval: 5 * time.Millisecond, Probe: &switchProbe{}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sup.Serve(ctx) }()
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, h.sup.Stopped())
	assert.Error(t, h.sup.Ready())
}

func TestConcurrentTriggers(t *testing.T) {
	h := newHarness(t, Deps{})
	restarter := &countingRestarter{}
	require.NoError(t, h.sup.Register(domain.ServiceConfig{
		Name: "api", HealthCheckInterval: time.Millisecond, MaxRetries: 2,
		Probe: &switchProbe{err: errors.New("down")}, Restarter: restarter,
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if i%2 == 0 {
					_, _ = h.sup.TriggerHealthCheck(context.Background(), "api")
				} else {
					_, _ = h.sup.TriggerRestart(context.Background(), "api")
				}
				_ = h.sup.GetServicesStatus()
			}
		}(i)
	}
	wg.Wait()

	snap, err := h.sup.GetServiceStatus("api")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.Status.FailedHealthChecks, 0)
	assert.EqualValues(t, snap.Status.RestartAttempts, restarter.calls.Load())
}

// ─────────────────────────────
// Global scan
// ─────────────────────────────

func TestScanAllQueuesImplicatedServices(t *testing.T) {
	scanner := &fakeScanner{
		result: &domain.HealthCheckResult{
			Status: domain.StatusUnhealthy,
			Checks: map[string]domain.CheckResult{
				"redis": {Status: domain.StatusUnhealthy},
				"disk":  {Status: domain.StatusHealthy},
			},
		},
		known: map[string]bool{"redis": true, "disk": true},
	}
	h := newHarness(t, Deps{Scanner: scanner, Health: &fakeHealth{}})

	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "cache", CheckName: "redis", HealthCheckInterval: slow}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "disk", HealthCheckInterval: slow}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "orphan", HealthCheckInterval: slow}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "custom", HealthCheckInterval: slow, Probe: &switchProbe{}}))
	require.NoError(t, h.sup.Register(domain.ServiceConfig{Name: "off", Disabled: true}))

	queued, err := h.sup.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cache", "orphan"}, queued)

	require.Eventually(t, func() bool {
		snap, _ := h.sup.GetServiceStatus("cache")
		return snap.Status.LastHealthCheck != nil
	}, 2*time.Second, time.Millisecond)

	scanner.result = &domain.HealthCheckResult{Status: domain.StatusHealthy}
	queued, err = h.sup.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, queued)
}

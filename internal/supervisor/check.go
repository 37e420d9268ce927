package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// verdict is the combined outcome of the predicate and the side signals.
type verdict struct {
	healthy bool
	status  domain.HealthStatus
	cpu     *float64
	score   float64
	err     error
	// execFailed marks a check that could not run to completion.
	execFailed bool
}

// checkHealth runs one check of e and applies the resulting transition.
// A breach of MaxRetries hands over to the restart policy.
func (s *Supervisor) checkHealth(ctx context.Context, e *entry, reason string) {
	e.op.Lock()
	defer e.op.Unlock()

	name := e.cfg.Name
	ctx, span := s.tracer.Start(ctx, "supervisor.check", trace.WithAttributes(
		attribute.String("service", name),
		attribute.String("reason", reason),
	))
	defer span.End()

	start := time.Now()
	v := s.evaluate(ctx, e)
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		// shutting down; the outcome says nothing about the service
		span.SetStatus(codes.Error, "cancelled")
		return
	}

	now := s.now()
	st := e.update(func(st *domain.ServiceStatus) {
		t := now
		st.LastHealthCheck = &t
		st.CPUUtilization = v.cpu
		st.AnomalyScore = v.score
		if v.healthy {
			st.FailedHealthChecks = 0
			st.HealthCheckStatus = v.status
			st.LastError = nil
			return
		}
		st.FailedHealthChecks++
		st.HealthCheckStatus = domain.StatusUnhealthy
		st.LastError = v.err
	})

	if s.scorer != nil {
		s.scorer.Ingest(domain.FeedbackRecord{
			ServiceName:        name,
			FailedHealthChecks: st.FailedHealthChecks,
			RestartAttempts:    st.RestartAttempts,
			AnomalyScore:       v.score,
			Timestamp:          now,
		})
	}
	s.observer.ObserveCheck(name, v.healthy, elapsed)
	s.observer.SetFailedChecks(name, st.FailedHealthChecks)

	span.SetAttributes(
		attribute.Bool("healthy", v.healthy),
		attribute.Int("failed_health_checks", st.FailedHealthChecks),
		attribute.Float64("anomaly_score", v.score),
	)

	if v.healthy {
		s.logger.Debug("health check passed",
			logger.String("service", name),
			logger.String("status", string(st.HealthCheckStatus)),
			logger.Duration("elapsed", elapsed))
		return
	}

	span.SetStatus(codes.Error, v.err.Error())
	s.logger.Warn("health check failed",
		logger.String("service", name),
		logger.String("reason", reason),
		logger.Int("failed_health_checks", st.FailedHealthChecks),
		logger.Int("max_retries", e.cfg.MaxRetries),
		logger.Error(v.err))

	switch {
	case v.execFailed:
		s.raise(name, v.err, domain.SeverityMedium)
	case e.cfg.CriticalService:
		s.raise(name, v.err, domain.SeverityHigh)
	}

	if st.FailedHealthChecks >= e.cfg.MaxRetries {
		s.autoRestart(ctx, e, st)
	}
}

func (s *Supervisor) evaluate(ctx context.Context, e *entry) verdict {
	name := e.cfg.Name
	var v verdict

	if down := s.dependenciesDown(e.cfg); len(down) > 0 {
		v.status = domain.StatusUnhealthy
		v.err = &domain.CheckError{
			Service: name,
			Reason:  "waiting for " + strings.Join(down, ", "),
			Err:     domain.ErrDependencyDown,
		}
	} else {
		s.predicate(ctx, e, &v)
	}

	v.cpu = s.cpuSignal(ctx, name)
	v.score = s.anomalySignal(name)

	v.healthy = v.status.Passing()
	if v.healthy && v.cpu != nil && *v.cpu >= s.cfg.CPUThreshold {
		v.healthy = false
		v.err = &domain.CheckError{
			Service: name,
			Reason:  fmt.Sprintf("cpu utilization %.2f at or above %.2f", *v.cpu, s.cfg.CPUThreshold),
		}
	}
	if v.healthy && v.score >= s.cfg.AnomalyThreshold {
		v.healthy = false
		v.err = &domain.CheckError{
			Service: name,
			Reason:  fmt.Sprintf("anomaly score %.2f at or above %.2f", v.score, s.cfg.AnomalyThreshold),
		}
	}
	return v
}

// predicate evaluates the custom probe or the aggregator entry into v.
func (s *Supervisor) predicate(ctx context.Context, e *entry, v *verdict) {
	name := e.cfg.Name
	fail := func(reason string, err error, exec bool) {
		v.status = domain.StatusUnhealthy
		v.err = &domain.CheckError{Service: name, Reason: reason, Err: err}
		v.execFailed = exec
	}

	switch e.check.kind {
	case checkCustom:
		err := s.run(ctx, s.cfg.CheckTimeout, domain.ErrCheckTimeout, e.check.probe.Probe)
		if err == nil {
			v.status = domain.StatusHealthy
			return
		}
		var xerr *execError
		if errors.As(err, &xerr) {
			fail("check did not complete", err, true)
			return
		}
		fail("probe failed", err, false)

	default:
		if s.health == nil {
			fail("no health source configured", nil, true)
			return
		}

		var res domain.CheckResult
		err := s.run(ctx, s.cfg.CheckTimeout, domain.ErrCheckTimeout, func(ctx context.Context) error {
			res = s.health.ServiceHealth(ctx, e.check.name)
			return nil
		})
		if err != nil {
			fail("check did not complete", err, true)
			return
		}
		if res.Status.Passing() {
			v.status = res.Status
			return
		}

		var cause error
		if res.Error != "" {
			cause = errors.New(res.Error)
		}
		msg := res.Message
		if msg == "" {
			msg = "aggregator reports " + string(res.Status)
		}
		fail(msg, cause, false)
	}
}

// dependenciesDown lists registered dependencies that are unhealthy or stopped.
// Unregistered dependencies do not block.
func (s *Supervisor) dependenciesDown(cfg domain.ServiceConfig) []string {
	if len(cfg.Dependencies) == 0 {
		return nil
	}

	s.mu.RLock()
	deps := make([]*entry, 0, len(cfg.Dependencies))
	for _, dep := range cfg.Dependencies {
		if de, ok := s.entries[dep]; ok {
			deps = append(deps, de)
		}
	}
	s.mu.RUnlock()

	var down []string
	for _, de := range deps {
		st := de.readStatus()
		if st.HealthCheckStatus == domain.StatusUnhealthy || !st.IsRunning {
			down = append(down, de.cfg.Name)
		}
	}
	return down
}

// cpuSignal returns nil when metrics are unavailable, which is neutral.
func (s *Supervisor) cpuSignal(ctx context.Context, name string) *float64 {
	if s.metrics == nil {
		return nil
	}

	var cpu float64
	err := s.run(ctx, s.cfg.CheckTimeout, domain.ErrMetricsUnavailable, func(ctx context.Context) error {
		var err error
		cpu, err = s.metrics.CPUUtilization(ctx, name)
		return err
	})
	if err != nil {
		s.logger.Debug("cpu signal unavailable",
			logger.String("service", name),
			logger.Error(err))
		return nil
	}
	return &cpu
}

// anomalySignal is 0 without a model.
func (s *Supervisor) anomalySignal(name string) float64 {
	if s.scorer == nil {
		return 0
	}
	score, err := s.scorer.Score(name)
	if err != nil {
		return 0
	}
	return score
}

func (s *Supervisor) raise(service string, cause error, severity domain.Severity) {
	if s.alerter == nil {
		s.logger.Warn("alert raised without dispatcher",
			logger.String("service", service),
			logger.String("severity", string(severity)),
			logger.Error(cause))
		return
	}
	s.alerter.Raise(service, cause, severity)
}

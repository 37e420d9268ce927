package supervisor

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errRestartTimeout = errors.New("restart timed out")

// autoRestart asks the policy whether the breach may restart the service.
// Caller holds e.op.
func (s *Supervisor) autoRestart(ctx context.Context, e *entry, st domain.ServiceStatus) {
	name := e.cfg.Name
	decision := e.policy.Decide(s.now(), st.RestartAttempts)

	switch decision {
	case Allow:
		s.restart(ctx, e, "automatic")

	case Wait:
		s.logger.Debug("restart deferred by backoff",
			logger.String("service", name),
			logger.Int("restart_attempts", st.RestartAttempts))

	case ManualOnly:
		s.logger.Warn("restart required, strategy is manual",
			logger.String("service", name),
			logger.Int("failed_health_checks", st.FailedHealthChecks))

	case Exhausted:
		s.logger.Warn("restart budget exhausted",
			logger.String("service", name),
			logger.Int("restart_attempts", st.RestartAttempts),
			logger.Int("max_restarts", e.cfg.MaxRestarts))

		if e.cfg.CriticalService && !st.CriticalAlertRaised {
			s.raise(name, &domain.CriticalServiceFailure{
				Service:  name,
				Attempts: st.RestartAttempts,
				Err:      st.LastError,
			}, domain.SeverityCritical)
			e.update(func(st *domain.ServiceStatus) { st.CriticalAlertRaised = true })
		}
	}
}

// restart runs the restart action once. Caller holds e.op.
func (s *Supervisor) restart(ctx context.Context, e *entry, reason string) {
	name := e.cfg.Name
	ctx, span := s.tracer.Start(ctx, "supervisor.restart", trace.WithAttributes(
		attribute.String("service", name),
		attribute.String("reason", reason),
		attribute.String("restart_strategy", string(e.policy.Strategy())),
	))
	defer span.End()

	now := s.now()
	st := e.update(func(st *domain.ServiceStatus) {
		st.RestartAttempts++
		t := now
		st.LastRestartAttempt = &t
		st.Restarting = true
	})
	attempt := st.RestartAttempts
	span.SetAttributes(attribute.Int("restart_attempts", attempt))

	s.logger.Info("restarting service",
		logger.String("service", name),
		logger.String("reason", reason),
		logger.Int("restart_attempts", attempt))

	var err error
	if e.action.kind == restartCustom {
		err = s.run(ctx, s.cfg.RestartTimeout, errRestartTimeout, e.action.restarter.Restart)
	}

	if err != nil && ctx.Err() != nil {
		// interrupted, not failed
		e.update(func(st *domain.ServiceStatus) { st.Restarting = false })
		span.SetStatus(codes.Error, "cancelled")
		s.logger.Info("restart cancelled",
			logger.String("service", name),
			logger.Int("restart_attempts", attempt))
		return
	}

	e.policy.Record(s.now(), err)
	s.observer.ObserveRestart(name, err)

	if err == nil {
		e.update(func(st *domain.ServiceStatus) {
			st.Restarting = false
			st.FailedHealthChecks = 0
			st.IsRunning = true
			st.LastError = nil
			st.CriticalAlertRaised = false
		})
		s.observer.SetFailedChecks(name, 0)
		s.logger.Info("service restarted",
			logger.String("service", name),
			logger.Int("restart_attempts", attempt))
		return
	}

	rerr := &domain.RestartError{Service: name, Attempt: attempt, Err: err}
	e.update(func(st *domain.ServiceStatus) {
		st.Restarting = false
		st.IsRunning = false
		st.LastError = rerr
	})
	span.RecordError(rerr)
	span.SetStatus(codes.Error, rerr.Error())

	if e.cfg.CriticalService {
		s.logger.Error("critical service restart failed",
			logger.String("service", name),
			logger.String("severity", string(domain.SeverityCritical)),
			logger.Int("restart_attempts", attempt),
			logger.Error(rerr))
		s.raise(name, &domain.CriticalServiceFailure{
			Service:  name,
			Attempts: attempt,
			Err:      rerr,
		}, domain.SeverityCritical)
		e.update(func(st *domain.ServiceStatus) { st.CriticalAlertRaised = true })
		return
	}

	s.logger.Warn("service restart failed",
		logger.String("service", name),
		logger.String("severity", string(domain.SeverityHigh)),
		logger.Int("restart_attempts", attempt),
		logger.Error(rerr))
	s.raise(name, rerr, domain.SeverityHigh)
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateService   = errors.New("service already registered")
	ErrDependencyConflict = errors.New("service is a dependency of another service")
	ErrServiceNotFound    = errors.New("service not found")
	ErrSupervisorStopped  = errors.New("supervisor stopped")
	ErrTransientCheck     = errors.New("health check failed")
	ErrCheckTimeout       = errors.New("health check timed out")
	ErrMetricsUnavailable = errors.New("metrics unavailable")
	ErrModelUnavailable   = errors.New("anomaly model unavailable")
	ErrDependencyDown     = errors.New("dependency not healthy")
	ErrDependencyCycle    = errors.New("dependency cycle")
)

// DuplicateServiceError rejects a register call for an existing name.
type DuplicateServiceError struct {
	Name string
}

func (e *DuplicateServiceError) Error() string {
	return fmt.Sprintf("service %q already registered", e.Name)
}

func (e *DuplicateServiceError) Unwrap() error { return ErrDuplicateService }

// DependencyConflictError rejects an unregister call while dependents exist.
type DependencyConflictError struct {
	Name       string
	Dependents []string
}

func (e *DependencyConflictError) Error() string {
	return fmt.Sprintf("service %q is required by %s", e.Name, strings.Join(e.Dependents, ", "))
}

func (e *DependencyConflictError) Unwrap() error { return ErrDependencyConflict }

// DependencyCycleError rejects a service whose dependencies lead back to it.
type DependencyCycleError struct {
	Path []string
}

func (e *DependencyCycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

func (e *DependencyCycleError) Unwrap() error { return ErrDependencyCycle }

// CheckError is a single failed health check. It never escalates by itself.
type CheckError struct {
	Service string
	Reason  string
	Err     error
}

func (e *CheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("health check %s: %s: %v", e.Service, e.Reason, e.Err)
	}
	return fmt.Sprintf("health check %s: %s", e.Service, e.Reason)
}

func (e *CheckError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransientCheck}
	}
	return []error{ErrTransientCheck, e.Err}
}

// RestartError is a failed restart attempt.
type RestartError struct {
	Service string
	Attempt int
	Err     error
}

func (e *RestartError) Error() string {
	return fmt.Sprintf("restart %s (attempt %d): %v", e.Service, e.Attempt, e.Err)
}

func (e *RestartError) Unwrap() error { return e.Err }

// DiscoveryError is a failed discovery cycle. The cycle is skipped.
type DiscoveryError struct {
	Source string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery from %s: %v", e.Source, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// CriticalServiceFailure is the unrecoverable condition of a critical service.
// It is handed to the alert dispatcher, never returned to callers.
type CriticalServiceFailure struct {
	Service  string
	Attempts int
	Err      error
}

func (e *CriticalServiceFailure) Error() string {
	return fmt.Sprintf("critical service %s failed after %d restart attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *CriticalServiceFailure) Unwrap() error { return e.Err }

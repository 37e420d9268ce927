package health

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
)

var (
	ErrCheckFailed     = errors.New("health: check failed")
	ErrCheckerNotFound = errors.New("health: checker not found")
)

// Result is the outcome of a single sub-check.
type Result struct {
	Status    domain.HealthStatus
	Message   string
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

func Healthy(message string) Result {
	return Result{
		Status:    domain.StatusHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func Degraded(message string) Result {
	return Result{
		Status:    domain.StatusDegraded,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func Unhealthy(message string, err error) Result {
	return Result{
		Status:    domain.StatusUnhealthy,
		Message:   message,
		Error:     err,
		Timestamp: time.Now(),
	}
}

// CheckResult converts to the persisted shape.
func (r Result) CheckResult() domain.CheckResult {
	out := domain.CheckResult{
		Status:  r.Status,
		Message: r.Message,
		Latency: r.Duration,
	}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return out
}

// Checker is one independent sub-check of the aggregate.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (f *CheckerFunc) Name() string { return f.name }

func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

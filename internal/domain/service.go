package domain

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// RestartStrategy selects how a failed service is recovered.
type RestartStrategy string

const (
	StrategyImmediate          RestartStrategy = "immediate"
	StrategyExponentialBackoff RestartStrategy = "exponential-backoff"
	StrategyManual             RestartStrategy = "manual"
)

// Valid reports whether s is a known strategy.
func (s RestartStrategy) Valid() bool {
	switch s {
	case StrategyImmediate, StrategyExponentialBackoff, StrategyManual:
		return true
	default:
		return false
	}
}

const (
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 5 * time.Second
)

// HealthProbe is the optional custom health predicate of a service.
// A nil error means the service is healthy.
type HealthProbe interface {
	Probe(ctx context.Context) error
}

// Restarter is the optional custom restart routine of a service.
type Restarter interface {
	Restart(ctx context.Context) error
}

// ProbeFunc adapts a plain function to HealthProbe.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// RestartFunc adapts a plain function to Restarter.
type RestartFunc func(ctx context.Context) error

func (f RestartFunc) Restart(ctx context.Context) error { return f(ctx) }

// ServiceConfig describes a monitored service.
//
// It is supplied once at registration and never mutated afterwards;
// the registry keeps its own copy.
type ServiceConfig struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// Name is the unique registry key.
	Name string `json:"name"`

	// ─────────────────────────────
	// Scheduling & thresholds
	// ─────────────────────────────

	// HealthCheckInterval is the period of the service's own timer.
	HealthCheckInterval time.Duration `json:"health_check_interval"`

	// MaxRetries is the consecutive-failure threshold that triggers a restart.
	MaxRetries int `json:"max_retries"`

	// RetryDelay is the base delay used by the exponential-backoff strategy.
	RetryDelay time.Duration `json:"retry_delay"`

	// ─────────────────────────────
	// Recovery policy
	// ─────────────────────────────

	CriticalService bool            `json:"critical_service"`
	RestartStrategy RestartStrategy `json:"restart_strategy"`

	// MaxRestarts caps automatic restarts. Zero means unbounded.
	MaxRestarts int `json:"max_restarts,omitempty"`

	// MaxBackoff caps the exponential-backoff delay.
	MaxBackoff time.Duration `json:"max_backoff,omitempty"`

	// ─────────────────────────────
	// Relations
	// ─────────────────────────────

	// Dependencies must be healthy before this service can be.
	Dependencies []string `json:"dependencies,omitempty"`

	// Disabled services are registered but never scheduled.
	Disabled bool `json:"disabled,omitempty"`

	// CheckName is the aggregator entry used when no Probe is set.
	// Defaults to Name.
	CheckName string `json:"check_name,omitempty"`

	// ─────────────────────────────
	// Optional capabilities
	// ─────────────────────────────

	Probe     HealthProbe `json:"-"`
	Restarter Restarter   `json:"-"`
}

// WithDefaults returns a copy with zero values replaced by defaults.
// The dependency slice is cloned so callers cannot mutate the registry copy.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RestartStrategy == "" {
		c.RestartStrategy = StrategyImmediate
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.CheckName == "" {
		c.CheckName = c.Name
	}
	c.Dependencies = slices.Clone(c.Dependencies)
	return c
}

// Validate rejects configs the supervisor cannot schedule.
func (c ServiceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("service %s: max retries must be >= 0, got %d", c.Name, c.MaxRetries)
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("service %s: max restarts must be >= 0, got %d", c.Name, c.MaxRestarts)
	}
	if c.RestartStrategy != "" && !c.RestartStrategy.Valid() {
		return fmt.Errorf("service %s: unknown restart strategy %q", c.Name, c.RestartStrategy)
	}
	if slices.Contains(c.Dependencies, c.Name) {
		return fmt.Errorf("service %s: cannot depend on itself", c.Name)
	}
	return nil
}

// DependsOn reports whether name is listed as a dependency.
func (c ServiceConfig) DependsOn(name string) bool {
	return slices.Contains(c.Dependencies, name)
}

package domain

import "time"

// HealthStatus is the health classification shared by services and sub-checks.
type HealthStatus string

const (
	StatusUnknown   HealthStatus = "unknown"
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Passing reports whether the status counts as a successful check.
// Degraded still passes.
func (s HealthStatus) Passing() bool {
	return s == StatusHealthy || s == StatusDegraded
}

// Severity is the alert tier.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ServiceStatus is the mutable runtime state of one registered service.
// Only the supervisor entry owning the service writes it.
type ServiceStatus struct {
	IsRunning          bool         `json:"is_running"`
	LastHealthCheck    *time.Time   `json:"last_health_check,omitempty"`
	HealthCheckStatus  HealthStatus `json:"health_check_status"`
	FailedHealthChecks int          `json:"failed_health_checks"`
	RestartAttempts    int          `json:"restart_attempts"`
	LastRestartAttempt *time.Time   `json:"last_restart_attempt,omitempty"`
	LastError          error        `json:"-"`

	// Restarting is set while a restart routine is in flight.
	Restarting bool `json:"restarting"`
	// CriticalAlertRaised is set once a critical failure was escalated and
	// cleared by the next successful restart.
	CriticalAlertRaised bool `json:"critical_alert_raised"`

	// Last signals seen by the health check.
	CPUUtilization *float64 `json:"cpu_utilization,omitempty"`
	AnomalyScore   float64  `json:"anomaly_score"`
}

// LastErrorMessage returns the last error text, or "" when none.
func (s ServiceStatus) LastErrorMessage() string {
	if s.LastError == nil {
		return ""
	}
	return s.LastError.Error()
}

// ServiceSnapshot pairs a config with a point-in-time copy of its status.
type ServiceSnapshot struct {
	Config ServiceConfig `json:"config"`
	Status ServiceStatus `json:"status"`
}

// FeedbackRecord is one observation emitted by every health check.
type FeedbackRecord struct {
	ServiceName        string    `json:"service_name"`
	FailedHealthChecks int       `json:"failed_health_checks"`
	RestartAttempts    int       `json:"restart_attempts"`
	AnomalyScore       float64   `json:"anomaly_score"`
	Timestamp          time.Time `json:"timestamp"`
}

// CheckResult is the outcome of one aggregator sub-check.
type CheckResult struct {
	Status  HealthStatus  `json:"status"`
	Message string        `json:"message"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// HealthCheckResult is the composite produced by the aggregator.
type HealthCheckResult struct {
	ID        string                 `json:"id"`
	Status    HealthStatus           `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
}

// NonHealthy returns the names of sub-checks that are not healthy.
func (r *HealthCheckResult) NonHealthy() []string {
	if r == nil {
		return nil
	}
	var names []string
	for name, c := range r.Checks {
		if c.Status != StatusHealthy {
			names = append(names, name)
		}
	}
	return names
}

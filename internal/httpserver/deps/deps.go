package deps

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

// Supervisor is the registry surface exposed over HTTP.
type Supervisor interface {
	GetServicesStatus() []domain.ServiceSnapshot
	GetServiceStatus(name string) (domain.ServiceSnapshot, error)
	TriggerHealthCheck(ctx context.Context, name string) (domain.ServiceSnapshot, error)
	TriggerRestart(ctx context.Context, name string) (domain.ServiceSnapshot, error)
	Unregister(name string) error
	Ready() error
}

// HealthReporter serves the aggregate health result.
type HealthReporter interface {
	Last() *domain.HealthCheckResult
	PerformHealthCheck(ctx context.Context) *domain.HealthCheckResult
}

// History reads audit and alert history.
type History interface {
	RecentResults(ctx context.Context, limit int) ([]*domain.HealthCheckResult, error)
	RecentAlerts(ctx context.Context, limit int) ([]*domain.Alert, error)
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger           logger.Logger
	StartTime        time.Time
	Version          string
	Commit           string
	BuildDate        string
	GoVersion        string
	AllowedHosts     []string       // Host headers allowed on mutating endpoints
	AllowedCIDRS     []string       // IPs allowed to access /api, /metrics and /readyz
	TrustProxy       bool           // true if running behind a trusted reverse proxy (e.g., cloudflared)
	TriggerRate      int            // manual triggers per minute per client IP
	Supervisor       Supervisor     // service registry
	Health           HealthReporter // aggregate health checks
	History          History        // redis-backed history (nil disables history endpoints)
	DiscoveryTrigger func() bool    // queues a discovery cycle, false if one is already queued
	Metrics          http.Handler   // prometheus exposition
}

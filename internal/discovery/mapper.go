package discovery

import (
	"github.com/MrSnakeDoc/sentinel/internal/domain"
)

// MapServices converts file entries to service configs.
func MapServices(entries []ServiceEntry) []domain.ServiceConfig {
	out := make([]domain.ServiceConfig, 0, len(entries))
	for _, e := range entries {
		out = append(out, mapEntry(e))
	}
	return out
}

func mapEntry(e ServiceEntry) domain.ServiceConfig {
	cfg := domain.ServiceConfig{
		Name:                e.Name,
		HealthCheckInterval: e.Interval,
		MaxRetries:          e.MaxRetries,
		RetryDelay:          e.RetryDelay,
		CriticalService:     e.Critical,
		RestartStrategy:     domain.RestartStrategy(e.RestartStrategy),
		MaxRestarts:         e.MaxRestarts,
		MaxBackoff:          e.MaxBackoff,
		Dependencies:        e.Dependencies,
		Disabled:            e.Disabled,
		CheckName:           e.Check,
	}

	if p := e.Probe; p != nil {
		cfg.Probe = domain.NewHTTPProbe(p.URL, p.Timeout, p.ExpectStatus)
	}
	if r := e.Restart; r != nil {
		cfg.Restarter = domain.NewHTTPRestarter(r.URL, r.Method, r.Timeout)
	}
	return cfg
}

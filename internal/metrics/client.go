package metrics

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
)

// Client pulls a point-in-time CPU utilization ratio (0..1) for a service.
// Every failure is reported as domain.ErrMetricsUnavailable.
type Client interface {
	CPUUtilization(ctx context.Context, service string) (float64, error)
}

// NopClient never has a signal.
type NopClient struct{}

func (NopClient) CPUUtilization(ctx context.Context, service string) (float64, error) {
	return 0, domain.ErrMetricsUnavailable
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMetricsUnavailable, fmt.Sprintf(format, args...))
}

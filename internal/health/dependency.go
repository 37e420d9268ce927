package health

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
)

// AggregatePath is the route serving the aggregate result. A dependency
// check pointed at it would re-enter the aggregator.
const AggregatePath = "/api/health"

// DependencyChecker probes an external endpoint for reachability.
type DependencyChecker struct {
	name  string
	probe domain.HealthProbe
	slow  time.Duration
}

// NewDependencyChecker rejects targets that route back into the aggregator.
func NewDependencyChecker(name, rawURL string, timeout time.Duration) (*DependencyChecker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("dependency %s: invalid url: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("dependency %s: unsupported scheme %q", name, u.Scheme)
	}
	if strings.HasPrefix(strings.TrimRight(u.Path, "/"), AggregatePath) {
		return nil, fmt.Errorf("dependency %s: %s targets the aggregate endpoint, use /healthz", name, rawURL)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DependencyChecker{
		name:  name,
		probe: domain.NewHTTPProbe(rawURL, timeout, 0),
		slow:  timeout / 2,
	}, nil
}

func (d *DependencyChecker) Name() string {
	return d.name
}

func (d *DependencyChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := d.probe.Probe(ctx); err != nil {
		return Unhealthy("dependency unreachable", err)
	}
	if elapsed := time.Since(start); elapsed > d.slow {
		return Degraded("dependency slow: " + elapsed.Round(time.Millisecond).String())
	}
	return Healthy("dependency reachable")
}

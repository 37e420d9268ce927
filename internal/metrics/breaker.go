package metrics

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/logger"
	gobreaker "github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// BreakerClient stops querying a failing backend until it cools down.
// An open circuit reads as "no signal", which health checks treat as neutral.
type BreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker[float64]
}

func NewBreakerClient(next Client, cfg BreakerConfig, log logger.Logger) *BreakerClient {
	if cfg.Name == "" {
		cfg.Name = "metrics"
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("metrics backend circuit changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	}

	return &BreakerClient{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[float64](settings),
	}
}

func (b *BreakerClient) CPUUtilization(ctx context.Context, service string) (float64, error) {
	v, err := b.cb.Execute(func() (float64, error) {
		return b.next.CPUUtilization(ctx, service)
	})
	if err != nil {
		return 0, unavailable("%s: %v", service, err)
	}
	return v, nil
}

// State returns the breaker state name.
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}

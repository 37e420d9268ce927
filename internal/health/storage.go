package health

import (
	"context"
	"time"
)

// Pinger is satisfied by the Redis store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker verifies the storage backend answers.
type StorageChecker struct {
	store Pinger
	slow  time.Duration
}

// NewStorageChecker reports degraded when a ping takes longer than slow.
func NewStorageChecker(store Pinger, slow time.Duration) *StorageChecker {
	if slow <= 0 {
		slow = 500 * time.Millisecond
	}
	return &StorageChecker{store: store, slow: slow}
}

func (s *StorageChecker) Name() string {
	return "storage"
}

func (s *StorageChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := s.store.Ping(ctx); err != nil {
		return Unhealthy("storage unreachable", err)
	}
	if elapsed := time.Since(start); elapsed > s.slow {
		return Degraded("storage slow: " + elapsed.Round(time.Millisecond).String())
	}
	return Healthy("storage reachable")
}

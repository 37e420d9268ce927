package health

import (
	"context"
	"fmt"
	"runtime"
)

type MemoryCheckerConfig struct {
	// WarningThreshold is the heap/sys ratio reported as degraded.
	WarningThreshold float64
	// CriticalThreshold is the ratio reported as unhealthy.
	CriticalThreshold float64
	// MaxAlloc overrides the denominator. Zero uses runtime Sys.
	MaxAlloc uint64
}

// MemoryChecker reports process memory pressure.
type MemoryChecker struct {
	config   MemoryCheckerConfig
	readStat func(*runtime.MemStats)
}

func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold + 0.1
		if config.CriticalThreshold > 1 {
			config.CriticalThreshold = 0.99
		}
	}
	return &MemoryChecker{config: config, readStat: runtime.ReadMemStats}
}

func (m *MemoryChecker) Name() string {
	return "memory"
}

func (m *MemoryChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	var stats runtime.MemStats
	m.readStat(&stats)

	maxAlloc := m.config.MaxAlloc
	if maxAlloc == 0 {
		maxAlloc = stats.Sys
	}
	if maxAlloc == 0 {
		return Healthy("memory stats unavailable")
	}

	usageRatio := float64(stats.Alloc) / float64(maxAlloc)

	if usageRatio >= m.config.CriticalThreshold {
		return Unhealthy(
			fmt.Sprintf("memory usage critical: %.1f%%", usageRatio*100),
			ErrCheckFailed,
		)
	}
	if usageRatio >= m.config.WarningThreshold {
		return Degraded(fmt.Sprintf("memory usage high: %.1f%%", usageRatio*100))
	}
	return Healthy(fmt.Sprintf("memory usage normal: %.1f%%", usageRatio*100))
}

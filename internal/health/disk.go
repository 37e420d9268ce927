package health

import (
	"context"
	"fmt"
)

type DiskCheckerConfig struct {
	Path              string
	WarningThreshold  float64
	CriticalThreshold float64
}

// DiskUsage holds filesystem capacity in bytes.
type DiskUsage struct {
	Total uint64
	Free  uint64
}

// DiskChecker reports filesystem pressure on Path.
type DiskChecker struct {
	config DiskCheckerConfig
	usage  func(path string) (DiskUsage, error)
}

func NewDiskChecker(config DiskCheckerConfig) *DiskChecker {
	if config.Path == "" {
		config.Path = "/"
	}
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold
	}
	return &DiskChecker{config: config, usage: diskUsage}
}

func (d *DiskChecker) Name() string {
	return "disk"
}

func (d *DiskChecker) Check(ctx context.Context) Result {
	u, err := d.usage(d.config.Path)
	if err != nil {
		return Unhealthy("disk stats unavailable", err)
	}
	if u.Total == 0 {
		return Healthy("disk size unknown")
	}

	used := 1 - float64(u.Free)/float64(u.Total)
	msg := fmt.Sprintf("%s used: %.1f%%", d.config.Path, used*100)

	switch {
	case used >= d.config.CriticalThreshold:
		return Unhealthy("disk usage critical, "+msg, ErrCheckFailed)
	case used >= d.config.WarningThreshold:
		return Degraded("disk usage high, " + msg)
	default:
		return Healthy(msg)
	}
}

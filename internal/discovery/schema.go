package discovery

import "time"

// File is the top-level structure of services.yaml
type File struct {
	Services []ServiceEntry `yaml:"services" validate:"dive"`
}

// ServiceEntry describes one service to supervise.
type ServiceEntry struct {
	Name            string        `yaml:"name" validate:"required,max=128,excludesall=/ "`
	Interval        time.Duration `yaml:"interval,omitempty" validate:"omitempty,min=100ms"`
	MaxRetries      int           `yaml:"max_retries,omitempty" validate:"gte=0"`
	RetryDelay      time.Duration `yaml:"retry_delay,omitempty" validate:"omitempty,min=0s"`
	Critical        bool          `yaml:"critical,omitempty"`
	RestartStrategy string        `yaml:"restart_strategy,omitempty" validate:"omitempty,oneof=immediate exponential-backoff manual"`
	MaxRestarts     int           `yaml:"max_restarts,omitempty" validate:"gte=0"`
	MaxBackoff      time.Duration `yaml:"max_backoff,omitempty" validate:"omitempty,min=0s"`
	Dependencies    []string      `yaml:"dependencies,omitempty" validate:"dive,required"`
	Disabled        bool          `yaml:"disabled,omitempty"`
	Check           string        `yaml:"check,omitempty"`
	Probe           *ProbeSpec    `yaml:"probe,omitempty" validate:"omitempty"`
	Restart         *RestartSpec  `yaml:"restart,omitempty" validate:"omitempty"`
}

// ProbeSpec declares a built-in health probe.
type ProbeSpec struct {
	Type         string        `yaml:"type" validate:"required,oneof=http"`
	URL          string        `yaml:"url" validate:"required,url"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	ExpectStatus int           `yaml:"expect_status,omitempty" validate:"omitempty,min=100,max=599"`
}

// RestartSpec declares a built-in restart hook.
type RestartSpec struct {
	Type    string        `yaml:"type" validate:"required,oneof=http"`
	URL     string        `yaml:"url" validate:"required,url"`
	Method  string        `yaml:"method,omitempty" validate:"omitempty,oneof=GET POST PUT"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

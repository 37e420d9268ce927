package supervisor

import (
	"fmt"
	"slices"
	"sync"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
)

type checkKind int

const (
	checkAggregator checkKind = iota
	checkCustom
)

// checkSource is resolved once at registration.
type checkSource struct {
	kind  checkKind
	probe domain.HealthProbe
	name  string
}

type restartKind int

const (
	restartSimulated restartKind = iota
	restartCustom
)

type restartAction struct {
	kind      restartKind
	restarter domain.Restarter
}

type entry struct {
	cfg    domain.ServiceConfig
	ticker string
	check  checkSource
	action restartAction
	policy RestartPolicy

	// op serializes checks and restarts of this service.
	op sync.Mutex

	mu     sync.RWMutex
	status domain.ServiceStatus
}

func newEntry(cfg domain.ServiceConfig, seq uint64) *entry {
	e := &entry{
		cfg:    cfg,
		ticker: fmt.Sprintf("%s#%d", cfg.Name, seq),
		check:  checkSource{kind: checkAggregator, name: cfg.CheckName},
		action: restartAction{kind: restartSimulated},
		policy: NewPolicy(cfg),
		status: domain.ServiceStatus{
			IsRunning:         true,
			HealthCheckStatus: domain.StatusUnknown,
		},
	}
	if cfg.Probe != nil {
		e.check = checkSource{kind: checkCustom, probe: cfg.Probe, name: cfg.Name}
	}
	if cfg.Restarter != nil {
		e.action = restartAction{kind: restartCustom, restarter: cfg.Restarter}
	}
	return e
}

func (e *entry) snapshot() domain.ServiceSnapshot {
	cfg := e.cfg
	cfg.Dependencies = slices.Clone(cfg.Dependencies)

	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.ServiceSnapshot{Config: cfg, Status: e.status}
}

func (e *entry) readStatus() domain.ServiceStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *entry) update(fn func(st *domain.ServiceStatus)) domain.ServiceStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.status)
	return e.status
}

package supervisor

import (
	"context"
	"slices"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

// ScanAll runs one aggregate pass and queues a check for every enabled
// service that the result implicates. Services whose check name failed are
// implicated directly; services without a dedicated sub-check are
// implicated by any non-healthy overall status. It returns the names queued.
func (s *Supervisor) ScanAll(ctx context.Context) ([]string, error) {
	if s.scanner == nil {
		return nil, nil
	}
	if s.isStopped() {
		return nil, domain.ErrSupervisorStopped
	}

	result := s.scanner.PerformHealthCheck(ctx)
	if result == nil || result.Status == domain.StatusHealthy {
		return nil, nil
	}
	failing := result.NonHealthy()

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.cfg.Disabled {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	var queued []string
	for _, e := range entries {
		implicated := slices.Contains(failing, e.check.name) ||
			(e.check.kind == checkAggregator && !s.scanner.Has(e.check.name))
		if !implicated {
			continue
		}
		if s.group.Trigger(e.ticker) {
			queued = append(queued, e.cfg.Name)
		}
	}
	slices.Sort(queued)

	s.logger.Info("global scan found problems",
		logger.String("status", string(result.Status)),
		logger.Strings("failing_checks", failing),
		logger.Strings("queued", queued))
	return queued, nil
}

// ScanJob adapts ScanAll to a periodic job.
func (s *Supervisor) ScanJob() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.ScanAll(ctx)
		return err
	}
}

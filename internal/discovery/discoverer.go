package discovery

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

// Registrar is the part of the supervisor discovery feeds.
type Registrar interface {
	Register(cfg domain.ServiceConfig) error
	Has(name string) bool
}

// Discoverer registers every newly discovered service. Known names are
// skipped, so repeated cycles never schedule a service twice.
type Discoverer struct {
	source    Source
	registrar Registrar
	logger    logger.Logger
}

func NewDiscoverer(source Source, registrar Registrar, log logger.Logger) *Discoverer {
	return &Discoverer{
		source:    source,
		registrar: registrar,
		logger:    log,
	}
}

// Outcome summarises one discovery cycle.
type Outcome struct {
	Discovered int
	Registered []string
	Skipped    int
	Rejected   map[string]error
}

// RunOnce performs one cycle. A source failure is returned as a
// *domain.DiscoveryError and nothing is registered.
func (d *Discoverer) RunOnce(ctx context.Context) (Outcome, error) {
	var out Outcome

	configs, err := d.source.Discover(ctx)
	if err != nil {
		derr := &domain.DiscoveryError{Source: d.source.Name(), Err: err}
		d.logger.Warn("discovery cycle skipped", logger.Error(derr))
		return out, derr
	}
	out.Discovered = len(configs)

	for _, cfg := range configs {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if d.registrar.Has(cfg.Name) {
			out.Skipped++
			continue
		}

		err := d.registrar.Register(cfg)
		switch {
		case err == nil:
			out.Registered = append(out.Registered, cfg.Name)
			d.logger.Info("service discovered", logger.String("service", cfg.Name))
		case errors.Is(err, domain.ErrDuplicateService):
			// registered concurrently, e.g. by a manual trigger
			out.Skipped++
		default:
			if out.Rejected == nil {
				out.Rejected = make(map[string]error)
			}
			out.Rejected[cfg.Name] = err
			d.logger.Warn("discovered service rejected",
				logger.String("service", cfg.Name),
				logger.Error(err))
		}
	}

	d.logger.Debug("discovery cycle completed",
		logger.Int("discovered", out.Discovered),
		logger.Int("registered", len(out.Registered)),
		logger.Int("skipped", out.Skipped))
	return out, nil
}

// Job adapts RunOnce to a periodic job.
func (d *Discoverer) Job() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := d.RunOnce(ctx)
		return err
	}
}

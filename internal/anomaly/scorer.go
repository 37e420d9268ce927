package anomaly

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

// ModelStore persists the encoded model between runs.
type ModelStore interface {
	SaveModel(ctx context.Context, data []byte) error
	LoadModel(ctx context.Context) ([]byte, error)
}

// RetrainObserver is told about every retrain outcome.
type RetrainObserver interface {
	ObserveRetrain(err error)
}

type modelRef struct {
	m Model
}

// Scorer serves anomaly scores from the current model and collects feedback
// for the next retrain. Readers never block on training.
type Scorer struct {
	trainer  Trainer
	store    ModelStore
	observer RetrainObserver
	logger   logger.Logger

	model atomic.Pointer[modelRef]

	mu     sync.Mutex
	buffer []domain.FeedbackRecord
	latest map[string]domain.FeedbackRecord
}

// NewScorer creates a scorer with no model. store and observer may be nil.
func NewScorer(trainer Trainer, store ModelStore, observer RetrainObserver, log logger.Logger) *Scorer {
	if trainer == nil {
		trainer = LeastSquares{}
	}
	return &Scorer{
		trainer:  trainer,
		store:    store,
		observer: observer,
		logger:   log,
		latest:   make(map[string]domain.FeedbackRecord),
	}
}

// Score evaluates the current model on the service's latest counters.
// Without a model it returns 0 and domain.ErrModelUnavailable.
func (s *Scorer) Score(service string) (float64, error) {
	ref := s.model.Load()
	if ref == nil {
		return 0, domain.ErrModelUnavailable
	}

	s.mu.Lock()
	rec := s.latest[service]
	s.mu.Unlock()

	return clamp01(ref.m.Score(rec.FailedHealthChecks, rec.RestartAttempts)), nil
}

// Ingest appends one feedback record.
func (s *Scorer) Ingest(rec domain.FeedbackRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, rec)
	s.latest[rec.ServiceName] = rec
}

// Forget drops per-service state of an unregistered service.
func (s *Scorer) Forget(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.latest, service)
}

// Buffered returns the number of records awaiting the next retrain.
func (s *Scorer) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Retrain consumes the whole buffer and publishes a new model. The consumed
// records are dropped even when fitting fails.
func (s *Scorer) Retrain(ctx context.Context) error {
	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		s.logger.Debug("anomaly retrain skipped, no feedback")
		return nil
	}

	m, err := s.trainer.Fit(ctx, batch)
	if s.observer != nil {
		s.observer.ObserveRetrain(err)
	}
	if err != nil {
		s.logger.Warn("anomaly retrain failed, feedback discarded",
			logger.Int("samples", len(batch)),
			logger.Error(err))
		return fmt.Errorf("retrain on %d samples: %w", len(batch), err)
	}

	s.model.Store(&modelRef{m: m})
	s.logger.Info("anomaly model retrained", logger.Int("samples", len(batch)))

	s.persist(ctx, m)
	return nil
}

func (s *Scorer) persist(ctx context.Context, m Model) {
	if s.store == nil {
		return
	}
	data, err := s.trainer.Encode(m)
	if err != nil {
		s.logger.Warn("failed to encode anomaly model", logger.Error(err))
		return
	}
	if err := s.store.SaveModel(ctx, data); err != nil {
		s.logger.Warn("failed to persist anomaly model", logger.Error(err))
	}
}

// Restore loads the last persisted model, if any.
func (s *Scorer) Restore(ctx context.Context) error {
	if s.store == nil {
		return domain.ErrModelUnavailable
	}
	data, err := s.store.LoadModel(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrModelUnavailable) {
			s.logger.Info("no persisted anomaly model")
		}
		return err
	}
	m, err := s.trainer.Decode(data)
	if err != nil {
		return err
	}
	s.model.Store(&modelRef{m: m})
	s.logger.Info("anomaly model restored")
	return nil
}

// SetModel publishes m directly.
func (s *Scorer) SetModel(m Model) {
	s.model.Store(&modelRef{m: m})
}

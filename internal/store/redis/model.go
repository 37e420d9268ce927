package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SaveModel stores the encoded anomaly model, replacing the previous one.
func (s *Store) SaveModel(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, KeyAnomalyModel, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save anomaly model: %w", err)
	}
	return nil
}

// LoadModel returns the encoded anomaly model or domain.ErrModelUnavailable.
func (s *Store) LoadModel(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, KeyAnomalyModel).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrModelUnavailable
		}
		return nil, fmt.Errorf("failed to load anomaly model: %w", err)
	}
	return data, nil
}

package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Store handles Redis persistence for audit history, alerts and the anomaly model
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Ping reports whether the backing Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

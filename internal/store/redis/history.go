package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SaveResult appends an aggregate result to the audit history.
func (s *Store) SaveResult(ctx context.Context, result *domain.HealthCheckResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal health result: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, HealthResultKey(result.ID), data, 0)
	pipe.ZAdd(ctx, KeyHealthHistory, redis.Z{
		Score:  float64(result.Timestamp.UnixMilli()),
		Member: result.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save health result: %w", err)
	}
	return nil
}

// RecentResults returns up to limit results, newest first.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]*domain.HealthCheckResult, error) {
	if limit <= 0 {
		return []*domain.HealthCheckResult{}, nil
	}

	ids, err := s.client.ZRevRange(ctx, KeyHealthHistory, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list health history: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.HealthCheckResult{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = HealthResultKey(id)
	}
	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load health results: %w", err)
	}

	results := make([]*domain.HealthCheckResult, 0, len(raw))
	for _, v := range raw {
		str, ok := v.(string)
		if !ok {
			// Pruned between ZREVRANGE and MGET
			continue
		}
		var r domain.HealthCheckResult
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			continue
		}
		results = append(results, &r)
	}
	return results, nil
}

// PruneResults removes every result recorded before cutoff and returns how many were dropped.
func (s *Store) PruneResults(ctx context.Context, cutoff time.Time) (int, error) {
	upper := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	ids, err := s.client.ZRangeByScore(ctx, KeyHealthHistory, &redis.ZRangeBy{
		Min: "-inf",
		Max: upper,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan health history: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = HealthResultKey(id)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRemRangeByScore(ctx, KeyHealthHistory, "-inf", upper)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to prune health history: %w", err)
	}
	return len(ids), nil
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
)

// MaxAlertHistory caps the alert list.
const MaxAlertHistory = 1000

// PublishAlert broadcasts an alert on channel and records it in the capped history.
func (s *Store) PublishAlert(ctx context.Context, channel string, alert *domain.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	pipe := s.client.Pipeline()
	if channel != "" {
		pipe.Publish(ctx, channel, data)
	}
	pipe.LPush(ctx, KeyAlertHistory, data)
	pipe.LTrim(ctx, KeyAlertHistory, 0, MaxAlertHistory-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]*domain.Alert, error) {
	if limit <= 0 {
		return []*domain.Alert{}, nil
	}

	raw, err := s.client.LRange(ctx, KeyAlertHistory, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	alerts := make([]*domain.Alert, 0, len(raw))
	for _, item := range raw {
		var a domain.Alert
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		alerts = append(alerts, &a)
	}
	return alerts, nil
}

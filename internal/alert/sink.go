package alert

import (
	"context"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

// Sink delivers an alert somewhere outside the process.
type Sink interface {
	Send(ctx context.Context, a *domain.Alert) error
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Send(_ context.Context, a *domain.Alert) error {
	fields := []logger.Field{
		logger.String("alert_id", a.ID),
		logger.String("service", a.Service),
		logger.String("severity", string(a.Severity)),
		logger.String("message", a.Message),
	}
	if a.Severity == domain.SeverityCritical {
		s.logger.Error("ALERT", fields...)
		return nil
	}
	s.logger.Warn("ALERT", fields...)
	return nil
}

// Publisher is satisfied by the redis store.
type Publisher interface {
	PublishAlert(ctx context.Context, channel string, a *domain.Alert) error
}

// RedisSink publishes alerts on a channel and keeps them in history.
type RedisSink struct {
	pub     Publisher
	channel string
}

func NewRedisSink(pub Publisher, channel string) *RedisSink {
	return &RedisSink{pub: pub, channel: channel}
}

func (s *RedisSink) Send(ctx context.Context, a *domain.Alert) error {
	return s.pub.PublishAlert(ctx, s.channel, a)
}

package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const defaultSendTimeout = 5 * time.Second

// Observer counts raised alerts.
type Observer interface {
	ObserveAlert(severity string)
}

// Config tunes the dispatcher.
type Config struct {
	// PerMinute caps non-critical alerts per service and severity. 0 disables the cap.
	PerMinute   int
	SendTimeout time.Duration
}

// Dispatcher fans alerts out to every sink. Raise never panics and waits
// at most the send timeout per sink, even for a sink that ignores its
// context; such a sink's late result is dropped.
type Dispatcher struct {
	sinks    []Sink
	observer Observer
	logger   logger.Logger
	cfg      Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	now func() time.Time
}

func NewDispatcher(cfg Config, observer Observer, log logger.Logger, sinks ...Sink) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Dispatcher{
		sinks:    sinks,
		observer: observer,
		logger:   log,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// Raise sends one alert. It reports whether the alert was delivered to the
// sinks; a suppressed alert returns false.
func (d *Dispatcher) Raise(service string, cause error, severity domain.Severity) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("alert dispatch panicked",
				logger.String("service", service),
				logger.Any("panic", r))
			sent = false
		}
	}()

	if !d.allow(service, severity) {
		d.logger.Debug("alert suppressed by rate limit",
			logger.String("service", service),
			logger.String("severity", string(severity)))
		return false
	}

	msg := "unknown failure"
	if cause != nil {
		msg = cause.Error()
	}
	a := &domain.Alert{
		ID:        uuid.NewString(),
		Service:   service,
		Severity:  severity,
		Message:   msg,
		Timestamp: d.now().UTC(),
	}

	if d.observer != nil {
		d.observer.ObserveAlert(string(severity))
	}

	for _, sink := range d.sinks {
		d.send(sink, a)
	}
	return true
}

func (d *Dispatcher) send(sink Sink, a *domain.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sink panicked: %v", r)
			}
		}()
		done <- sink.Send(ctx, a)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("send timed out after %s", d.cfg.SendTimeout)
	}
	if err != nil {
		d.logger.Warn("alert sink failed",
			logger.String("sink", fmt.Sprintf("%T", sink)),
			logger.String("alert_id", a.ID),
			logger.Error(err))
	}
}

func (d *Dispatcher) allow(service string, severity domain.Severity) bool {
	if severity == domain.SeverityCritical || d.cfg.PerMinute <= 0 {
		return true
	}

	key := service + "|" + string(severity)
	d.mu.Lock()
	lim, ok := d.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(d.cfg.PerMinute)), d.cfg.PerMinute)
		d.limiters[key] = lim
	}
	d.mu.Unlock()

	return lim.AllowN(d.now(), 1)
}

// Forget drops the rate limiters of a removed service.
func (d *Dispatcher) Forget(service string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sev := range []domain.Severity{domain.SeverityMedium, domain.SeverityHigh} {
		delete(d.limiters, service+"|"+string(sev))
	}
}

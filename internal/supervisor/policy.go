package supervisor

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/cenkalti/backoff/v5"
)

// Decision is a policy's answer to "may an automatic restart run now?".
type Decision int

const (
	Allow Decision = iota
	Wait
	Exhausted
	ManualOnly
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Wait:
		return "wait"
	case Exhausted:
		return "exhausted"
	case ManualOnly:
		return "manual"
	default:
		return "unknown"
	}
}

// RestartPolicy gates automatic restarts of one service.
// Manual restarts bypass Decide but are still passed to Record.
type RestartPolicy interface {
	Strategy() domain.RestartStrategy
	Decide(now time.Time, attempts int) Decision
	Record(now time.Time, err error)
}

// NewPolicy returns the policy for cfg.RestartStrategy.
// cfg is expected to have defaults applied.
func NewPolicy(cfg domain.ServiceConfig) RestartPolicy {
	switch cfg.RestartStrategy {
	case domain.StrategyExponentialBackoff:
		return newBackoffPolicy(cfg.RetryDelay, cfg.MaxBackoff, cfg.MaxRestarts)
	case domain.StrategyManual:
		return manualPolicy{}
	default:
		return immediatePolicy{maxRestarts: cfg.MaxRestarts}
	}
}

func exhausted(maxRestarts, attempts int) bool {
	return maxRestarts > 0 && attempts >= maxRestarts
}

// immediatePolicy restarts on every breach. Without MaxRestarts it never
// gives up.
type immediatePolicy struct {
	maxRestarts int
}

func (immediatePolicy) Strategy() domain.RestartStrategy { return domain.StrategyImmediate }

func (p immediatePolicy) Decide(_ time.Time, attempts int) Decision {
	if exhausted(p.maxRestarts, attempts) {
		return Exhausted
	}
	return Allow
}

func (immediatePolicy) Record(time.Time, error) {}

type manualPolicy struct{}

func (manualPolicy) Strategy() domain.RestartStrategy { return domain.StrategyManual }
func (manualPolicy) Decide(time.Time, int) Decision   { return ManualOnly }
func (manualPolicy) Record(time.Time, error)          {}

// backoffPolicy spaces automatic restarts after failures by
// retryDelay * 2^(n-1), capped, where n counts consecutive failed restarts.
type backoffPolicy struct {
	maxRestarts int

	mu        sync.Mutex
	b         *backoff.ExponentialBackOff
	notBefore time.Time
}

func newBackoffPolicy(initial, ceiling time.Duration, maxRestarts int) *backoffPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = ceiling
	b.Reset()
	return &backoffPolicy{maxRestarts: maxRestarts, b: b}
}

func (*backoffPolicy) Strategy() domain.RestartStrategy { return domain.StrategyExponentialBackoff }

func (p *backoffPolicy) Decide(now time.Time, attempts int) Decision {
	if exhausted(p.maxRestarts, attempts) {
		return Exhausted
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if now.Before(p.notBefore) {
		return Wait
	}
	return Allow
}

func (p *backoffPolicy) Record(now time.Time, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.b.Reset()
		p.notBefore = time.Time{}
		return
	}
	p.notBefore = now.Add(p.b.NextBackOff())
}

// NextAllowed returns the earliest time an automatic restart may run.
func (p *backoffPolicy) NextAllowed() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notBefore
}

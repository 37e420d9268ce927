package supervisor

import (
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
)

func TestNewPolicySelectsStrategy(t *testing.T) {
	tests := []struct {
		strategy domain.RestartStrategy
		want     domain.RestartStrategy
	}{
		{"", domain.StrategyImmediate},
		{domain.StrategyImmediate, domain.StrategyImmediate},
		{domain.StrategyExponentialBackoff, domain.StrategyExponentialBackoff},
		{domain.StrategyManual, domain.StrategyManual},
	}

	for _, tt := range tests {
		cfg := domain.ServiceConfig{Name: "svc", RestartStrategy: tt.strategy}.WithDefaults()
		if got := NewPolicy(cfg).Strategy(); got != tt.want {
			t.Errorf("NewPolicy(%q).Strategy() = %q, want %q", tt.strategy, got, tt.want)
		}
	}
}

// The default strategy never gives up on its own.
func TestImmediatePolicyIsUnboundedByDefault(t *testing.T) {
	p := NewPolicy(domain.ServiceConfig{Name: "svc"}.WithDefaults())
	now := time.Now()
	for attempts := 0; attempts < 10_000; attempts += 997 {
		if d := p.Decide(now, attempts); d != Allow {
			t.Fatalf("Decide(attempts=%d) = %v, want allow", attempts, d)
		}
		p.Record(now, errors.New("still broken"))
	}
}

func TestImmediatePolicyMaxRestarts(t *testing.T) {
	p := NewPolicy(domain.ServiceConfig{Name: "svc", MaxRestarts: 3}.WithDefaults())
	now := time.Now()
	for attempts, want := range []Decision{Allow, Allow, Allow, Exhausted, Exhausted} {
		if got := p.Decide(now, attempts); got != want {
			t.Errorf("Decide(attempts=%d) = %v, want %v", attempts, got, want)
		}
	}
}

func TestManualPolicy(t *testing.T) {
	p := NewPolicy(domain.ServiceConfig{Name: "svc", RestartStrategy: domain.StrategyManual}.WithDefaults())
	if got := p.Decide(time.Now(), 0); got != ManualOnly {
		t.Errorf("Decide() = %v, want manual", got)
	}
}

func TestBackoffPolicyDoublesAndCaps(t *testing.T) {
	cfg := domain.ServiceConfig{
		Name:            "svc",
		RestartStrategy: domain.StrategyExponentialBackoff,
		RetryDelay:      time.Second,
		MaxBackoff:      3 * time.Second,
	}.WithDefaults()
	p := NewPolicy(cfg).(*backoffPolicy)

	t0 := time.Unix(1_700_000_000, 0)
	if got := p.Decide(t0, 0); got != Allow {
		t.Fatalf("first restart should be allowed, got %v", got)
	}

	fail := errors.New("boom")
	wantDelays := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	now := t0
	for i, want := range wantDelays {
		p.Record(now, fail)
		next := p.NextAllowed()
		if got := next.Sub(now); got != want {
			t.Errorf("failure %d: delay = %v, want %v", i+1, got, want)
		}
		if d := p.Decide(next.Add(-time.Millisecond), i+1); d != Wait {
			t.Errorf("failure %d: Decide before deadline = %v, want wait", i+1, d)
		}
		if d := p.Decide(next, i+1); d != Allow {
			t.Errorf("failure %d: Decide at deadline = %v, want allow", i+1, d)
		}
		now = next
	}

	p.Record(now, nil)
	if !p.NextAllowed().IsZero() {
		t.Errorf("success should clear the deadline")
	}
	p.Record(now, fail)
	if got := p.NextAllowed().Sub(now); got != time.Second {
		t.Errorf("after reset delay = %v, want 1s", got)
	}
}

func TestBackoffPolicyExhausted(t *testing.T) {
	cfg := domain.ServiceConfig{
		Name:            "svc",
		RestartStrategy: domain.StrategyExponentialBackoff,
		MaxRestarts:     2,
	}.WithDefaults()
	p := NewPolicy(cfg)
	if got := p.Decide(time.Now(), 2); got != Exhausted {
		t.Errorf("Decide(attempts=2) = %v, want exhausted", got)
	}
}

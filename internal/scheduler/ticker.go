package scheduler

import (
	"context"
	"sync"
	"time"
)

// Ticker runs fn every interval on its own goroutine until stopped.
// A manual trigger runs fn out of band on the same goroutine, so runs
// of one Ticker never overlap.
type Ticker struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	trigger chan struct{}
	done    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
}

// NewTicker creates a stopped ticker.
func NewTicker(name string, interval time.Duration, fn func(ctx context.Context)) *Ticker {
	return &Ticker{
		name:     name,
		interval: interval,
		fn:       fn,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Name returns the ticker's name.
func (t *Ticker) Name() string { return t.name }

// Start launches the loop. Subsequent calls are no-ops.
func (t *Ticker) Start(parent context.Context) {
	t.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		t.cancel = cancel
		go t.loop(ctx)
	})
}

func (t *Ticker) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.fn(ctx)
		case <-t.trigger:
			t.fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Trigger queues one out-of-band run. It returns false when a run is
// already queued.
func (t *Ticker) Trigger() bool {
	select {
	case t.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop cancels the loop and waits for the in-flight run to return.
// It must not be called from within fn.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		// Burn startOnce so a later Start cannot resurrect the loop.
		t.startOnce.Do(func() {})
		if t.cancel != nil {
			t.cancel()
			<-t.done
		}
	})
}

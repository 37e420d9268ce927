package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrGroupStopped = errors.New("scheduler group stopped")

// Group owns a set of named tickers that can be cancelled as a whole.
type Group struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	tickers map[string]*Ticker
	stopped bool
}

// NewGroup derives every ticker's context from parent.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{
		ctx:     ctx,
		cancel:  cancel,
		tickers: make(map[string]*Ticker),
	}
}

// Start creates and launches a ticker under name.
func (g *Group) Start(name string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("ticker %s: interval must be > 0, got %v", name, interval)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return ErrGroupStopped
	}
	if _, ok := g.tickers[name]; ok {
		return fmt.Errorf("ticker %s already running", name)
	}

	t := NewTicker(name, interval, fn)
	g.tickers[name] = t
	t.Start(g.ctx)
	return nil
}

// Trigger queues an out-of-band run for name.
func (g *Group) Trigger(name string) bool {
	g.mu.Lock()
	t, ok := g.tickers[name]
	g.mu.Unlock()
	if !ok {
		return false
	}
	return t.Trigger()
}

// Stop cancels the ticker under name and waits for it to exit.
// It reports whether a ticker was running.
func (g *Group) Stop(name string) bool {
	g.mu.Lock()
	t, ok := g.tickers[name]
	delete(g.tickers, name)
	g.mu.Unlock()

	if !ok {
		return false
	}
	t.Stop()
	return true
}

// StopAll cancels every ticker and refuses new ones.
func (g *Group) StopAll() {
	g.mu.Lock()
	g.stopped = true
	tickers := make([]*Ticker, 0, len(g.tickers))
	for _, t := range g.tickers {
		tickers = append(tickers, t)
	}
	g.tickers = make(map[string]*Ticker)
	g.mu.Unlock()

	g.cancel()
	for _, t := range tickers {
		t.Stop()
	}
}

// Done is closed once StopAll runs.
func (g *Group) Done() <-chan struct{} {
	return g.ctx.Done()
}

// Running reports whether a ticker exists under name.
func (g *Group) Running(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.tickers[name]
	return ok
}

// Len returns the number of live tickers.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tickers)
}

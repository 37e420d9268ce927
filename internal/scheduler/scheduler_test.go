package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestTickerRunsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	tk := NewTicker("svc", 5*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	})
	tk.Start(context.Background())

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	tk.Stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")

	// Idempotent, and Start after Stop stays dead.
	tk.Stop()
	tk.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestTickerTrigger(t *testing.T) {
	defer goleak.VerifyNone(t)

	ran := make(chan struct{}, 4)
	tk := NewTicker("svc", time.Hour, func(ctx context.Context) {
		ran <- struct{}{}
	})
	tk.Start(context.Background())
	defer tk.Stop()

	assert.True(t, tk.Trigger())
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("trigger did not run fn")
	}
}

func TestTickerStopCancelsInFlightRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	tk := NewTicker("slow", time.Millisecond, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
	})
	tk.Start(context.Background())
	<-started

	done := make(chan struct{})
	go func() {
		tk.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on in-flight run")
	}
}

func TestStopBeforeStart(t *testing.T) {
	tk := NewTicker("never", time.Second, func(ctx context.Context) {})
	tk.Stop()
}

func TestGroup(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewGroup(context.Background())
	var a, b atomic.Int32

	require.NoError(t, g.Start("a", 5*time.Millisecond, func(ctx context.Context) { a.Add(1) }))
	require.NoError(t, g.Start("b", 5*time.Millisecond, func(ctx context.Context) { b.Add(1) }))
	assert.Error(t, g.Start("a", time.Second, func(ctx context.Context) {}), "duplicate name")
	assert.Error(t, g.Start("c", 0, func(ctx context.Context) {}), "zero interval")
	assert.Equal(t, 2, g.Len())

	require.Eventually(t, func() bool { return a.Load() > 0 && b.Load() > 0 }, time.Second, time.Millisecond)

	assert.True(t, g.Stop("a"))
	assert.False(t, g.Stop("a"))
	assert.False(t, g.Running("a"))
	assert.True(t, g.Running("b"))

	g.StopAll()
	assert.Zero(t, g.Len())
	assert.ErrorIs(t, g.Start("d", time.Second, func(ctx context.Context) {}), ErrGroupStopped)
	assert.False(t, g.Trigger("b"))
}

func TestPeriodicServe(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	p := NewPeriodic("discovery", time.Hour, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("first pass fails")
		}
		return nil
	}, logger.NewNop(), RunOnStart())
	assert.Equal(t, "discovery", p.String())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Serve(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	assert.True(t, p.Trigger())
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

type fakePruner struct {
	cutoff time.Time
	n      int
	err    error
}

func (f *fakePruner) PruneResults(ctx context.Context, cutoff time.Time) (int, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestHistoryCollector(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	store := &fakePruner{n: 4}

	c := NewHistoryCollector(store, logger.New("error", false), 24*time.Hour)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Collect(context.Background()))
	assert.Equal(t, now.Add(-24*time.Hour), store.cutoff)

	store.err = errors.New("redis down")
	assert.Error(t, c.Collect(context.Background()))

	def := NewHistoryCollector(store, logger.NewNop(), 0)
	assert.Equal(t, DefaultHistoryRetention, def.retention)
}

func TestTreeRestartsCrashedService(t *testing.T) {
	defer goleak.VerifyNone(t)

	var runs atomic.Int32
	tree := NewTree("test", logger.NewNop(), TreeConfig{
		FailureBackoff:  time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	tree.Add(&crashy{runs: &runs})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, time.Millisecond)
	cancel()
	<-errCh
}

type crashy struct {
	runs *atomic.Int32
}

func (c *crashy) Serve(ctx context.Context) error {
	if c.runs.Add(1) == 1 {
		return errors.New("crash")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *crashy) String() string { return "crashy" }

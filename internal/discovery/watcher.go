package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher fires trigger whenever the discovery file changes on disk.
// The parent directory is watched so editors that replace the file by
// rename are still seen.
type Watcher struct {
	path     string
	trigger  func() bool
	debounce time.Duration
	logger   logger.Logger
}

func NewWatcher(path string, trigger func() bool, log logger.Logger) *Watcher {
	return &Watcher{
		path:     path,
		trigger:  trigger,
		debounce: defaultDebounce,
		logger:   log,
	}
}

// Serve implements suture.Service.
func (w *Watcher) Serve(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	base := filepath.Base(w.path)
	w.logger.Info("watching discovery file", logger.String("path", w.path))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			if filepath.Base(ev.Name) != base || ev.Op&relevant == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if w.trigger() {
				w.logger.Info("discovery file changed, cycle queued")
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			w.logger.Warn("file watcher error", logger.Error(err))
		}
	}
}

func (w *Watcher) String() string {
	return "discovery-watcher"
}

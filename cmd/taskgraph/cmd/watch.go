package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/logging"
)

var (
	watchDebounce = 300 * time.Millisecond
	watchTick     = 100 * time.Millisecond
)

// watchSpec calls fn once, then again every time the file at path settles
// after a change, until ctx is cancelled. fn errors are logged; watching
// continues. The parent directory is watched because editors often replace
// files instead of writing them in place.
func watchSpec(ctx context.Context, path string, logger *logging.Logger, fn func() error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving spec path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	runOnce := func() {
		if err := fn(); err != nil {
			logger.Error("run failed", "spec", path, "error", err)
		}
		logger.Info("watching for changes", "spec", path)
	}
	runOnce()

	ticker := time.NewTicker(watchTick)
	defer ticker.Stop()

	var lastChange time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("spec changed", "spec", path, "op", event.Op.String())
			lastChange = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)

		case <-ticker.C:
			if lastChange.IsZero() || time.Since(lastChange) < watchDebounce {
				continue
			}
			lastChange = time.Time{}
			runOnce()
		}
	}
}

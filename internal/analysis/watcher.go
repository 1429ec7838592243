package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// WatchSignatures reloads the signature table at path into e whenever the
// file changes, until ctx is cancelled. A table that fails to load is logged
// and the previous one stays in effect. The directory is watched rather than
// the file so editors that replace the file by rename are handled.
func WatchSignatures(ctx context.Context, path string, e *Engine, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create signature watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce = time.After(reloadDebounce)
				}
			case <-debounce:
				debounce = nil
				t, err := LoadSignatures(path)
				if err != nil {
					logger.Error("reload signatures", "err", err, "path", path)
					continue
				}
				e.SetSignatures(t)
				logger.Info("signatures reloaded", "path", path, "signatures", t.Len())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("signature watcher error", "err", err)
			}
		}
	}()
	return nil
}

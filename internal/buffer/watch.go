package buffer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the fallback check period when change notification
// is unavailable or misses an event.
const DefaultPollInterval = 500 * time.Millisecond

// WaitForFile blocks until path exists or ctx is done. It watches the
// parent directory for create/rename events and also polls at interval, so
// readiness is detected promptly without relying on either mechanism alone.
func WaitForFile(ctx context.Context, path string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if fileExists(path) {
		return nil
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if addErr := watcher.Add(filepath.Dir(path)); addErr == nil {
			events = watcher.Events
			watchErrs = watcher.Errors
		}
	}

	// The file may have appeared while the watch was being set up.
	if fileExists(path) {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(path) && ev.Has(fsnotify.Create|fsnotify.Rename|fsnotify.Write) && fileExists(path) {
				return nil
			}
		case _, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
			}
		case <-ticker.C:
			if fileExists(path) {
				return nil
			}
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

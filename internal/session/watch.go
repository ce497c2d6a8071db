package session

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events one atomic save produces.
const watchDebounce = 100 * time.Millisecond

// Reload re-reads the stored token and verifies it, replacing the current
// session. It is what Watch runs after the token file changes.
func (g *Guard) Reload(ctx context.Context) error {
	stored, err := g.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading stored token: %w", err)
	}
	if stored != "" && stored == g.Token() && g.State() == Authenticated {
		return nil
	}
	return g.Init(ctx)
}

// Watch reloads the session whenever the token file at path is written,
// replaced or removed (for example by `gmvdash login` in another terminal).
// It blocks until ctx is cancelled.
func (g *Guard) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating token watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: saves replace the file by rename.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(watchDebounce)

		case <-debounce:
			debounce = nil
			g.logger.Info("token file changed, reloading session", "path", target)
			if err := g.Reload(ctx); err != nil {
				g.logger.Warn("session reload failed", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			g.logger.Warn("token watcher error", "error", err)
		}
	}
}

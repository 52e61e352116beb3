package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/logger"
)

// resetter is the part of the retrieval service the watcher drives.
type resetter interface {
	Reset()
}

// indexWatcher resets persistent retrieval when a new index manifest lands
// in the index directory. The manifest is written last by build-index, so
// its arrival means the whole artifact set is in place.
type indexWatcher struct {
	dir    string
	target resetter
}

func newIndexWatcher(dir string, target resetter) *indexWatcher {
	return &indexWatcher{dir: dir, target: target}
}

// handleEvent reports whether the event triggered a reset.
func (w *indexWatcher) handleEvent(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != domain.ManifestFileName {
		return false
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	logger.Info("Index manifest changed, reloading on next query")
	w.target.Reset()
	return true
}

// Run watches the index directory until ctx is cancelled.
func (w *indexWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	logger.Debug("Watching %s for index rebuilds", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Index watcher: %v", err)
		}
	}
}

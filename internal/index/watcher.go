package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-indexes files as they change on disk. Events are debounced
// so editors that write in bursts trigger one reindex per file.
type Watcher struct {
	indexer    *Indexer
	watcher    *fsnotify.Watcher
	projectDir string

	pendingMu    sync.Mutex
	pendingFiles map[string]time.Time
	debounceTime time.Duration
}

// WatcherConfig contains watcher configuration.
type WatcherConfig struct {
	Indexer      *Indexer
	DebounceTime time.Duration // Default: 500ms
}

// NewWatcher creates a new file watcher over the indexer's project.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceTime := cfg.DebounceTime
	if debounceTime == 0 {
		debounceTime = 500 * time.Millisecond
	}

	return &Watcher{
		indexer:      cfg.Indexer,
		watcher:      watcher,
		projectDir:   cfg.Indexer.ProjectDir(),
		pendingFiles: make(map[string]time.Time),
		debounceTime: debounceTime,
	}, nil
}

// Watch blocks processing events until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.addWatchDirs(); err != nil {
		return err
	}

	slog.Info("watching for file changes", "dir", w.projectDir)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// Close closes the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// addWatchDirs recursively registers directories, honoring excludes.
func (w *Watcher) addWatchDirs() error {
	return filepath.WalkDir(w.projectDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, _ := filepath.Rel(w.projectDir, path)
		if w.indexer.excluded(relPath + "/") {
			return filepath.SkipDir
		}
		// The data dir holds the databases; watching it would loop.
		if strings.HasPrefix(d.Name(), ".") && relPath != "." {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			slog.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// handleEvent queues a changed file for debounced reindexing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	relPath, err := filepath.Rel(w.projectDir, event.Name)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return
	}
	if w.indexer.excluded(relPath) || strings.HasPrefix(relPath, ".") {
		return
	}

	w.pendingMu.Lock()
	w.pendingFiles[relPath] = time.Now()
	w.pendingMu.Unlock()

	slog.Debug("file changed", "path", relPath, "op", event.Op.String())
}

// processDebounced flushes files that have been quiet long enough.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, relPath := range w.takeStable() {
				if ctx.Err() != nil {
					return
				}
				if err := w.indexer.IndexFile(ctx, relPath); err != nil {
					slog.Warn("failed to reindex file", "file", relPath, "error", err)
				} else {
					slog.Debug("reindexed file", "file", relPath)
				}
			}
		}
	}
}

// takeStable removes and returns paths whose last event is older than the
// debounce window.
func (w *Watcher) takeStable() []string {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	now := time.Now()
	var stable []string
	for relPath, changedAt := range w.pendingFiles {
		if now.Sub(changedAt) >= w.debounceTime {
			stable = append(stable, relPath)
			delete(w.pendingFiles, relPath)
		}
	}
	return stable
}

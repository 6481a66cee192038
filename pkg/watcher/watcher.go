// Package watcher reloads the template tree when files under it change.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Watcher watches a directory tree and calls onChange with the relative
// paths that changed, once per quiet period.
type Watcher struct {
	logger    *slog.Logger
	config    *Config
	root      string
	fsWatcher *fsnotify.Watcher
	debouncer *debouncer
	onChange  func(paths []string)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Watcher for root. Nothing is watched until Start.
func New(logger *slog.Logger, root string, config *Config, onChange func(paths []string)) (*Watcher, error) {
	if config == nil {
		config = DefaultConfig()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		logger:    logger,
		config:    config,
		root:      filepath.Clean(root),
		fsWatcher: fsWatcher,
		onChange:  onChange,
	}
	w.debouncer = newDebouncer(config.window(), w.flush)
	return w, nil
}

// Start watches root and every directory below it, then handles events in
// the background until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.addTree(w.root); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	go w.handleEvents(ctx)

	w.logger.Info("Watching template directory", "dir", w.root)
	return nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			w.logger.Debug("Skipping unreadable path", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.shouldIgnore(p) {
			return filepath.SkipDir
		}
		if err = w.fsWatcher.Add(p); err != nil {
			w.logger.Warn("Failed to watch directory", "path", p, "error", err)
		}
		return nil
	})
}

func (w *Watcher) handleEvents(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event.Name) {
				continue
			}
			w.logger.Debug("Template file event", "path", event.Name, "op", event.Op.String())

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err = w.addTree(event.Name); err != nil {
						w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.debouncer.add(w.rel(event.Name))
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) flush(paths []string) {
	w.logger.Info("Template files changed", "count", len(paths))
	if w.onChange != nil {
		w.onChange(paths)
	}
}

func (w *Watcher) rel(p string) string {
	r, err := filepath.Rel(w.root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

func (w *Watcher) shouldIgnore(p string) bool {
	rel := w.rel(p)
	if !w.config.WatchHidden {
		for _, seg := range strings.Split(rel, "/") {
			if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
				return true
			}
		}
	}
	for _, pattern := range w.config.IgnorePatterns {
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}
	return false
}

// Close stops watching. Pending changes are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.debouncer.stop()
	if w.running {
		w.cancel()
		w.running = false
	}
	err := w.fsWatcher.Close()
	if w.done != nil {
		<-w.done
	}
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}
	return err
}

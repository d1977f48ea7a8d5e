// Package watcher bridges filesystem events to indexing passes.
// Events are debounced so a burst of saves triggers one pass.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codegraph/internal/extract"
	"codegraph/internal/logging"
	"codegraph/internal/pipeline"
	"codegraph/internal/snapshot"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher watches one workspace root and re-runs the indexer when
// supported source files change. The pipeline's own diff decides what
// actually gets re-extracted, so the watcher only needs to know that
// something relevant happened, not what.
type Watcher struct {
	// Debounce is how long to wait after the last event before
	// triggering a pass.
	Debounce time.Duration

	// OnPass is called after each triggered pass, if set.
	OnPass func(*pipeline.Summary)

	indexer *pipeline.Indexer
	root    string
	fsw     *fsnotify.Watcher
	scanner *snapshot.Scanner
	log     *slog.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New creates a watcher over root. Every directory under root that
// the scanner would walk is registered; new directories are added as
// they appear.
func New(indexer *pipeline.Indexer, root string) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		indexer:  indexer,
		root:     absRoot,
		fsw:      fsw,
		scanner:  snapshot.NewScanner(),
		log:      logging.Default("watcher"),
		Debounce: defaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if err := w.addTree(absRoot); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start runs the event loop until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		w.fsw.Close()
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	passCh := make(chan struct{}, 1)
	pending := 0

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			pending++

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("watch new directory",
							slog.String("path", event.Name),
							slog.Any("error", err))
					}
				}
			}

			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			timer = time.AfterFunc(w.Debounce, func() {
				select {
				case passCh <- struct{}{}:
				default:
				}
			})

		case <-passCh:
			w.log.Info("changes detected", slog.Int("events", pending))
			pending = 0
			summary, err := w.indexer.IndexWorkspace(ctx, w.root, pipeline.Options{})
			if err != nil {
				w.log.Error("triggered pass failed", slog.Any("error", err))
				continue
			}
			if w.OnPass != nil {
				w.OnPass(summary)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", slog.Any("error", err))
		}
	}
}

// relevant filters events down to write/create/remove/rename of
// supported source files, or directory creation.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.scanner.Denied(part) {
			return false
		}
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return event.Op&fsnotify.Create != 0
	}
	_, supported := extract.LanguageForFile(event.Name)
	return supported
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("watch walk", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (w.scanner.Denied(d.Name()) || d.Name()[0] == '.') {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.Warn("watch add", slog.String("path", path), slog.Any("error", err))
		}
		return nil
	})
}

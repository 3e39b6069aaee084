// Package watch detects out of band edits to a filesystem backed store and
// feeds them back into the workspace.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Op is the kind of change observed on a blob.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a change to the .json blob at Locator, relative to the store
// root with forward slashes.
type Event struct {
	Locator string
	Op      Op
}

// Watcher watches namespaces below a store root. Directories created inside
// a watched namespace are picked up automatically, one level deep.
type Watcher struct {
	watcher *fsnotify.Watcher
	root    string
	logger  *zap.Logger
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	watched map[string]struct{}
}

// New creates a watcher for the store rooted at root. Start must be called
// before it emits events.
func New(root string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher: fw,
		root:    abs,
		logger:  logger,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		watched: make(map[string]struct{}),
	}, nil
}

// Start watches each namespace and its existing subdirectories. Missing
// namespaces are created.
func (w *Watcher) Start(namespaces ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	for _, ns := range namespaces {
		dir := filepath.Join(w.root, filepath.FromSlash(ns))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := w.addLocked(dir); err != nil {
			return err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				if err := w.addLocked(filepath.Join(dir, e.Name())); err != nil {
					return err
				}
			}
		}
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop ends watching and blocks until the event loop has exited. The
// Events and Errors channels are closed afterwards.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return nil
}

func (w *Watcher) Events() <-chan Event { return w.events }

func (w *Watcher) Errors() <-chan error { return w.errors }

// IsRunning reports whether Start has been called without a matching Stop.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) addLocked(dir string) error {
	if _, ok := w.watched[dir]; ok {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.watched[dir] = struct{}{}
	w.logger.Debug("Watching directory", zap.String("dir", dir))
	return nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev, ok := w.convertEvent(event); ok {
				select {
				case w.events <- ev:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event onto a blob event. New directories
// are added to the watch list and produce no event.
func (w *Watcher) convertEvent(event fsnotify.Event) (Event, bool) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if err := w.addLocked(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
			w.mu.Unlock()
			return Event{}, false
		}
	}

	if !strings.HasSuffix(event.Name, ".json") {
		return Event{}, false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Event{}, false
	}

	var op Op
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// a rename arrives as a create for the new name
		op = OpDelete
	default:
		return Event{}, false
	}
	return Event{Locator: filepath.ToSlash(rel), Op: op}, true
}

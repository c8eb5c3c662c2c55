// Package watcher observes the content root for filesystem changes and
// delivers debounced change batches to the route index.
//
// Events for one change burst (an editor save, an unpacked archive) are
// coalesced so the index refreshes once per burst instead of once per inode
// touched. Hidden entries never produce events; they are invisible to routing
// and a change to them cannot alter the route mapping.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/routefs/internal/logging"
)

// ChangeEvent is one observed filesystem change, with the path relative to
// the content root.
type ChangeEvent struct {
	Type    EventType
	RelPath string
	IsDir   bool
	ModTime time.Time
}

// EventType classifies a filesystem change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// ChangeHandler receives one debounced batch of events.
type ChangeHandler func(events []ChangeEvent) error

// ContentWatcher watches the content root recursively and reports changes
// that can affect routing.
type ContentWatcher struct {
	root      string
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	logger    logging.Logger

	mutex    sync.RWMutex
	handlers []ChangeHandler
}

// debouncer groups rapid changes into one batch per quiet period.
type debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// New creates a watcher rooted at the content directory. The root must exist;
// it is resolved to an absolute path so event paths can be made root-relative.
func New(root string, debounceDelay time.Duration, logger logging.Logger) (*ContentWatcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving content root: %w", err)
	}
	if fi, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("content root: %w", err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("content root %s is not a directory", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig())
	}

	return &ContentWatcher{
		root:    absRoot,
		watcher: fsw,
		debouncer: &debouncer{
			delay:   debounceDelay,
			events:  make(chan ChangeEvent, 100),
			output:  make(chan []ChangeEvent, 10),
		},
		logger: logger.WithComponent("watcher"),
	}, nil
}

// AddHandler registers a handler for debounced change batches.
func (cw *ContentWatcher) AddHandler(handler ChangeHandler) {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// AddRecursive registers the directory and every visible subdirectory with
// the underlying watcher. Called once at startup for the root and again for
// directories created while running; fsnotify watches are not recursive.
func (cw *ContentWatcher) AddRecursive(dir string) error {
	abs, err := cw.validatePath(dir)
	if err != nil {
		return err
	}

	return filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			cw.logger.Warn(context.Background(), err, "skipping unwatchable path", "path", path)
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != abs && hiddenName(info.Name()) {
			return filepath.SkipDir
		}
		return cw.watcher.Add(path)
	})
}

// validatePath resolves a path and confirms it stays inside the content root.
func (cw *ContentWatcher) validatePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if abs != cw.root && !strings.HasPrefix(abs, cw.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the content root", path)
	}
	return abs, nil
}

// Start launches the watch loops. They run until the context is cancelled.
func (cw *ContentWatcher) Start(ctx context.Context) error {
	if err := cw.AddRecursive(cw.root); err != nil {
		return err
	}

	go cw.debouncer.run(ctx)
	go cw.dispatchBatches(ctx)
	go cw.watchLoop(ctx)

	return nil
}

// Stop closes the underlying watcher.
func (cw *ContentWatcher) Stop() error {
	cw.debouncer.mutex.Lock()
	if cw.debouncer.timer != nil {
		cw.debouncer.timer.Stop()
	}
	cw.debouncer.mutex.Unlock()

	return cw.watcher.Close()
}

func (cw *ContentWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFsnotifyEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn(ctx, err, "watcher error, continuing")
		}
	}
}

func (cw *ContentWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	rel, ok := cw.relPath(event.Name)
	if !ok || hiddenPath(rel) {
		return
	}

	change := ChangeEvent{
		Type:    eventType(event.Op),
		RelPath: rel,
	}

	if info, err := os.Stat(event.Name); err == nil {
		change.IsDir = info.IsDir()
		change.ModTime = info.ModTime()

		// New directories need their own watch; fsnotify will not see
		// changes inside them otherwise.
		if change.IsDir && change.Type == EventTypeCreated {
			if err := cw.AddRecursive(event.Name); err != nil {
				cw.logger.Warn(context.Background(), err, "watching new directory failed", "path", rel)
			}
		}
	}

	select {
	case cw.debouncer.events <- change:
	default:
		// Backpressure drops the event; the next one for the same
		// subtree triggers the refresh anyway.
	}
}

// relPath converts an absolute event path to a slash-separated root-relative
// path.
func (cw *ContentWatcher) relPath(abs string) (string, bool) {
	rel, err := filepath.Rel(cw.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (cw *ContentWatcher) dispatchBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-cw.debouncer.output:
			cw.mutex.RLock()
			handlers := cw.handlers
			cw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					cw.logger.Warn(ctx, err, "change handler failed", "events", len(events))
				}
			}
		}
	}
}

func eventType(op fsnotify.Op) EventType {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return EventTypeCreated
	case op&fsnotify.Write == fsnotify.Write:
		return EventTypeModified
	case op&fsnotify.Remove == fsnotify.Remove:
		return EventTypeDeleted
	case op&fsnotify.Rename == fsnotify.Rename:
		return EventTypeRenamed
	default:
		return EventTypeModified
	}
}

// hiddenName reports whether a single file or directory name is excluded
// from routing.
func hiddenName(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

// hiddenPath reports whether any segment of a root-relative path is hidden.
func hiddenPath(rel string) bool {
	for _, segment := range strings.Split(rel, "/") {
		if hiddenName(segment) {
			return true
		}
	}
	return false
}

func (d *debouncer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Last event per path wins within a burst.
	eventMap := make(map[string]ChangeEvent, len(d.pending))
	for _, event := range d.pending {
		eventMap[event.RelPath] = event
	}

	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}

	select {
	case d.output <- events:
	default:
	}

	d.pending = d.pending[:0]
}

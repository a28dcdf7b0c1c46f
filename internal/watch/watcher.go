// Package watch forwards on-disk changes of shader files to the workspace
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/shadersense/internal/config"
	"github.com/standardbeagle/shadersense/internal/debug"
	"github.com/standardbeagle/shadersense/internal/types"
	"github.com/standardbeagle/shadersense/internal/workspace"
)

// EventType is the kind of change seen for a path
type EventType int

const (
	EventCreate EventType = iota
	EventWrite
	EventRemove
	EventRename
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	}
	return "unknown"
}

// Handler receives one debounced change
type Handler func(path string, ev EventType)

// Watcher monitors the project root and include directories for shader
// file changes and hands them to a Handler after a quiet period
type Watcher struct {
	watcher   *fsnotify.Watcher
	cfg       *config.Config
	ignore    *config.IgnoreMatcher
	debouncer *eventDebouncer
	handler   Handler
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	eventsProcessed int64
	errorCount      int64
	lastEventTime   time.Time
	statsMu         sync.RWMutex
}

// New creates a watcher; nothing is watched until Start
func New(cfg *config.Config, handler Handler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher: fw,
		cfg:     cfg,
		ignore:  config.NewIgnoreMatcher(cfg),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
	w.debouncer = newEventDebouncer(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond, w.dispatch)
	return w, nil
}

// Start watches every directory under dirs
func (w *Watcher) Start(dirs ...string) error {
	if !w.cfg.Watch.Enabled {
		log.Printf("File watching disabled in configuration")
		return nil
	}
	visited := make(map[string]bool)
	for _, dir := range dirs {
		debug.LogWatch("watching %s\n", dir)
		if err := w.addWatches(dir, visited); err != nil {
			return fmt.Errorf("failed to add watches starting from %s: %w", dir, err)
		}
	}

	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop closes the watcher and waits for in-flight callbacks. Pending
// events are dropped.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.watcher.Close()
	if err != nil {
		log.Printf("Error closing fsnotify watcher: %v", err)
	}
	w.wg.Wait()
	w.debouncer.stop()
	return err
}

func (w *Watcher) addWatches(root string, visited map[string]bool) error {
	if _, err := os.Stat(root); err != nil {
		return err
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		// Symlink cycles and include dirs nested in the root
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if path != root && w.ignore.Match(path, true) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("Warning: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.incrementStats(0, 1)
			log.Printf("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	debug.LogWatch("event %v for %s\n", event.Op, path)

	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !w.ignore.Match(path, true) {
			if err := w.watcher.Add(path); err != nil {
				log.Printf("Warning: failed to add watch for new directory %s: %v", path, err)
			}
		}
		return
	}
	if !w.shouldProcess(path) {
		return
	}

	var ev EventType
	switch {
	case err != nil || event.Op&fsnotify.Remove != 0:
		ev = EventRemove
	case event.Op&fsnotify.Create != 0:
		ev = EventCreate
	case event.Op&fsnotify.Write != 0:
		ev = EventWrite
	case event.Op&fsnotify.Rename != 0:
		ev = EventRename
	default:
		return
	}
	w.debouncer.addEvent(path, ev)
}

// shouldProcess accepts shader sources that are not excluded
func (w *Watcher) shouldProcess(path string) bool {
	if types.LanguageFromPath(path) == types.LanguageUnknown {
		return false
	}
	return !w.ignore.Match(path, false)
}

func (w *Watcher) dispatch(path string, ev EventType) {
	if w.ctx.Err() != nil {
		return
	}
	w.handler(path, ev)
	w.incrementStats(1, 0)
}

func (w *Watcher) incrementStats(events, errors int64) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.eventsProcessed += events
	w.errorCount += errors
	w.lastEventTime = time.Now()
}

// Stats reports what the watcher has done so far
func (w *Watcher) Stats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return Stats{
		EventsProcessed: w.eventsProcessed,
		ErrorCount:      w.errorCount,
		LastEventTime:   w.lastEventTime,
		IsActive:        w.ctx.Err() == nil,
	}
}

// Stats contains counters of a watcher
type Stats struct {
	EventsProcessed int64     `json:"events_processed"`
	ErrorCount      int64     `json:"error_count"`
	LastEventTime   time.Time `json:"last_event_time"`
	IsActive        bool      `json:"is_active"`
}

// eventDebouncer keeps the latest event per path and flushes them together
// once no event arrived for the debounce interval
type eventDebouncer struct {
	events   map[string]EventType
	mu       sync.Mutex
	debounce time.Duration
	timer    *time.Timer
	closed   bool
	inflight sync.WaitGroup
	fn       func(path string, ev EventType)
}

func newEventDebouncer(debounce time.Duration, fn func(string, EventType)) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]EventType),
		debounce: debounce,
		fn:       fn,
	}
}

func (d *eventDebouncer) addEvent(path string, ev EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.events[path] = ev
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

func (d *eventDebouncer) flush() {
	d.mu.Lock()
	if d.closed || len(d.events) == 0 {
		d.mu.Unlock()
		return
	}
	events := d.events
	d.events = make(map[string]EventType)
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	debug.LogWatch("processing %d debounced file events\n", len(events))

	// Removals first so a rename pair settles on the new path
	var removes, rest []string
	for path, ev := range events {
		if ev == EventRemove {
			removes = append(removes, path)
		} else {
			rest = append(rest, path)
		}
	}
	for _, path := range removes {
		d.fn(path, EventRemove)
	}
	for _, path := range rest {
		d.fn(path, events[path])
	}
}

// stop drops pending events and waits for a running flush
func (d *eventDebouncer) stop() {
	d.mu.Lock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.inflight.Wait()
}

// Forward returns a handler that feeds changes into ws
func Forward(ctx context.Context, ws *workspace.State) Handler {
	return func(path string, ev EventType) {
		if err := ws.DiskChanged(ctx, path); err != nil {
			debug.LogWatch("%s %s: %v\n", ev, path, err)
		}
	}
}

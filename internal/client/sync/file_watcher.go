package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	DefaultIgnoreTimeout   = time.Second
	defaultCleanupInterval = 15 * time.Second
	eventBufferSize        = 64
	defaultDebounceTimeout = 50 * time.Millisecond
)

// FilterCallback is a function that returns true if the event should be filtered.
type FilterCallback func(path string) bool

// ChangeOp is the kind of file system change seen by the watcher.
type ChangeOp string

const (
	ChangeCreate ChangeOp = "create"
	ChangeWrite  ChangeOp = "write"
	ChangeRemove ChangeOp = "remove"
	ChangeRename ChangeOp = "rename"
)

// ChangeEvent is a debounced change of one path.
type ChangeEvent struct {
	Path string
	Op   ChangeOp
}

func toChangeOp(e notify.Event) ChangeOp {
	switch {
	case e&notify.Remove != 0:
		return ChangeRemove
	case e&notify.Rename != 0:
		return ChangeRename
	case e&notify.Create != 0:
		return ChangeCreate
	default:
		return ChangeWrite
	}
}

// FileWatcher watches any number of directory trees and delivers debounced
// changes on one bounded channel.
type FileWatcher struct {
	roots           map[string]struct{}
	rootsMu         sync.Mutex
	events          chan ChangeEvent
	rawEvents       chan notify.EventInfo
	ignore          map[string]time.Time
	ignoreMu        sync.RWMutex
	cleanupInterval time.Duration
	done            chan struct{}
	wg              sync.WaitGroup
	// Debouncing fields
	pendingEvents   map[string]ChangeEvent
	eventTimers     map[string]*time.Timer
	debounceMu      sync.Mutex
	debounceTimeout time.Duration
	// Raw event filtering
	ignoreCallback FilterCallback
	callbackMu     sync.RWMutex
	started        bool
	stopOnce       sync.Once
}

func NewFileWatcher() *FileWatcher {
	return &FileWatcher{
		roots:           make(map[string]struct{}),
		events:          make(chan ChangeEvent, eventBufferSize),
		rawEvents:       make(chan notify.EventInfo, eventBufferSize),
		ignore:          make(map[string]time.Time),
		cleanupInterval: defaultCleanupInterval,
		done:            make(chan struct{}),
		pendingEvents:   make(map[string]ChangeEvent),
		eventTimers:     make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

func (fw *FileWatcher) SetCleanupInterval(interval time.Duration) {
	fw.cleanupInterval = interval
}

// SetDebounceTimeout sets the debounce timeout for events.
func (fw *FileWatcher) SetDebounceTimeout(timeout time.Duration) {
	fw.debounceTimeout = timeout
}

// FilterPaths sets a callback function to filter out raw events before debouncing
// The callback should return true if the event should be ignored.
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.callbackMu.Lock()
	defer fw.callbackMu.Unlock()
	fw.ignoreCallback = callback
}

// Watch adds dir, recursively, to the watched trees. Already watched
// directories are skipped.
func (fw *FileWatcher) Watch(dir string) error {
	dir = filepath.Clean(dir)

	fw.rootsMu.Lock()
	defer fw.rootsMu.Unlock()

	if _, ok := fw.roots[dir]; ok {
		return nil
	}
	if err := notify.Watch(dir+"/...", fw.rawEvents, notify.Create, notify.Remove, notify.Rename, notify.Write); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	fw.roots[dir] = struct{}{}
	slog.Debug("file watcher", "watch", dir)
	return nil
}

// Roots returns the watched directories.
func (fw *FileWatcher) Roots() []string {
	fw.rootsMu.Lock()
	defer fw.rootsMu.Unlock()

	roots := make([]string, 0, len(fw.roots))
	for root := range fw.roots {
		roots = append(roots, root)
	}
	return roots
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "roots", len(fw.Roots()))

	fw.started = true

	// Start the filtering goroutine
	fw.wg.Add(1)
	go fw.filterEvents(ctx)

	// Start the cleanup goroutine for expired entries
	fw.wg.Add(1)
	go fw.cleanupExpiredEntries(ctx)

	return nil
}

func (fw *FileWatcher) Stop() {
	slog.Info("file watcher stopping")

	notify.Stop(fw.rawEvents)
	if !fw.started {
		return
	}

	// Signal all goroutines to stop
	fw.stopOnce.Do(func() { close(fw.done) })

	// Wait for all goroutines to finish
	fw.wg.Wait()

	slog.Info("file watcher stopped")
}

func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// IgnoreOnce adds a path to be ignored on the next event with default timeout.
func (fw *FileWatcher) IgnoreOnce(path string) {
	fw.IgnoreOnceWithTimeout(path, DefaultIgnoreTimeout)
}

// IgnoreOnceWithTimeout adds a path to be ignored on the next event with custom timeout.
func (fw *FileWatcher) IgnoreOnceWithTimeout(path string, timeout time.Duration) {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()
	fw.ignore[filepath.Clean(path)] = time.Now().Add(timeout)
}

// isPathTemporarilyIgnored checks if a path was requested to be ignored and removes it if found.
func (fw *FileWatcher) isPathTemporarilyIgnored(path string) bool {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()

	expiry, exists := fw.ignore[path]
	if !exists {
		return false
	}
	delete(fw.ignore, path)
	return time.Now().Before(expiry)
}

// filterEvents filters out ignored paths, debounces events, and forwards the rest.
func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer func() {
		slog.Debug("file watcher filter events done")

		fw.debounceMu.Lock()
		for path, timer := range fw.eventTimers {
			timer.Stop()
			delete(fw.eventTimers, path)
			delete(fw.pendingEvents, path)
		}
		fw.debounceMu.Unlock()

		fw.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}

			fw.callbackMu.RLock()
			filter := fw.ignoreCallback
			fw.callbackMu.RUnlock()
			if filter != nil && filter(event.Path()) {
				continue
			}

			// editors and the engine write in bursts; only the last event of a burst is delivered
			fw.debounceEvent(ChangeEvent{Path: filepath.Clean(event.Path()), Op: toChangeOp(event.Event())})
		}
	}
}

// debounceEvent handles debouncing logic for file events.
func (fw *FileWatcher) debounceEvent(event ChangeEvent) {
	path := event.Path

	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, exists := fw.eventTimers[path]; exists {
		timer.Stop()
		delete(fw.eventTimers, path)
	}

	// a removal is never downgraded by a trailing write
	if prev, ok := fw.pendingEvents[path]; ok && prev.Op == ChangeRemove && event.Op == ChangeWrite {
		event.Op = ChangeRemove
	}
	fw.pendingEvents[path] = event

	fw.eventTimers[path] = time.AfterFunc(fw.debounceTimeout, func() {
		fw.flushEvent(path)
	})
}

// flushEvent sends the pending event for a path and cleans up.
func (fw *FileWatcher) flushEvent(path string) {
	fw.debounceMu.Lock()
	event, exists := fw.pendingEvents[path]
	if !exists {
		fw.debounceMu.Unlock()
		return
	}
	delete(fw.pendingEvents, path)
	delete(fw.eventTimers, path)
	fw.debounceMu.Unlock()

	if fw.isPathTemporarilyIgnored(path) {
		return
	}

	select {
	case fw.events <- event:
		slog.Debug("file watcher", "event", event.Op, "path", path)
	default:
		slog.Warn("file watcher dropped", "reason", "channel full", "path", path)
	}
}

// cleanupExpiredEntries periodically removes expired entries from the ignore list.
func (fw *FileWatcher) cleanupExpiredEntries(ctx context.Context) {
	defer fw.wg.Done()

	ticker := time.NewTicker(fw.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case <-ticker.C:
			now := time.Now()
			fw.ignoreMu.Lock()
			for path, expiry := range fw.ignore {
				if now.After(expiry) {
					delete(fw.ignore, path)
				}
			}
			fw.ignoreMu.Unlock()
		}
	}
}

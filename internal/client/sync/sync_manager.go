package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openmined/studiosync/internal/client/index"
	"github.com/openmined/studiosync/internal/client/localfs"
)

// ManagerConfig is what the daemon needs to start syncing.
type ManagerConfig struct {
	Projects  []index.Project
	Scheduler SchedulerConfig
}

// SyncManager wires the watcher, engine and scheduler together.
type SyncManager struct {
	fs        *localfs.Adapter
	index     *index.Index
	engine    *Engine
	watcher   *FileWatcher
	scheduler *Scheduler
	projects  []index.Project
	mu        sync.Mutex
}

func NewManager(fs *localfs.Adapter, remotes Remotes, cfg ManagerConfig) *SyncManager {
	idx := index.New(fs.Fs())
	watcher := NewFileWatcher()
	engine := NewEngine(idx, remotes, fs)
	scheduler := NewScheduler(engine, cfg.Scheduler)

	return &SyncManager{
		fs:        fs,
		index:     idx,
		engine:    engine,
		watcher:   watcher,
		scheduler: scheduler,
		projects:  cfg.Projects,
	}
}

func (m *SyncManager) Engine() *Engine {
	return m.engine
}

func (m *SyncManager) Scheduler() *Scheduler {
	return m.scheduler
}

func (m *SyncManager) Start(ctx context.Context) error {
	m.mu.Lock()
	projects := m.projects
	m.mu.Unlock()

	slog.Info("sync manager start", "projects", len(projects))

	if err := m.index.Rescan(projects); err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	slog.Info("sync index loaded", "items", m.index.Len())

	m.watcher.FilterPaths(IsIgnoredPath)
	m.engine.SetWriteHook(m.watcher.IgnoreOnce)
	for _, p := range projects {
		m.watchProject(p)
	}
	m.scheduler.OnProjectOpened(m.watchProject)
	m.scheduler.SetEvents(m.watcher.Events())

	if err := m.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	m.scheduler.Start(ctx)
	return nil
}

// Stop expects the context given to Start to be cancelled already.
func (m *SyncManager) Stop() error {
	slog.Info("sync manager stop")
	m.watcher.Stop()
	m.scheduler.Stop()
	m.engine.Status().Close()
	return nil
}

// OpenProject adds a project at runtime.
func (m *SyncManager) OpenProject(p index.Project) {
	m.scheduler.OpenProject(p)
}

// Reconfigure applies new scheduler settings and opens projects that were
// not configured before. Removed projects stay indexed until restart.
func (m *SyncManager) Reconfigure(cfg ManagerConfig) {
	m.mu.Lock()
	known := make(map[string]bool, len(m.projects))
	for _, p := range m.projects {
		known[p.Name] = true
	}
	var added []index.Project
	for _, p := range cfg.Projects {
		if !known[p.Name] {
			added = append(added, p)
			m.projects = append(m.projects, p)
		}
	}
	m.mu.Unlock()

	m.scheduler.Reconfigure(cfg.Scheduler)
	for _, p := range added {
		slog.Info("sync manager", "project", p.Name, "action", "open")
		m.scheduler.OpenProject(p)
	}
}

// RunOnce loads the metadata and runs a single pass without the watcher or
// the scheduler. It must not be mixed with Start.
func (m *SyncManager) RunOnce(ctx context.Context) (*Summary, error) {
	m.mu.Lock()
	projects := m.projects
	m.mu.Unlock()

	if err := m.index.Rescan(projects); err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return m.engine.RunPass(ctx)
}

func (m *SyncManager) watchProject(p index.Project) {
	for _, root := range p.ModuleRoots {
		if !m.fs.IsDir(root) {
			slog.Warn("sync watch skipped", "project", p.Name, "root", root, "reason", "not a directory")
			continue
		}
		if err := m.watcher.Watch(root); err != nil {
			slog.Error("sync watch", "project", p.Name, "root", root, "error", err)
		}
	}
}

func (m *SyncManager) SchedulerStatus() SchedulerStatus {
	return m.scheduler.Status()
}

func (m *SyncManager) LastSummary() *Summary {
	return m.engine.LastSummary()
}

func (m *SyncManager) PathStatus() map[string]PathStatus {
	return m.engine.Status().GetAllStatus()
}

// Items is a snapshot of every tracked item.
func (m *SyncManager) Items() []index.ItemView {
	return m.index.Snapshot()
}

func (m *SyncManager) Conflicts() []*Conflict {
	return m.engine.Status().Conflicts()
}

func (m *SyncManager) ResolveConflict(ctx context.Context, path string, side Side) error {
	return m.scheduler.ResolveConflict(ctx, path, side)
}

func (m *SyncManager) RequestFullPass() {
	m.scheduler.RequestFullPass()
}

func (m *SyncManager) SubscribeStatus() <-chan *SyncStatusEvent {
	return m.engine.Status().Subscribe()
}

func (m *SyncManager) UnsubscribeStatus(ch <-chan *SyncStatusEvent) {
	m.engine.Status().Unsubscribe(ch)
}

package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/openmined/studiosync/internal/client/index"
	"github.com/openmined/studiosync/internal/queue"
)

const (
	DefaultInitialDelay    = 10 * time.Second
	DefaultPollingInterval = 60 * time.Second

	priorityUrgent   = 0
	priorityFullPass = 1
)

// SchedulerState is either idle or scheduled.
type SchedulerState string

const (
	StateIdle      SchedulerState = "idle"
	StateScheduled SchedulerState = "scheduled"
)

type requestKind string

const (
	reqFullPass      requestKind = "fullPass"
	reqOpenProject   requestKind = "openProject"
	reqRecipeChanged requestKind = "recipeChanged"
	reqPathDeleted   requestKind = "pathDeleted"
	reqResolve       requestKind = "resolve"
)

type request struct {
	kind    requestKind
	path    string
	project index.Project
	side    Side
	reply   chan error
}

// SchedulerConfig controls background passes.
type SchedulerConfig struct {
	Enabled         bool
	InitialDelay    time.Duration
	PollingInterval time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = DefaultPollingInterval
	}
	return c
}

// SchedulerStatus is a point in time view of the scheduler.
type SchedulerStatus struct {
	State           SchedulerState `json:"state"`
	Enabled         bool           `json:"enabled"`
	PollingInterval Duration       `json:"pollingInterval"`
	NextRun         *time.Time     `json:"nextRun,omitempty"`
	Pending         int            `json:"pending"`
}

// Scheduler owns the single worker that runs all sync work. Requests are
// posted to a mailbox; watcher events arrive on a bounded channel and are
// classified on the worker.
type Scheduler struct {
	engine  *Engine
	mailbox *queue.PriorityQueue[*request]
	wake    chan struct{}
	events  <-chan ChangeEvent
	onOpen  func(index.Project)

	cfg     SchedulerConfig
	timer   *time.Timer
	gen     uint64
	nextRun time.Time
	mu      sync.Mutex
	postMu  sync.Mutex

	wg sync.WaitGroup
}

func NewScheduler(engine *Engine, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		engine:  engine,
		mailbox: queue.NewPriorityQueue[*request](),
		wake:    make(chan struct{}, 1),
		cfg:     cfg.withDefaults(),
		onOpen:  func(index.Project) {},
	}
}

// SetEvents connects the watcher output. It must be called before Start.
func (s *Scheduler) SetEvents(events <-chan ChangeEvent) {
	s.events = events
}

// OnProjectOpened registers fn to run on the worker after a project is indexed.
func (s *Scheduler) OnProjectOpened(fn func(index.Project)) {
	s.onOpen = fn
}

func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("scheduler start", "enabled", s.cfg.Enabled, "initialDelay", s.cfg.InitialDelay, "interval", s.cfg.PollingInterval)

	s.mu.Lock()
	if s.cfg.Enabled {
		s.armLocked(s.cfg.InitialDelay)
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the timer and waits for the worker to exit. The context given
// to Start must be cancelled first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

// Reconfigure cancels the pending timer and, when enabled, starts over from
// the initial delay.
func (s *Scheduler) Reconfigure(cfg SchedulerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.cfg = cfg.withDefaults()
	if s.cfg.Enabled {
		s.armLocked(s.cfg.InitialDelay)
	}
	slog.Info("scheduler reconfigured", "enabled", s.cfg.Enabled, "initialDelay", s.cfg.InitialDelay, "interval", s.cfg.PollingInterval)
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{
		State:           StateIdle,
		Enabled:         s.cfg.Enabled,
		PollingInterval: Duration(s.cfg.PollingInterval),
		Pending:         s.mailbox.Len(),
	}
	if s.timer != nil {
		st.State = StateScheduled
		next := s.nextRun
		st.NextRun = &next
	}
	return st
}

// armLocked starts the one timer. It re-arms itself at the polling interval
// until a newer generation replaces it.
func (s *Scheduler) armLocked(delay time.Duration) {
	s.gen++
	gen := s.gen

	var fire func()
	fire = func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.nextRun = time.Now().Add(s.cfg.PollingInterval)
		s.timer = time.AfterFunc(s.cfg.PollingInterval, fire)
		s.mu.Unlock()

		s.RequestFullPass()
	}

	s.nextRun = time.Now().Add(delay)
	s.timer = time.AfterFunc(delay, fire)
}

func (s *Scheduler) cancelLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextRun = time.Time{}
}

// RequestFullPass queues a full pass, replacing one that is still pending.
func (s *Scheduler) RequestFullPass() {
	s.postMu.Lock()
	defer s.postMu.Unlock()

	if n := s.mailbox.RemoveFunc(func(r *request) bool { return r.kind == reqFullPass }); n > 0 {
		slog.Debug("scheduler", "superseded", n)
	}
	s.mailbox.Enqueue(&request{kind: reqFullPass}, priorityFullPass)
	s.notify()
}

// OpenProject indexes project on the worker and, when background sync is
// enabled, runs a pass right after.
func (s *Scheduler) OpenProject(project index.Project) {
	s.post(&request{kind: reqOpenProject, project: project})
}

// RecipeChanged asks for a narrow reconcile of one recipe file.
func (s *Scheduler) RecipeChanged(path string) {
	s.post(&request{kind: reqRecipeChanged, path: path})
}

// PathDeleted cascades an untrack for everything tracked under path.
func (s *Scheduler) PathDeleted(path string) {
	s.post(&request{kind: reqPathDeleted, path: path})
}

// ResolveConflict runs the resolution on the worker and waits for it.
func (s *Scheduler) ResolveConflict(ctx context.Context, path string, side Side) error {
	reply := make(chan error, 1)
	s.post(&request{kind: reqResolve, path: path, side: side, reply: reply})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-reply:
		return err
	}
}

func (s *Scheduler) post(r *request) {
	s.mailbox.Enqueue(r, priorityUrgent)
	s.notify()
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.abandon(ctx.Err())
			return
		case ev, ok := <-s.events:
			if !ok {
				s.events = nil
				continue
			}
			s.classify(ev)
		case <-s.wake:
		}
		s.drain(ctx)
	}
}

func (s *Scheduler) drain(ctx context.Context) {
	for ctx.Err() == nil {
		r, ok := s.mailbox.Dequeue()
		if !ok {
			return
		}
		s.handle(ctx, r)
	}
}

// abandon answers waiters still queued at shutdown.
func (s *Scheduler) abandon(err error) {
	for _, r := range s.mailbox.DequeueAll() {
		if r.reply != nil {
			r.reply <- err
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, r *request) {
	switch r.kind {
	case reqFullPass:
		s.runPass(ctx)

	case reqOpenProject:
		if err := s.engine.Index().AddProject(r.project); err != nil {
			slog.Error("scheduler open project", "project", r.project.Name, "error", err)
		}
		s.onOpen(r.project)
		s.mu.Lock()
		enabled := s.cfg.Enabled
		s.mu.Unlock()
		if enabled {
			s.runPass(ctx)
		}

	case reqRecipeChanged:
		op, err := s.engine.TryReconcileRecipe(ctx, r.path)
		if err != nil {
			slog.Warn("scheduler narrow reconcile", "path", r.path, "op", op, "error", err)
		}
		if op != OpNoop && op != OpPush && op != OpAdopt {
			slog.Debug("scheduler", "fallback", "full pass", "path", r.path, "op", op)
			s.RequestFullPass()
		}

	case reqPathDeleted:
		n, err := s.engine.UntrackUnder(r.path)
		if err != nil {
			slog.Error("scheduler untrack", "path", r.path, "error", err)
		} else if n > 0 {
			slog.Info("scheduler untrack", "path", r.path, "items", n)
		}

	case reqResolve:
		r.reply <- s.engine.ResolveConflictAt(ctx, r.path, r.side)
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	_, err := s.engine.RunPass(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrSyncAlreadyRunning) {
		slog.Error("sync pass", "error", err)
	}
}

// classify turns a watcher event into a request.
func (s *Scheduler) classify(ev ChangeEvent) {
	if IsIgnoredPath(ev.Path) {
		return
	}
	idx := s.engine.Index()
	fs := s.engine.fs

	op := ev.Op
	if op == ChangeRename && !fs.Exists(ev.Path) {
		op = ChangeRemove
	}

	switch op {
	case ChangeRemove:
		if recipes, filesystems := idx.ItemsUnder(ev.Path); len(recipes) > 0 || len(filesystems) > 0 {
			s.PathDeleted(ev.Path)
			return
		}
		if idx.FilesystemContaining(ev.Path) != nil {
			s.RequestFullPass()
		}

	default:
		if idx.RecipeByPath(ev.Path) != nil {
			s.RecipeChanged(ev.Path)
			return
		}
		if idx.FilesystemContaining(ev.Path) != nil {
			s.RequestFullPass()
		}
	}
}

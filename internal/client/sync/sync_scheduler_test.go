package sync

import (
	"context"
	"testing"
	"time"

	"github.com/openmined/studiosync/internal/client/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingKinds(s *Scheduler) []requestKind {
	var kinds []requestKind
	for _, r := range s.mailbox.DequeueAll() {
		kinds = append(kinds, r.kind)
	}
	return kinds
}

func TestScheduler_FullPassIsCoalesced(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.engine, SchedulerConfig{})

	s.RequestFullPass()
	s.RecipeChanged(env.path("recipes/a.py"))
	s.RequestFullPass()
	s.RequestFullPass()

	assert.Equal(t, 2, s.mailbox.Len())
	// targeted work goes ahead of the full pass
	assert.Equal(t, []requestKind{reqRecipeChanged, reqFullPass}, pendingKinds(s))
}

func TestScheduler_ClassifyEvents(t *testing.T) {
	env := newTestEnv(t)
	recipe := env.trackRecipe("compute_a", 5, "v5")
	root := env.trackPlugin(map[string]string{"lib.py": "v1"})

	tests := []struct {
		name string
		ev   ChangeEvent
		want []requestKind
	}{
		{name: "recipe saved", ev: ChangeEvent{Path: recipe, Op: ChangeWrite}, want: []requestKind{reqRecipeChanged}},
		{name: "recipe removed", ev: ChangeEvent{Path: recipe, Op: ChangeRemove}, want: []requestKind{reqPathDeleted}},
		{name: "file added to plugin", ev: ChangeEvent{Path: root + "/new.py", Op: ChangeCreate}, want: []requestKind{reqFullPass}},
		{name: "file removed from plugin", ev: ChangeEvent{Path: root + "/lib.py", Op: ChangeRemove}, want: []requestKind{reqFullPass}},
		{name: "plugin root removed", ev: ChangeEvent{Path: root, Op: ChangeRemove}, want: []requestKind{reqPathDeleted}},
		{name: "module root removed", ev: ChangeEvent{Path: env.root, Op: ChangeRemove}, want: []requestKind{reqPathDeleted}},
		{name: "renamed away", ev: ChangeEvent{Path: env.path("plugins/other"), Op: ChangeRename}, want: nil},
		{name: "metadata write", ev: ChangeEvent{Path: env.path(".studiosync/metadata.json"), Op: ChangeWrite}, want: nil},
		{name: "untracked file", ev: ChangeEvent{Path: env.path("notes.txt"), Op: ChangeWrite}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(env.engine, SchedulerConfig{})
			s.classify(tt.ev)
			assert.Equal(t, tt.want, pendingKinds(s))
		})
	}
}

func TestScheduler_TimerLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.engine, SchedulerConfig{Enabled: false})

	assert.Equal(t, StateIdle, s.Status().State)

	s.Reconfigure(SchedulerConfig{Enabled: true, InitialDelay: time.Hour, PollingInterval: time.Minute})
	st := s.Status()
	assert.Equal(t, StateScheduled, st.State)
	require.NotNil(t, st.NextRun)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *st.NextRun, time.Minute)

	s.Reconfigure(SchedulerConfig{Enabled: false})
	assert.Equal(t, StateIdle, s.Status().State)
	assert.Equal(t, Duration(DefaultPollingInterval), s.Status().PollingInterval)
}

func TestScheduler_TimerFiresFullPasses(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.engine, SchedulerConfig{Enabled: true, InitialDelay: 10 * time.Millisecond, PollingInterval: 20 * time.Millisecond})

	s.mu.Lock()
	s.armLocked(s.cfg.InitialDelay)
	s.mu.Unlock()

	assert.Eventually(t, func() bool { return s.mailbox.Len() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, s.mailbox.Len(), "recurring passes supersede each other")

	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
}

func TestScheduler_WorkerRunsRequests(t *testing.T) {
	env := newTestEnv(t)
	file := env.trackRecipe("compute_a", 5, "base")
	env.write("recipes/compute_a.py", "mine")
	env.studio.setRecipe(testProject, "compute_a", 6, "theirs")

	events := make(chan ChangeEvent, 1)
	s := NewScheduler(env.engine, SchedulerConfig{Enabled: false})
	s.SetEvents(events)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer func() {
		cancel()
		s.Stop()
	}()

	// the narrow reconcile declines and falls back to a full pass, which finds the conflict
	events <- ChangeEvent{Path: file, Op: ChangeWrite}
	assert.Eventually(t, func() bool { return len(env.engine.Status().Conflicts()) == 1 }, 2*time.Second, 10*time.Millisecond)

	err := s.ResolveConflict(ctx, file, SideRemote)
	require.NoError(t, err)
	assert.Equal(t, "theirs", env.read("recipes/compute_a.py"))
	assert.Empty(t, env.engine.Status().Conflicts())

	err = s.ResolveConflict(ctx, file, SideRemote)
	assert.ErrorIs(t, err, ErrConflictNotFound)
}

func TestScheduler_OpenProjectIndexesAndSyncs(t *testing.T) {
	env := newTestEnv(t)
	env.trackRecipe("compute_a", 5, "v5")
	env.studio.setRecipe(testProject, "compute_a", 6, "v6")

	// forget everything, then reopen the project
	require.NoError(t, env.engine.Index().Rescan(nil))
	require.Zero(t, env.engine.Index().Len())

	opened := make(chan index.Project, 1)
	s := NewScheduler(env.engine, SchedulerConfig{Enabled: true, InitialDelay: time.Hour})
	s.OnProjectOpened(func(p index.Project) { opened <- p })

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer func() {
		cancel()
		s.Stop()
	}()

	s.OpenProject(index.Project{Name: testProject, ModuleRoots: []string{env.root}})

	select {
	case p := <-opened:
		assert.Equal(t, testProject, p.Name)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "project was not opened")
	}
	assert.Eventually(t, func() bool { return env.engine.LastSummary() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "v6", env.read("recipes/compute_a.py"))
}

func TestScheduler_PathDeletedUntracks(t *testing.T) {
	env := newTestEnv(t)
	env.trackRecipe("compute_a", 5, "v5")

	s := NewScheduler(env.engine, SchedulerConfig{})
	s.handle(context.Background(), &request{kind: reqPathDeleted, path: env.path("recipes")})

	assert.Zero(t, env.engine.Index().Len())
	assert.Empty(t, env.reload().Recipes())
}

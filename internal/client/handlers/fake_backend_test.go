package handlers

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/studiosync/internal/client/index"
	"github.com/openmined/studiosync/internal/client/sync"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type resolveCall struct {
	path string
	side sync.Side
}

type fakeBackend struct {
	mu         gosync.Mutex
	scheduler  sync.SchedulerStatus
	summary    *sync.Summary
	paths      map[string]sync.PathStatus
	items      []index.ItemView
	conflicts  []*sync.Conflict
	passes     int
	resolved   []resolveCall
	resolveErr error
	events     chan *sync.SyncStatusEvent
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		scheduler: sync.SchedulerStatus{State: sync.StateIdle},
		paths:     map[string]sync.PathStatus{},
		events:    make(chan *sync.SyncStatusEvent, 4),
	}
}

func (f *fakeBackend) SchedulerStatus() sync.SchedulerStatus  { return f.scheduler }
func (f *fakeBackend) LastSummary() *sync.Summary             { return f.summary }
func (f *fakeBackend) PathStatus() map[string]sync.PathStatus { return f.paths }
func (f *fakeBackend) Items() []index.ItemView                { return f.items }
func (f *fakeBackend) Conflicts() []*sync.Conflict            { return f.conflicts }

func (f *fakeBackend) ResolveConflict(ctx context.Context, path string, side sync.Side) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return f.resolveErr
	}
	for _, c := range f.conflicts {
		if c.Path == path {
			f.resolved = append(f.resolved, resolveCall{path: path, side: side})
			return nil
		}
	}
	return fmt.Errorf("%w: %s", sync.ErrConflictNotFound, path)
}

func (f *fakeBackend) RequestFullPass() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes++
}

func (f *fakeBackend) SubscribeStatus() <-chan *sync.SyncStatusEvent {
	return f.events
}

func (f *fakeBackend) UnsubscribeStatus(ch <-chan *sync.SyncStatusEvent) {}

func sampleConflict() *sync.Conflict {
	return &sync.Conflict{
		Kind:          index.KindRecipe,
		Instance:      "design",
		Path:          "/work/churn/recipes/compute_churn.py",
		ProjectKey:    "CHURN",
		RecipeName:    "compute_churn",
		BaseVersion:   5,
		RemoteVersion: 7,
		Base:          []byte("x = 1\n"),
		Local:         []byte("x = 2\n"),
		Remote:        []byte("x = 3\n"),
		DetectedAt:    time.Now(),
	}
}

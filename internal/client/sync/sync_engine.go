package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openmined/studiosync/internal/client/index"
	"github.com/openmined/studiosync/internal/client/localfs"
	"github.com/openmined/studiosync/internal/client/metadata"
	"github.com/openmined/studiosync/internal/studiosdk"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrNotTracked         = errors.New("item is not tracked")
)

// Remotes resolves the instance recorded on a tracked item to its API client.
type Remotes interface {
	Get(instance string) (studiosdk.Service, error)
}

// Engine reconciles tracked items against the studio. Passes are serialized;
// the scheduler worker is the only caller in the daemon.
type Engine struct {
	index   *index.Index
	remotes Remotes
	fs      *localfs.Adapter
	ignore  *SyncIgnoreList
	status  *SyncStatus
	onWrite func(path string)
	last    atomic.Pointer[Summary]
	muSync  sync.Mutex
}

func NewEngine(idx *index.Index, remotes Remotes, fs *localfs.Adapter) *Engine {
	return &Engine{
		index:   idx,
		remotes: remotes,
		fs:      fs,
		ignore:  NewSyncIgnoreList(fs),
		status:  NewSyncStatus(),
		onWrite: func(string) {},
	}
}

// SetWriteHook registers fn to be called before the engine touches a local
// path. The watcher uses it to drop the echo of the engine's own writes.
func (e *Engine) SetWriteHook(fn func(path string)) {
	if fn == nil {
		fn = func(string) {}
	}
	e.onWrite = fn
}

func (e *Engine) Index() *index.Index {
	return e.index
}

func (e *Engine) Status() *SyncStatus {
	return e.status
}

func (e *Engine) IgnoreList() *SyncIgnoreList {
	return e.ignore
}

// LastSummary returns the summary of the most recent full pass, or nil.
func (e *Engine) LastSummary() *Summary {
	return e.last.Load()
}

// RunPass reconciles every tracked recipe, plugin and library once. Per-item
// failures end up in the summary; only metadata persistence errors and
// cancellation are returned.
func (e *Engine) RunPass(ctx context.Context) (*Summary, error) {
	if !e.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer e.muSync.Unlock()

	tStart := time.Now()
	p := newPass(ctx, e, false)
	e.ignore.Reset()

	for _, item := range e.index.Recipes() {
		if ctx.Err() != nil {
			break
		}
		e.reconcileRecipe(p, item)
	}
	tRecipes := time.Since(tStart)

	for _, item := range e.index.Filesystems() {
		if ctx.Err() != nil {
			break
		}
		e.reconcileFilesystem(p, item)
	}

	flushErr := p.flush()
	summary := p.summary
	summary.Duration = Duration(time.Since(tStart))

	if ctx.Err() != nil {
		return summary, errors.Join(ctx.Err(), flushErr)
	}

	e.status.ReplaceConflicts(summary.Conflicts)
	e.last.Store(summary)

	if summary.HasChanges() {
		slog.Info("full sync",
			"locallyUpdated", len(summary.LocallyUpdated),
			"locallyDeleted", len(summary.LocallyDeleted),
			"pushed", len(summary.PushedToRemote),
			"deletedFromRemote", len(summary.DeletedFromRemote),
			"conflicts", len(summary.Conflicts),
			"untracked", len(summary.Untracked),
			"errors", len(summary.Errors),
			"stores", p.flushed,
			"tsRecipes", tRecipes,
			"tsTotal", time.Since(tStart),
		)
	} else {
		slog.Debug("full sync", "items", e.index.Len(), "tsTotal", time.Since(tStart))
	}

	if flushErr != nil {
		return summary, fmt.Errorf("metadata flush: %w", flushErr)
	}
	return summary, nil
}

// TryReconcileRecipe handles a single saved recipe. It only ever pushes or
// does nothing; any other outcome is reported as OpSkipped with nothing
// changed, and a full pass should follow.
func (e *Engine) TryReconcileRecipe(ctx context.Context, path string) (OpType, error) {
	if !e.muSync.TryLock() {
		return OpSkipped, ErrSyncAlreadyRunning
	}
	defer e.muSync.Unlock()

	item := e.index.RecipeByPath(path)
	if item == nil {
		return OpSkipped, nil
	}

	p := newPass(ctx, e, true)
	op := e.reconcileRecipe(p, item)
	if err := p.flush(); err != nil {
		return op, fmt.Errorf("metadata flush: %w", err)
	}
	if op == OpError && len(p.summary.Errors) > 0 {
		return op, errors.New(p.summary.Errors[0].Error)
	}
	return op, nil
}

// UntrackUnder stops tracking every item located at or below dir and
// persists the removals immediately. Nothing is deleted on either side.
func (e *Engine) UntrackUnder(dir string) (int, error) {
	e.muSync.Lock()
	defer e.muSync.Unlock()

	recipes, filesystems := e.index.ItemsUnder(dir)
	if len(recipes) == 0 && len(filesystems) == 0 {
		return 0, nil
	}

	dirty := make(map[string]*metadata.Store)
	for _, item := range recipes {
		item.Store.DeleteRecipe(item.Entry.Path)
		e.index.RemoveRecipe(item.File)
		e.status.ClearConflict(item.File)
		dirty[item.Store.Path()] = item.Store
		slog.Info("sync", "type", index.KindRecipe, "op", OpUntrack, "path", item.File, "reason", "directory deleted")
	}
	for _, item := range filesystems {
		item.Delete()
		e.index.RemoveFilesystem(item.Kind, item.Root)
		for _, c := range e.status.Conflicts() {
			if c.TreeID == item.Entry.ID && c.Kind == string(item.Kind) {
				e.status.ClearConflict(c.Path)
			}
		}
		dirty[item.Store.Path()] = item.Store
		slog.Info("sync", "type", item.Kind, "op", OpUntrack, "path", item.Root, "reason", "directory deleted")
	}

	var errs []error
	for _, store := range dirty {
		if err := store.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return len(recipes) + len(filesystems), errors.Join(errs...)
}

// baselineData recovers the last synchronized bytes of an entry.
func (e *Engine) baselineData(store *metadata.Store, data []byte, blobID string) []byte {
	if data != nil {
		return data
	}
	if blobID == "" {
		return nil
	}
	blob, found, err := store.ReadDataBlob(blobID)
	if err != nil {
		slog.Warn("sync", "op", "ReadBaseline", "blob", blobID, "error", err)
		return nil
	}
	if !found {
		slog.Warn("sync", "op", "ReadBaseline", "blob", blobID, "error", "blob missing")
		return nil
	}
	return blob
}

func (e *Engine) writeLocal(path string, data []byte) error {
	e.onWrite(path)
	return e.fs.Write(path, data)
}

func (e *Engine) deleteLocal(path string) error {
	e.onWrite(path)
	return e.fs.Delete(path)
}

package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/studiosync/internal/client/index"
	"github.com/openmined/studiosync/internal/studiosdk"
	"github.com/openmined/studiosync/internal/utils"
)

// reconcileRecipe runs the three-way comparison for one recipe file. The
// indexed entry is never mutated; a changed copy replaces it.
func (e *Engine) reconcileRecipe(p *pass, item *index.RecipeItem) OpType {
	entry := item.Entry
	path := item.File

	svc, ok := p.service(entry.Instance, path)
	if !ok {
		return OpError
	}

	if !e.fs.IsFile(path) {
		if p.narrow {
			return OpSkipped
		}
		e.untrackRecipe(p, item)
		p.untracked("recipe %s.%s: local file %s is gone", entry.ProjectKey, entry.RecipeName, path)
		return OpUntrack
	}

	list, err := p.recipeList(svc, entry.Instance, entry.ProjectKey)
	if err != nil {
		return e.recipeFailed(p, item, OpError, fmt.Errorf("list recipes: %w", err))
	}
	remote, found := findRecipe(list, entry.RecipeName)
	if !found {
		if p.narrow {
			return OpSkipped
		}
		e.untrackRecipe(p, item)
		p.untracked("recipe %s.%s: deleted on %s", entry.ProjectKey, entry.RecipeName, entry.Instance)
		return OpUntrack
	}

	local, err := e.fs.Read(path)
	if err != nil {
		return e.recipeFailed(p, item, OpError, fmt.Errorf("read local: %w", err))
	}
	localHash := utils.ContentHash(local)

	remoteChanged := remote.Version() != entry.VersionNumber
	switch decide(entry.ContentHash, localHash, remoteChanged, 0) {
	case OpNoop:
		slog.Debug("sync", "type", index.KindRecipe, "op", OpNoop, "path", path)
		return OpNoop
	case OpPush:
		return e.pushRecipe(p, item, svc, local, localHash)
	}

	if p.narrow {
		return OpSkipped
	}
	rec, err := svc.Recipes().GetRecipe(p.ctx, entry.ProjectKey, entry.RecipeName)
	if errors.Is(err, studiosdk.ErrNotFound) {
		e.untrackRecipe(p, item)
		p.untracked("recipe %s.%s: deleted on %s", entry.ProjectKey, entry.RecipeName, entry.Instance)
		return OpUntrack
	} else if err != nil {
		return e.recipeFailed(p, item, OpPull, fmt.Errorf("get recipe: %w", err))
	}
	return e.applyRemoteRecipe(p, item, rec, local, localHash)
}

// pushRecipe uploads local edits made against an unchanged remote. The
// remote is read first: an identical payload is adopted without a write,
// and a version that moved in the meantime goes through the remote branch.
func (e *Engine) pushRecipe(p *pass, item *index.RecipeItem, svc studiosdk.Service, local []byte, localHash uint32) OpType {
	entry := item.Entry
	path := item.File
	e.status.SetSyncing(path)

	rec, err := svc.Recipes().GetRecipe(p.ctx, entry.ProjectKey, entry.RecipeName)
	if errors.Is(err, studiosdk.ErrNotFound) {
		if p.narrow {
			return OpSkipped
		}
		e.untrackRecipe(p, item)
		p.untracked("recipe %s.%s: deleted on %s", entry.ProjectKey, entry.RecipeName, entry.Instance)
		return OpUntrack
	} else if err != nil {
		return e.recipeFailed(p, item, OpPush, fmt.Errorf("get recipe: %w", err))
	}

	if utils.ContentHash(rec.Payload) == localHash {
		e.adoptRecipe(p, item, rec.Version, localHash, local)
		slog.Info("sync", "type", index.KindRecipe, "op", OpAdopt, "path", path, "version", rec.Version)
		e.status.SetCompleted(path)
		return OpAdopt
	}

	if rec.Version != entry.VersionNumber {
		if p.narrow {
			return OpSkipped
		}
		return e.applyRemoteRecipe(p, item, rec, local, localHash)
	}

	version, err := svc.Recipes().SaveRecipe(p.ctx, entry.ProjectKey, entry.RecipeName, local)
	if err != nil {
		return e.recipeFailed(p, item, OpPush, fmt.Errorf("save recipe: %w", err))
	}
	e.adoptRecipe(p, item, version, localHash, local)
	p.summary.PushedToRemote = append(p.summary.PushedToRemote, path)
	e.status.SetCompleted(path)
	slog.Info("sync", "type", index.KindRecipe, "op", OpPush, "path", path, "version", version, "size", humanize.Bytes(uint64(len(local))))
	return OpPush
}

// applyRemoteRecipe handles a remote that moved past the baseline.
func (e *Engine) applyRemoteRecipe(p *pass, item *index.RecipeItem, rec *studiosdk.Recipe, local []byte, localHash uint32) OpType {
	entry := item.Entry
	path := item.File
	remoteHash := utils.ContentHash(rec.Payload)

	switch op := decide(entry.ContentHash, localHash, true, remoteHash); op {
	case OpAdopt:
		e.adoptRecipe(p, item, rec.Version, localHash, local)
		e.status.SetCompleted(path)
		slog.Info("sync", "type", index.KindRecipe, "op", OpAdopt, "path", path, "version", rec.Version)
		return OpAdopt

	case OpPull:
		if err := e.writeLocal(path, rec.Payload); err != nil {
			return e.recipeFailed(p, item, OpPull, fmt.Errorf("write local: %w", err))
		}
		e.adoptRecipe(p, item, rec.Version, remoteHash, rec.Payload)
		p.summary.LocallyUpdated = append(p.summary.LocallyUpdated, path)
		e.status.SetCompleted(path)
		slog.Info("sync", "type", index.KindRecipe, "op", OpPull, "path", path, "version", rec.Version, "size", humanize.Bytes(uint64(len(rec.Payload))))
		return OpPull

	default:
		p.conflict(&Conflict{
			Kind:          index.KindRecipe,
			Instance:      entry.Instance,
			Path:          path,
			ProjectKey:    entry.ProjectKey,
			RecipeName:    entry.RecipeName,
			BaseVersion:   entry.VersionNumber,
			RemoteVersion: rec.Version,
			Local:         local,
			Remote:        rec.Payload,
			Base:          e.baselineData(item.Store, entry.Data, entry.DataBlobID),
			DetectedAt:    time.Now(),
		})
		return OpConflict
	}
}

func (e *Engine) adoptRecipe(p *pass, item *index.RecipeItem, version int64, hash uint32, data []byte) {
	entry := item.Entry.Clone()
	entry.SetBaseline(version, hash, data)
	item.Store.PutRecipe(entry)
	e.index.IndexRecipe(&index.RecipeItem{Store: item.Store, Entry: entry, File: item.File})
	p.markDirty(item.Store)
}

func (e *Engine) untrackRecipe(p *pass, item *index.RecipeItem) {
	item.Store.DeleteRecipe(item.Entry.Path)
	e.index.RemoveRecipe(item.File)
	e.status.ClearConflict(item.File)
	p.markDirty(item.Store)
}

func (e *Engine) recipeFailed(p *pass, item *index.RecipeItem, op OpType, err error) OpType {
	slog.Error("sync", "type", index.KindRecipe, "op", op, "path", item.File, "error", err)
	p.fail(item.File, op, err)
	return OpError
}

func findRecipe(list []studiosdk.RecipeSummary, name string) (studiosdk.RecipeSummary, bool) {
	for _, r := range list {
		if r.Name == name {
			return r, true
		}
	}
	return studiosdk.RecipeSummary{}, false
}

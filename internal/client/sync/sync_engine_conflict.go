package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/studiosync/internal/client/index"
	"github.com/openmined/studiosync/internal/client/metadata"
	"github.com/openmined/studiosync/internal/studiosdk"
	"github.com/openmined/studiosync/internal/utils"
)

var ErrConflictNotFound = errors.New("no open conflict at path")

// ResolveConflictAt resolves the open conflict recorded for path.
func (e *Engine) ResolveConflictAt(ctx context.Context, path string, side Side) error {
	c, ok := e.status.Conflict(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConflictNotFound, path)
	}
	return e.ResolveConflict(ctx, c, side)
}

// ResolveConflict settles c in favor of side. The losing side is overwritten
// with the current content of the winning one, which becomes the baseline.
func (e *Engine) ResolveConflict(ctx context.Context, c *Conflict, side Side) error {
	if side != SideLocal && side != SideRemote {
		return fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}

	e.muSync.Lock()
	defer e.muSync.Unlock()

	svc, err := e.remotes.Get(c.Instance)
	if err != nil {
		return err
	}

	var store *metadata.Store
	if c.Kind == index.KindRecipe {
		store, err = e.resolveRecipe(ctx, svc, c, side)
	} else {
		store, err = e.resolveFile(ctx, svc, c, side)
	}
	if err != nil {
		slog.Error("sync", "type", c.Kind, "op", OpConflict, "path", c.Path, "side", side, "error", err)
		return err
	}

	if err := store.Flush(); err != nil {
		return fmt.Errorf("metadata flush: %w", err)
	}
	e.status.ClearConflict(c.Path)
	slog.Info("sync", "type", c.Kind, "op", "Resolve", "path", c.Path, "side", side)
	return nil
}

func (e *Engine) resolveRecipe(ctx context.Context, svc studiosdk.Service, c *Conflict, side Side) (*metadata.Store, error) {
	item := e.index.RecipeByPath(c.Path)
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, c.Path)
	}
	api := svc.Recipes()

	var (
		version int64
		data    []byte
	)
	switch side {
	case SideLocal:
		local, err := e.fs.Read(c.Path)
		if err != nil {
			return nil, fmt.Errorf("read local: %w", err)
		}
		version, err = api.SaveRecipe(ctx, item.Entry.ProjectKey, item.Entry.RecipeName, local)
		if err != nil {
			return nil, fmt.Errorf("save recipe: %w", err)
		}
		data = local
	case SideRemote:
		rec, err := api.GetRecipe(ctx, item.Entry.ProjectKey, item.Entry.RecipeName)
		if err != nil {
			return nil, fmt.Errorf("get recipe: %w", err)
		}
		if err := e.writeLocal(c.Path, rec.Payload); err != nil {
			return nil, fmt.Errorf("write local: %w", err)
		}
		version, data = rec.Version, rec.Payload
	}

	entry := item.Entry.Clone()
	entry.SetBaseline(version, utils.ContentHash(data), data)
	item.Store.PutRecipe(entry)
	e.index.IndexRecipe(&index.RecipeItem{Store: item.Store, Entry: entry, File: item.File})
	return item.Store, nil
}

func (e *Engine) resolveFile(ctx context.Context, svc studiosdk.Service, c *Conflict, side Side) (*metadata.Store, error) {
	item := e.index.FilesystemContaining(c.Path)
	if item == nil || item.Entry.ID != c.TreeID {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, c.Path)
	}
	api := remoteTree(svc, item.Kind, item.Entry.ID)

	var data []byte
	switch side {
	case SideLocal:
		local, err := e.fs.Read(c.Path)
		if err != nil {
			return nil, fmt.Errorf("read local: %w", err)
		}
		if err := api.Upload(ctx, c.RemotePath, local); err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
		data = local
	case SideRemote:
		remote, err := api.Download(ctx, c.RemotePath)
		if err != nil {
			return nil, fmt.Errorf("download: %w", err)
		}
		if err := e.writeLocal(c.Path, remote); err != nil {
			return nil, fmt.Errorf("write local: %w", err)
		}
		data = remote
	}

	entry := item.Entry.Clone()
	f := entry.File(c.RemotePath)
	if f == nil {
		rel, err := item.Store.Rel(c.Path)
		if err != nil {
			return nil, err
		}
		f = &metadata.FileEntry{Instance: entry.Instance, ID: entry.ID, Path: rel, RemotePath: c.RemotePath}
	}
	f.SetBaseline(utils.ContentHash(data), data)
	entry.PutFile(f)

	updated := &index.SyncedFilesystem{Kind: item.Kind, Store: item.Store, Entry: entry, Root: item.Root}
	updated.Put()
	e.index.IndexFilesystem(updated)
	return item.Store, nil
}

package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/openmined/studiosync/internal/client/index"
	"github.com/openmined/studiosync/internal/client/metadata"
	"github.com/openmined/studiosync/internal/studiosdk"
	"github.com/openmined/studiosync/internal/utils"
)

// treeSync reconciles one plugin or library tree. It works on a copy of the
// indexed entry and publishes it back once the walk is done.
type treeSync struct {
	*pass
	item    *index.SyncedFilesystem
	entry   *metadata.FilesystemEntry
	api     studiosdk.FilesystemService
	seen    mapset.Set[string]
	changed bool
}

// remoteTree returns the API of a tree. Library trees are addressed by
// project key, which is recorded as their id.
func remoteTree(svc studiosdk.Service, kind index.Kind, id string) studiosdk.FilesystemService {
	if kind == index.KindLibrary {
		return svc.Library(id)
	}
	return svc.Plugin(id)
}

func (e *Engine) reconcileFilesystem(p *pass, item *index.SyncedFilesystem) {
	svc, ok := p.service(item.Entry.Instance, item.Root)
	if !ok {
		return
	}

	if !e.fs.IsDir(item.Root) {
		e.untrackFilesystem(p, item)
		p.untracked("%s %s: local directory %s is gone", item.Kind, item.Entry.ID, item.Root)
		return
	}

	t := &treeSync{
		pass:  p,
		item:  item,
		entry: item.Entry.Clone(),
		api:   remoteTree(svc, item.Kind, item.Entry.ID),
		seen:  mapset.NewThreadUnsafeSet[string](),
	}

	nodes, err := t.api.List(p.ctx)
	if errors.Is(err, studiosdk.ErrNotFound) {
		e.untrackFilesystem(p, item)
		p.untracked("%s %s: deleted on %s", item.Kind, item.Entry.ID, item.Entry.Instance)
		return
	} else if err != nil {
		slog.Error("sync", "type", item.Kind, "op", "List", "path", item.Root, "error", err)
		p.fail(item.Root, OpError, fmt.Errorf("list %s %s: %w", item.Kind, item.Entry.ID, err))
		return
	}

	t.walkRemote(nodes)
	if p.ctx.Err() == nil {
		t.scanLocal(item.Root)
	}

	if t.changed {
		updated := &index.SyncedFilesystem{Kind: item.Kind, Store: item.Store, Entry: t.entry, Root: item.Root}
		updated.Put()
		e.index.IndexFilesystem(updated)
		p.markDirty(item.Store)
	}
}

func (e *Engine) untrackFilesystem(p *pass, item *index.SyncedFilesystem) {
	item.Delete()
	e.index.RemoveFilesystem(item.Kind, item.Root)
	p.markDirty(item.Store)
}

func normalizeRemotePath(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

func (t *treeSync) localPath(remotePath string) string {
	return filepath.Join(t.item.Root, filepath.FromSlash(strings.TrimSuffix(remotePath, "/")))
}

func (t *treeSync) newFileEntry(remotePath, local string) *metadata.FileEntry {
	rel, err := t.item.Store.Rel(local)
	if err != nil {
		rel = filepath.ToSlash(local)
	}
	return &metadata.FileEntry{
		Instance:   t.entry.Instance,
		ID:         t.entry.ID,
		Path:       rel,
		RemotePath: remotePath,
	}
}

func (t *treeSync) walkRemote(nodes []*studiosdk.FileNode) {
	for _, node := range nodes {
		if t.ctx.Err() != nil {
			return
		}
		rp := normalizeRemotePath(node.Path)
		if rp == "" {
			// the root itself
			t.walkRemote(node.Children)
			continue
		}
		local := t.localPath(rp)
		if t.engine.ignore.ShouldIgnore(t.item.Root, local) {
			continue
		}
		if node.IsFolder() {
			t.syncRemoteFolder(node, rp, local)
		} else {
			t.syncRemoteFile(rp, local)
		}
	}
}

func (t *treeSync) syncRemoteFolder(node *studiosdk.FileNode, rp, local string) {
	key := rp + "/"
	t.seen.Add(key)
	tracked := t.entry.File(key)

	switch {
	case tracked == nil:
		if t.engine.fs.IsFile(local) {
			t.failed(local, OpCreateLocal, fmt.Errorf("a file is in the way of remote folder %s", rp))
			return
		}
		if _, err := t.engine.fs.GetOrCreateDir(t.item.Root, strings.Split(rp, "/")...); err != nil {
			t.failed(local, OpCreateLocal, err)
			return
		}
		t.entry.PutFile(t.newFileEntry(key, local))
		t.changed = true
		slog.Info("sync", "type", t.item.Kind, "op", OpCreateLocal, "path", local)
		t.walkRemote(node.Children)

	case !t.engine.fs.IsDir(local):
		t.deleteRemoteFolder(node, rp)

	default:
		t.walkRemote(node.Children)
	}
}

// deleteRemoteFolder removes a folder deleted locally, children first.
func (t *treeSync) deleteRemoteFolder(node *studiosdk.FileNode, rp string) {
	if err := t.deleteRemoteNode(node, rp); err != nil {
		t.failed(t.localPath(rp), OpDeleteRemote, err)
		return
	}
	t.entry.RemoveFile(rp + "/")
	t.changed = true
	t.summary.DeletedFromRemote = append(t.summary.DeletedFromRemote, t.localPath(rp))
	slog.Info("sync", "type", t.item.Kind, "op", OpDeleteRemote, "path", rp+"/")
}

func (t *treeSync) deleteRemoteNode(node *studiosdk.FileNode, rp string) error {
	for _, child := range node.Children {
		crp := normalizeRemotePath(child.Path)
		if child.IsFolder() {
			t.seen.Add(crp + "/")
			if err := t.deleteRemoteNode(child, crp); err != nil {
				return err
			}
			continue
		}
		t.seen.Add(crp)
		if err := t.api.Delete(t.ctx, crp); err != nil && !errors.Is(err, studiosdk.ErrNotFound) {
			return fmt.Errorf("delete %s: %w", crp, err)
		}
	}
	if err := t.api.Delete(t.ctx, rp); err != nil && !errors.Is(err, studiosdk.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", rp, err)
	}
	return nil
}

func (t *treeSync) syncRemoteFile(rp, local string) {
	t.seen.Add(rp)
	tracked := t.entry.File(rp)
	localExists := t.engine.fs.IsFile(local)

	if t.engine.fs.IsDir(local) {
		t.failed(local, OpPull, fmt.Errorf("a directory is in the way of remote file %s", rp))
		return
	}

	remote, err := t.api.Download(t.ctx, rp)
	if errors.Is(err, studiosdk.ErrNotFound) {
		// vanished between list and download; the next pass sees it as an orphan
		return
	} else if err != nil {
		t.failed(local, OpPull, fmt.Errorf("download %s: %w", rp, err))
		return
	}
	remoteHash := utils.ContentHash(remote)

	switch {
	case tracked == nil && !localExists:
		t.pull(nil, rp, local, remote, remoteHash)

	case tracked == nil:
		data, err := t.engine.fs.Read(local)
		if err != nil {
			t.failed(local, OpError, err)
			return
		}
		localHash := utils.ContentHash(data)
		if localHash == remoteHash {
			t.adopt(nil, rp, local, localHash, data)
			return
		}
		// both sides created the file independently, there is no baseline
		t.conflictFile(nil, rp, local, data, remote)

	case !localExists:
		if remoteHash == tracked.ContentHash {
			if err := t.api.Delete(t.ctx, rp); err != nil && !errors.Is(err, studiosdk.ErrNotFound) {
				t.failed(local, OpDeleteRemote, err)
				return
			}
			t.entry.RemoveFile(rp)
			t.changed = true
			t.summary.DeletedFromRemote = append(t.summary.DeletedFromRemote, local)
			slog.Info("sync", "type", t.item.Kind, "op", OpDeleteRemote, "path", rp)
			return
		}
		// deleted here but edited there: the edit wins
		t.pull(tracked, rp, local, remote, remoteHash)

	default:
		localHash, err := t.engine.fs.Hash(local)
		if err != nil {
			t.failed(local, OpError, err)
			return
		}
		remoteChanged := remoteHash != tracked.ContentHash
		op := decide(tracked.ContentHash, localHash, remoteChanged, remoteHash)
		if op == OpNoop {
			return
		}
		// every other outcome acts on the local bytes, so check the cached
		// hash against them before a pull can overwrite an edit
		data, err := t.engine.fs.Read(local)
		if err != nil {
			t.failed(local, OpError, err)
			return
		}
		if fresh := utils.ContentHash(data); fresh != localHash {
			t.engine.fs.Forget(local)
			localHash = fresh
			op = decide(tracked.ContentHash, localHash, remoteChanged, remoteHash)
		}
		switch op {
		case OpNoop:
		case OpPull:
			t.pull(tracked, rp, local, remote, remoteHash)
		case OpPush:
			t.push(tracked, rp, local, data, localHash)
		case OpAdopt:
			t.adopt(tracked, rp, local, localHash, data)
		default:
			t.conflictFile(tracked, rp, local, data, remote)
		}
	}
}

func (t *treeSync) pull(tracked *metadata.FileEntry, rp, local string, remote []byte, remoteHash uint32) {
	if err := t.engine.writeLocal(local, remote); err != nil {
		t.failed(local, OpPull, err)
		return
	}
	t.setBaseline(tracked, rp, local, remoteHash, remote)
	t.summary.LocallyUpdated = append(t.summary.LocallyUpdated, local)
	t.engine.status.SetCompleted(local)
	slog.Info("sync", "type", t.item.Kind, "op", OpPull, "path", rp, "size", humanize.Bytes(uint64(len(remote))))
}

func (t *treeSync) push(tracked *metadata.FileEntry, rp, local string, data []byte, localHash uint32) {
	t.engine.status.SetSyncing(local)
	if err := t.api.Upload(t.ctx, rp, data); err != nil {
		t.failed(local, OpPush, err)
		return
	}
	t.setBaseline(tracked, rp, local, localHash, data)
	t.summary.PushedToRemote = append(t.summary.PushedToRemote, local)
	t.engine.status.SetCompleted(local)
	slog.Info("sync", "type", t.item.Kind, "op", OpPush, "path", rp, "size", humanize.Bytes(uint64(len(data))))
}

func (t *treeSync) adopt(tracked *metadata.FileEntry, rp, local string, hash uint32, data []byte) {
	t.setBaseline(tracked, rp, local, hash, data)
	t.engine.status.SetCompleted(local)
	slog.Info("sync", "type", t.item.Kind, "op", OpAdopt, "path", rp)
}

func (t *treeSync) setBaseline(tracked *metadata.FileEntry, rp, local string, hash uint32, data []byte) {
	var f metadata.FileEntry
	if tracked != nil {
		f = *tracked
	} else {
		f = *t.newFileEntry(rp, local)
	}
	f.SetBaseline(hash, data)
	t.entry.PutFile(&f)
	t.changed = true
}

func (t *treeSync) conflictFile(tracked *metadata.FileEntry, rp, local string, data, remote []byte) {
	var base []byte
	if tracked != nil {
		base = t.engine.baselineData(t.item.Store, tracked.Data, tracked.DataBlobID)
	}
	t.conflict(&Conflict{
		Kind:       string(t.item.Kind),
		Instance:   t.entry.Instance,
		Path:       local,
		TreeID:     t.entry.ID,
		RemotePath: rp,
		Local:      data,
		Remote:     remote,
		Base:       base,
		DetectedAt: time.Now(),
	})
}

// scanLocal handles local entries the remote listing did not mention.
func (t *treeSync) scanLocal(dir string) {
	infos, err := t.engine.fs.List(dir)
	if err != nil {
		t.failed(dir, OpError, err)
		return
	}

	for _, info := range infos {
		if t.ctx.Err() != nil {
			return
		}
		local := filepath.Join(dir, info.Name())
		if t.engine.ignore.ShouldIgnore(t.item.Root, local) {
			continue
		}
		rel, err := filepath.Rel(t.item.Root, local)
		if err != nil {
			continue
		}
		rp := filepath.ToSlash(rel)

		if info.IsDir() {
			t.scanLocalDir(local, rp)
		} else if !t.seen.Contains(rp) {
			t.syncOrphanFile(local, rp)
		}
	}
}

func (t *treeSync) scanLocalDir(local, rp string) {
	key := rp + "/"
	if t.seen.Contains(key) {
		t.scanLocal(local)
		return
	}

	if tracked := t.entry.File(key); tracked != nil {
		// deleted remotely: settle the children, then drop the folder if nothing is left
		t.scanLocal(local)
		t.entry.RemoveFile(key)
		t.changed = true
		if infos, err := t.engine.fs.List(local); err == nil && len(infos) == 0 {
			if err := t.engine.deleteLocal(local); err != nil {
				t.failed(local, OpDeleteLocal, err)
				return
			}
			t.summary.LocallyDeleted = append(t.summary.LocallyDeleted, local)
			slog.Info("sync", "type", t.item.Kind, "op", OpDeleteLocal, "path", key)
		}
		return
	}

	if t.holdsOnlyIgnored(local) {
		// e.g. a folder deleted remotely that still keeps a soft-deleted file
		slog.Debug("sync", "type", t.item.Kind, "op", OpNoop, "path", key, "reason", "only ignored entries")
		return
	}

	if err := t.api.CreateFolder(t.ctx, rp); err != nil {
		t.failed(local, OpPush, fmt.Errorf("create folder %s: %w", rp, err))
		return
	}
	t.entry.PutFile(t.newFileEntry(key, local))
	t.changed = true
	slog.Info("sync", "type", t.item.Kind, "op", OpPush, "path", key)
	t.scanLocal(local)
}

// holdsOnlyIgnored reports whether dir has entries and none of them would be
// synced. Such a folder is never pushed as new.
func (t *treeSync) holdsOnlyIgnored(dir string) bool {
	infos, err := t.engine.fs.List(dir)
	if err != nil || len(infos) == 0 {
		return false
	}
	for _, info := range infos {
		path := filepath.Join(dir, info.Name())
		if t.engine.ignore.ShouldIgnore(t.item.Root, path) {
			continue
		}
		if info.IsDir() && t.holdsOnlyIgnored(path) {
			continue
		}
		return false
	}
	return true
}

func (t *treeSync) syncOrphanFile(local, rp string) {
	data, err := t.engine.fs.Read(local)
	if err != nil {
		t.failed(local, OpError, err)
		return
	}
	localHash := utils.ContentHash(data)

	tracked := t.entry.File(rp)
	switch {
	case tracked == nil:
		t.push(nil, rp, local, data, localHash)

	case localHash != tracked.ContentHash:
		t.engine.onWrite(local)
		marked, err := SetMarker(t.engine.fs, local, Deleted)
		if err != nil {
			t.failed(local, OpSoftDelete, err)
			return
		}
		t.entry.RemoveFile(rp)
		t.changed = true
		t.summary.LocallyDeleted = append(t.summary.LocallyDeleted, local)
		t.untracked("%s %s: %s was deleted remotely, local edits kept in %s", t.item.Kind, t.entry.ID, rp, marked)
		slog.Warn("sync", "type", t.item.Kind, "op", OpSoftDelete, "path", rp, "movedTo", marked)

	default:
		if err := t.engine.deleteLocal(local); err != nil {
			t.failed(local, OpDeleteLocal, err)
			return
		}
		t.entry.RemoveFile(rp)
		t.changed = true
		t.summary.LocallyDeleted = append(t.summary.LocallyDeleted, local)
		t.engine.status.SetCompleted(local)
		slog.Info("sync", "type", t.item.Kind, "op", OpDeleteLocal, "path", rp)
	}
}

func (t *treeSync) failed(path string, op OpType, err error) {
	slog.Error("sync", "type", t.item.Kind, "op", op, "path", path, "error", err)
	t.fail(path, op, err)
}

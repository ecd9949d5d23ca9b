// Package metadata persists the tracked items of one module root together
// with a cache of baseline bytes used to report conflicts.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
)

const (
	DirName      = ".studiosync"
	FileName     = "metadata.json"
	BlobsDirName = "blobs"

	blobIDLength = 32
)

var ErrCorruptMetadata = errors.New("metadata: corrupt document")

// Store is the metadata document of a module root. It assumes it is the only
// writer of that root.
type Store struct {
	fs         afero.Fs
	moduleRoot string
	path       string
	blobDir    string
	meta       *Metadata
	mu         sync.Mutex
}

// Load reads <moduleRoot>/.studiosync/metadata.json. A missing file yields an
// empty store; missing lists are treated as empty.
func Load(fsys afero.Fs, moduleRoot string) (*Store, error) {
	root := filepath.Clean(moduleRoot)
	s := &Store{
		fs:         fsys,
		moduleRoot: root,
		path:       filepath.Join(root, DirName, FileName),
		blobDir:    filepath.Join(root, DirName, BlobsDirName),
		meta:       &Metadata{},
	}

	data, err := afero.ReadFile(fsys, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.meta.normalize()
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("metadata read %s: %w", s.path, err)
	}

	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, s.meta); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorruptMetadata, s.path, err)
		}
	}
	s.meta.normalize()

	return s, nil
}

func (s *Store) ModuleRoot() string { return s.moduleRoot }

// Path is the metadata file location and the store's identity.
func (s *Store) Path() string { return s.path }

func (s *Store) BlobDir() string { return s.blobDir }

// Equal reports whether both stores refer to the same metadata file.
func (s *Store) Equal(other *Store) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.path == other.path
}

// Abs resolves a recorded slash separated path against the module root.
func (s *Store) Abs(rel string) string {
	return filepath.Join(s.moduleRoot, filepath.FromSlash(rel))
}

// Rel converts an absolute path below the module root to its recorded form.
func (s *Store) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(s.moduleRoot, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("metadata: %s is outside %s", abs, s.moduleRoot)
	}
	return filepath.ToSlash(rel), nil
}

func (s *Store) Recipes() []*RecipeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*RecipeEntry, len(s.meta.Recipes))
	for i, r := range s.meta.Recipes {
		out[i] = r.Clone()
	}
	return out
}

func (s *Store) Plugins() []*FilesystemEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneFilesystems(s.meta.Plugins)
}

func (s *Store) Libraries() []*FilesystemEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneFilesystems(s.meta.Libraries)
}

func (s *Store) Recipe(path string) *RecipeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.meta.Recipes {
		if r.Path == path {
			return r.Clone()
		}
	}
	return nil
}

// Empty reports whether nothing is tracked in this root.
func (s *Store) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.meta.Recipes) == 0 && len(s.meta.Plugins) == 0 && len(s.meta.Libraries) == 0
}

// PutRecipe adds or replaces the recipe recorded at e.Path without flushing.
func (s *Store) PutRecipe(e *RecipeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e = e.Clone()
	if i := slices.IndexFunc(s.meta.Recipes, func(r *RecipeEntry) bool { return r.Path == e.Path }); i >= 0 {
		s.meta.Recipes[i] = e
		return
	}
	s.meta.Recipes = append(s.meta.Recipes, e)
}

func (s *Store) DeleteRecipe(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.meta.Recipes)
	s.meta.Recipes = slices.DeleteFunc(s.meta.Recipes, func(r *RecipeEntry) bool { return r.Path == path })
	return len(s.meta.Recipes) != n
}

func (s *Store) PutPlugin(e *FilesystemEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Plugins = putFilesystem(s.meta.Plugins, e)
}

func (s *Store) DeletePlugin(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ok bool
	s.meta.Plugins, ok = deleteFilesystem(s.meta.Plugins, path)
	return ok
}

func (s *Store) PutLibrary(e *FilesystemEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Libraries = putFilesystem(s.meta.Libraries, e)
}

func (s *Store) DeleteLibrary(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ok bool
	s.meta.Libraries, ok = deleteFilesystem(s.meta.Libraries, path)
	return ok
}

func (s *Store) AddOrUpdateRecipe(e *RecipeEntry) error {
	s.PutRecipe(e)
	return s.Flush()
}

func (s *Store) RemoveRecipe(path string) error {
	s.DeleteRecipe(path)
	return s.Flush()
}

func (s *Store) AddOrUpdatePlugin(e *FilesystemEntry) error {
	s.PutPlugin(e)
	return s.Flush()
}

func (s *Store) RemovePlugin(path string) error {
	s.DeletePlugin(path)
	return s.Flush()
}

func (s *Store) AddOrUpdateLibrary(e *FilesystemEntry) error {
	s.PutLibrary(e)
	return s.Flush()
}

func (s *Store) RemoveLibrary(path string) error {
	s.DeleteLibrary(path)
	return s.Flush()
}

// Flush writes pending baseline bytes to blobs, replaces the metadata file
// and deletes blobs no longer referenced. Blob or document write failures are
// returned and leave the previous document in place.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.blobDir, 0o755); err != nil {
		return fmt.Errorf("metadata flush: create blob dir: %w", err)
	}

	if err := s.writePendingBlobs(); err != nil {
		return fmt.Errorf("metadata flush: %w", err)
	}

	data, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata flush: encode: %w", err)
	}
	if err := writeAtomic(s.fs, s.path, data); err != nil {
		return fmt.Errorf("metadata flush: %w", err)
	}

	s.collectGarbage()
	return nil
}

// ReadDataBlob returns the decompressed bytes of blob id, or false if absent.
func (s *Store) ReadDataBlob(id string) ([]byte, bool, error) {
	if !validBlobID(id) {
		return nil, false, nil
	}

	f, err := s.fs.Open(filepath.Join(s.blobDir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, false, fmt.Errorf("blob %s: %w", id, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, false, fmt.Errorf("blob %s: %w", id, err)
	}
	return data, true, nil
}

func (s *Store) writePendingBlobs() error {
	for _, r := range s.meta.Recipes {
		if r.Data == nil {
			continue
		}
		id, err := s.writeBlob(r.Data)
		if err != nil {
			return err
		}
		r.DataBlobID, r.Data = id, nil
	}

	for _, list := range [][]*FilesystemEntry{s.meta.Plugins, s.meta.Libraries} {
		for _, fse := range list {
			for _, f := range fse.Files {
				if f.Data == nil {
					continue
				}
				id, err := s.writeBlob(f.Data)
				if err != nil {
					return err
				}
				f.DataBlobID, f.Data = id, nil
			}
		}
	}
	return nil
}

func (s *Store) writeBlob(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("compress blob: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress blob: %w", err)
	}

	id := newBlobID()
	if err := writeAtomic(s.fs, filepath.Join(s.blobDir, id), buf.Bytes()); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return id, nil
}

func (s *Store) collectGarbage() {
	referenced := make(map[string]struct{})
	for _, r := range s.meta.Recipes {
		if r.DataBlobID != "" {
			referenced[r.DataBlobID] = struct{}{}
		}
	}
	for _, list := range [][]*FilesystemEntry{s.meta.Plugins, s.meta.Libraries} {
		for _, fse := range list {
			for _, f := range fse.Files {
				if f.DataBlobID != "" {
					referenced[f.DataBlobID] = struct{}{}
				}
			}
		}
	}

	entries, err := afero.ReadDir(s.fs, s.blobDir)
	if err != nil {
		slog.Warn("metadata gc", "dir", s.blobDir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := referenced[entry.Name()]; ok {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.blobDir, entry.Name())); err != nil {
			slog.Warn("metadata gc", "blob", entry.Name(), "error", err)
		}
	}
}

func newBlobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func validBlobID(id string) bool {
	if len(id) != blobIDLength {
		return false
	}
	for _, c := range id {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

func writeAtomic(fsys afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fsys.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		fsys.Remove(tmpPath)
		return err
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		fsys.Remove(tmpPath)
		return err
	}
	return nil
}

func cloneFilesystems(list []*FilesystemEntry) []*FilesystemEntry {
	out := make([]*FilesystemEntry, len(list))
	for i, e := range list {
		out[i] = e.Clone()
	}
	return out
}

func putFilesystem(list []*FilesystemEntry, e *FilesystemEntry) []*FilesystemEntry {
	e = e.Clone()
	if i := slices.IndexFunc(list, func(x *FilesystemEntry) bool { return x.Path == e.Path }); i >= 0 {
		list[i] = e
		return list
	}
	return append(list, e)
}

func deleteFilesystem(list []*FilesystemEntry, path string) ([]*FilesystemEntry, bool) {
	n := len(list)
	list = slices.DeleteFunc(list, func(x *FilesystemEntry) bool { return x.Path == path })
	return list, len(list) != n
}

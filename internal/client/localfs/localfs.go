// Package localfs provides guarded access to the local mirror. Every read and
// write of tracked content goes through an Adapter so a pass never observes a
// half written file.
package localfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/studiosync/internal/utils"
	"github.com/spf13/afero"
)

const (
	// TempFilePattern marks in-flight writes. The sync ignore list skips it.
	TempFilePattern = ".studiosync.tmp."

	hashCacheSize = 4096
)

var ErrIsDirectory = errors.New("localfs: path is a directory")

type hashEntry struct {
	size    int64
	modTime time.Time
	hash    uint32
}

// Adapter is a mutex guarded view of a file system.
type Adapter struct {
	fs     afero.Fs
	mu     sync.RWMutex
	hashes *lru.Cache[string, hashEntry]
}

// New wraps fs. Use afero.NewOsFs for the real disk or afero.NewMemMapFs in tests.
func New(fs afero.Fs) *Adapter {
	hashes, _ := lru.New[string, hashEntry](hashCacheSize)
	return &Adapter{
		fs:     fs,
		hashes: hashes,
	}
}

func NewOsAdapter() *Adapter {
	return New(afero.NewOsFs())
}

// Fs exposes the underlying file system.
func (a *Adapter) Fs() afero.Fs {
	return a.fs
}

func (a *Adapter) Read(path string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.readLocked(path)
}

func (a *Adapter) readLocked(path string) ([]byte, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	return afero.ReadFile(a.fs, path)
}

// Write atomically replaces path with data, creating parent directories.
func (a *Adapter) Write(path string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writeLocked(path, data)
}

func (a *Adapter) writeLocked(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure parent: %w", err)
	}

	tmp, err := afero.TempFile(a.fs, dir, filepath.Base(path)+TempFilePattern+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			a.fs.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := a.fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	success = true
	a.hashes.Remove(path)
	return nil
}

func (a *Adapter) Rename(oldPath, newPath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.fs.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return fmt.Errorf("ensure parent: %w", err)
	}
	if err := a.fs.Rename(oldPath, newPath); err != nil {
		return err
	}
	a.forget(oldPath)
	a.hashes.Remove(newPath)
	return nil
}

// Delete removes a file or a directory tree. Deleting a missing path is not an error.
func (a *Adapter) Delete(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.fs.RemoveAll(path); err != nil {
		return err
	}
	a.forget(path)
	return nil
}

func (a *Adapter) Exists(path string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, err := a.fs.Stat(path)
	return err == nil
}

func (a *Adapter) IsDir(path string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ok, err := afero.IsDir(a.fs, path)
	return err == nil && ok
}

func (a *Adapter) IsFile(path string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	info, err := a.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// GetOrCreateDir resolves root/segments... and creates the directory if needed.
func (a *Adapter) GetOrCreateDir(root string, segments ...string) (string, error) {
	path := filepath.Join(append([]string{root}, segments...)...)
	if !utils.IsSubPath(root, path) {
		return "", fmt.Errorf("localfs: %q escapes %q", path, root)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if info, err := a.fs.Stat(path); err == nil {
		if !info.IsDir() {
			return "", fmt.Errorf("localfs: %s exists and is not a directory", path)
		}
		return path, nil
	}
	if err := a.fs.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// GetOrCreateFile resolves root/segments... and creates an empty file if needed.
func (a *Adapter) GetOrCreateFile(root string, segments ...string) (string, error) {
	path := filepath.Join(append([]string{root}, segments...)...)
	if !utils.IsSubPath(root, path) || path == filepath.Clean(root) {
		return "", fmt.Errorf("localfs: %q is not a file below %q", path, root)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	info, err := a.fs.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return "", fmt.Errorf("%w: %s", ErrIsDirectory, path)
	case err == nil:
		return path, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", err
	}
	if err := a.writeLocked(path, nil); err != nil {
		return "", err
	}
	return path, nil
}

// List returns the direct children of dir sorted by name.
func (a *Adapter) List(dir string) ([]os.FileInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return afero.ReadDir(a.fs, dir)
}

// Hash returns the content hash of path. Unchanged files (same size and
// modification time) are answered from cache without reading them.
func (a *Adapter) Hash(path string) (uint32, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	info, err := a.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	if cached, ok := a.hashes.Get(path); ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.hash, nil
	}

	f, err := a.fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	hash, err := utils.ContentHashReader(f)
	if err != nil {
		return 0, fmt.Errorf("hash %s: %w", path, err)
	}

	a.hashes.Add(path, hashEntry{size: info.Size(), modTime: info.ModTime(), hash: hash})
	return hash, nil
}

// Forget drops the cached hashes of path and everything below it.
func (a *Adapter) Forget(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.forget(path)
}

func (a *Adapter) forget(path string) {
	prefix := path + string(filepath.Separator)
	for _, key := range a.hashes.Keys() {
		if key == path || strings.HasPrefix(key, prefix) {
			a.hashes.Remove(key)
		}
	}
}

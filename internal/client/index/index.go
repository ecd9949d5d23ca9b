// Package index keeps the in-memory registry of tracked items, keyed by
// their location on disk.
package index

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/studiosync/internal/client/metadata"
	"github.com/openmined/studiosync/internal/utils"
	"github.com/spf13/afero"
)

// Index maps recipe files and plugin/library roots to their metadata. The
// sync worker is its only writer; other goroutines read through Snapshot.
type Index struct {
	fs        afero.Fs
	recipes   map[string]*RecipeItem
	plugins   map[string]*SyncedFilesystem
	libraries map[string]*SyncedFilesystem
	stores    map[string]*metadata.Store
	mu        sync.Mutex
}

func New(fs afero.Fs) *Index {
	return &Index{
		fs:        fs,
		recipes:   make(map[string]*RecipeItem),
		plugins:   make(map[string]*SyncedFilesystem),
		libraries: make(map[string]*SyncedFilesystem),
		stores:    make(map[string]*metadata.Store),
	}
}

// Store returns the cached metadata store of moduleRoot, loading it on first use.
func (idx *Index) Store(moduleRoot string) (*metadata.Store, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.storeLocked(filepath.Clean(moduleRoot), false)
}

func (idx *Index) storeLocked(root string, reload bool) (*metadata.Store, error) {
	if s, ok := idx.stores[root]; ok && !reload {
		return s, nil
	}
	s, err := metadata.Load(idx.fs, root)
	if err != nil {
		return nil, err
	}
	idx.stores[root] = s
	return s, nil
}

func (idx *Index) IndexRecipe(item *RecipeItem) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.recipes[filepath.Clean(item.File)] = item
}

func (idx *Index) IndexFilesystem(item *SyncedFilesystem) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.filesystemsLocked(item.Kind)[filepath.Clean(item.Root)] = item
}

func (idx *Index) RemoveRecipe(file string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.recipes, filepath.Clean(file))
}

func (idx *Index) RemoveFilesystem(kind Kind, root string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.filesystemsLocked(kind), filepath.Clean(root))
}

// RecipeByPath finds the recipe tracked at exactly path.
func (idx *Index) RecipeByPath(path string) *RecipeItem {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.recipes[filepath.Clean(path)]
}

// FilesystemContaining finds the plugin or library tree that path is, or is nested under.
func (idx *Index) FilesystemContaining(path string) *SyncedFilesystem {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	dir := filepath.Clean(path)
	for {
		if fs, ok := idx.plugins[dir]; ok {
			return fs
		}
		if fs, ok := idx.libraries[dir]; ok {
			return fs
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// ItemsUnder returns every tracked item located at or below dir.
func (idx *Index) ItemsUnder(dir string) ([]*RecipeItem, []*SyncedFilesystem) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var recipes []*RecipeItem
	for path, item := range idx.recipes {
		if utils.IsSubPath(dir, path) {
			recipes = append(recipes, item)
		}
	}

	var filesystems []*SyncedFilesystem
	for _, m := range []map[string]*SyncedFilesystem{idx.plugins, idx.libraries} {
		for root, item := range m {
			if utils.IsSubPath(dir, root) {
				filesystems = append(filesystems, item)
			}
		}
	}
	sortItems(recipes, filesystems)
	return recipes, filesystems
}

// Recipes returns the tracked recipes in path order.
func (idx *Index) Recipes() []*RecipeItem {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	items := make([]*RecipeItem, 0, len(idx.recipes))
	for _, item := range idx.recipes {
		items = append(items, item)
	}
	sortItems(items, nil)
	return items
}

// Filesystems returns the tracked plugin trees followed by library trees.
func (idx *Index) Filesystems() []*SyncedFilesystem {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	plugins := make([]*SyncedFilesystem, 0, len(idx.plugins))
	for _, item := range idx.plugins {
		plugins = append(plugins, item)
	}
	libraries := make([]*SyncedFilesystem, 0, len(idx.libraries))
	for _, item := range idx.libraries {
		libraries = append(libraries, item)
	}
	sortItems(nil, plugins)
	sortItems(nil, libraries)
	return append(plugins, libraries...)
}

// Len returns the number of tracked items.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.recipes) + len(idx.plugins) + len(idx.libraries)
}

// Rescan rebuilds the whole index from the metadata of every distinct module
// root of projects. Recorded paths missing on disk are skipped, not removed.
func (idx *Index) Rescan(projects []Project) error {
	roots := distinctRoots(projects)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.recipes = make(map[string]*RecipeItem)
	idx.plugins = make(map[string]*SyncedFilesystem)
	idx.libraries = make(map[string]*SyncedFilesystem)
	idx.stores = make(map[string]*metadata.Store)

	var firstErr error
	for _, root := range roots {
		if err := idx.loadRootLocked(root); err != nil {
			slog.Error("index rescan", "root", root, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// AddProject rescans only the module roots of project, replacing whatever
// the index held for them.
func (idx *Index) AddProject(project Project) error {
	roots := distinctRoots([]Project{project})

	idx.mu.Lock()
	defer idx.mu.Unlock()

	var firstErr error
	for _, root := range roots {
		idx.dropRootLocked(root)
		if err := idx.loadRootLocked(root); err != nil {
			slog.Error("index add project", "project", project.Name, "root", root, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (idx *Index) loadRootLocked(root string) error {
	store, err := idx.storeLocked(root, true)
	if err != nil {
		return fmt.Errorf("load %s: %w", root, err)
	}

	for _, entry := range store.Recipes() {
		file := store.Abs(entry.Path)
		if !idx.isFile(file) {
			slog.Debug("index skip", "kind", KindRecipe, "path", file)
			continue
		}
		idx.recipes[file] = &RecipeItem{Store: store, Entry: entry, File: file}
	}

	for kind, entries := range map[Kind][]*metadata.FilesystemEntry{
		KindPlugin:  store.Plugins(),
		KindLibrary: store.Libraries(),
	} {
		for _, entry := range entries {
			dir := store.Abs(entry.Path)
			if !idx.isDir(dir) {
				slog.Debug("index skip", "kind", kind, "path", dir)
				continue
			}
			idx.filesystemsLocked(kind)[dir] = &SyncedFilesystem{Kind: kind, Store: store, Entry: entry, Root: dir}
		}
	}
	return nil
}

func (idx *Index) dropRootLocked(root string) {
	store, ok := idx.stores[root]
	if !ok {
		return
	}
	for path, item := range idx.recipes {
		if item.Store.Equal(store) {
			delete(idx.recipes, path)
		}
	}
	for _, m := range []map[string]*SyncedFilesystem{idx.plugins, idx.libraries} {
		for path, item := range m {
			if item.Store.Equal(store) {
				delete(m, path)
			}
		}
	}
}

func (idx *Index) filesystemsLocked(kind Kind) map[string]*SyncedFilesystem {
	if kind == KindLibrary {
		return idx.libraries
	}
	return idx.plugins
}

func (idx *Index) isFile(path string) bool {
	info, err := idx.fs.Stat(path)
	return err == nil && !info.IsDir()
}

func (idx *Index) isDir(path string) bool {
	info, err := idx.fs.Stat(path)
	return err == nil && info.IsDir()
}

func distinctRoots(projects []Project) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	roots := make([]string, 0)
	for _, p := range projects {
		for _, root := range p.ModuleRoots {
			clean := filepath.Clean(root)
			if seen.Add(clean) {
				roots = append(roots, clean)
			}
		}
	}
	return roots
}

func sortItems(recipes []*RecipeItem, filesystems []*SyncedFilesystem) {
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].File < recipes[j].File })
	sort.Slice(filesystems, func(i, j int) bool {
		if filesystems[i].Kind != filesystems[j].Kind {
			return filesystems[i].Kind > filesystems[j].Kind
		}
		return filesystems[i].Root < filesystems[j].Root
	})
}

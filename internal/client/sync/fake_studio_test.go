package sync

import (
	"context"
	"errors"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/openmined/studiosync/internal/studiosdk"
)

// fakeStudio is an in-memory studio instance that counts every call.
type fakeStudio struct {
	mu        sync.Mutex
	recipes   map[string]*fakeRecipe
	trees     map[string]*fakeTree
	failList  error
	listCalls int
	getCalls  int
	saveCalls int
}

type fakeRecipe struct {
	version int64
	payload []byte
}

func newFakeStudio() *fakeStudio {
	return &fakeStudio{
		recipes: make(map[string]*fakeRecipe),
		trees:   make(map[string]*fakeTree),
	}
}

func (f *fakeStudio) setRecipe(project, name string, version int64, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipes[project+"."+name] = &fakeRecipe{version: version, payload: []byte(payload)}
}

func (f *fakeStudio) recipe(project, name string) *fakeRecipe {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recipes[project+"."+name]
}

func (f *fakeStudio) deleteRecipe(project, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recipes, project+"."+name)
}

func (f *fakeStudio) tree(kind, id string) *fakeTree {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := kind + ":" + id
	t, ok := f.trees[key]
	if !ok {
		t = &fakeTree{files: make(map[string][]byte), folders: make(map[string]bool)}
		f.trees[key] = t
	}
	return t
}

func (f *fakeStudio) Recipes() studiosdk.RecipeService { return f }

func (f *fakeStudio) Plugin(id string) studiosdk.FilesystemService { return f.tree("plugin", id) }

func (f *fakeStudio) Library(projectKey string) studiosdk.FilesystemService {
	return f.tree("library", projectKey)
}

func (f *fakeStudio) ListRecipes(_ context.Context, projectKey string) ([]studiosdk.RecipeSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failList != nil {
		return nil, f.failList
	}

	var out []studiosdk.RecipeSummary
	for key, r := range f.recipes {
		project, name, _ := strings.Cut(key, ".")
		if project != projectKey {
			continue
		}
		out = append(out, studiosdk.RecipeSummary{Name: name, VersionTag: studiosdk.VersionTag{VersionNumber: r.version}})
	}
	return out, nil
}

func (f *fakeStudio) GetRecipe(_ context.Context, projectKey, recipeName string) (*studiosdk.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	r, ok := f.recipes[projectKey+"."+recipeName]
	if !ok {
		return nil, studiosdk.ErrNotFound
	}
	return &studiosdk.Recipe{Name: recipeName, Version: r.version, Payload: slices.Clone(r.payload)}, nil
}

func (f *fakeStudio) SaveRecipe(_ context.Context, projectKey, recipeName string, payload []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	r, ok := f.recipes[projectKey+"."+recipeName]
	if !ok {
		return 0, studiosdk.ErrNotFound
	}
	r.version++
	r.payload = slices.Clone(payload)
	return r.version, nil
}

// fakeTree is one remote plugin or library tree.
type fakeTree struct {
	mu        sync.Mutex
	files     map[string][]byte
	folders   map[string]bool
	missing   bool
	downloads int
	uploads   int
	deletes   []string
	creates   []string
}

func (t *fakeTree) put(p, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[p] = []byte(content)
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		t.folders[dir] = true
	}
}

func (t *fakeTree) get(p string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.files[p]
	return data, ok
}

func (t *fakeTree) List(context.Context) ([]*studiosdk.FileNode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.missing {
		return nil, studiosdk.ErrNotFound
	}
	return t.children(""), nil
}

// children builds the nodes directly below dir, with leading slashes like the studio.
func (t *fakeTree) children(dir string) []*studiosdk.FileNode {
	var nodes []*studiosdk.FileNode
	mime := "text/plain"
	for folder := range t.folders {
		if parentOf(folder) == dir {
			nodes = append(nodes, &studiosdk.FileNode{Path: "/" + folder, Name: path.Base(folder), Children: t.children(folder)})
		}
	}
	for p, data := range t.files {
		if parentOf(p) == dir {
			nodes = append(nodes, &studiosdk.FileNode{Path: "/" + p, Name: path.Base(p), MimeType: &mime, Size: int64(len(data))})
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return nodes
}

func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

func (t *fakeTree) Download(_ context.Context, p string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloads++
	data, ok := t.files[p]
	if !ok {
		return nil, studiosdk.ErrNotFound
	}
	return slices.Clone(data), nil
}

func (t *fakeTree) Upload(_ context.Context, p string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploads++
	t.files[p] = slices.Clone(data)
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		t.folders[dir] = true
	}
	return nil
}

func (t *fakeTree) Delete(_ context.Context, p string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p = strings.TrimSuffix(p, "/")
	t.deletes = append(t.deletes, p)
	if _, ok := t.files[p]; ok {
		delete(t.files, p)
		return nil
	}
	if t.folders[p] {
		for f := range t.files {
			if strings.HasPrefix(f, p+"/") {
				return errors.New("folder not empty")
			}
		}
		delete(t.folders, p)
		return nil
	}
	return studiosdk.ErrNotFound
}

func (t *fakeTree) CreateFolder(_ context.Context, p string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.creates = append(t.creates, p)
	t.folders[p] = true
	return nil
}

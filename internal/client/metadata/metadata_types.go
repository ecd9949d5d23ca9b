package metadata

import (
	"slices"
	"strings"
)

// RecipeEntry tracks one recipe file checked out from a project.
type RecipeEntry struct {
	Instance      string `json:"instance"`
	ProjectKey    string `json:"projectKey"`
	RecipeName    string `json:"recipeName"`
	Path          string `json:"path"`
	VersionNumber int64  `json:"versionNumber"`
	ContentHash   uint32 `json:"contentHash"`
	DataBlobID    string `json:"dataBlobId,omitempty"`

	// Data holds baseline bytes not yet written to a blob. Flush moves it
	// into the blob directory and sets DataBlobID.
	Data []byte `json:"-"`
}

func (e *RecipeEntry) Clone() *RecipeEntry {
	c := *e
	c.Data = slices.Clone(e.Data)
	return &c
}

// SetBaseline records a new baseline and queues its bytes for the blob cache.
func (e *RecipeEntry) SetBaseline(version int64, hash uint32, data []byte) {
	e.VersionNumber = version
	e.ContentHash = hash
	e.DataBlobID = ""
	e.Data = slices.Clone(data)
	if e.Data == nil {
		e.Data = []byte{}
	}
}

// FileEntry is one file or folder below a plugin or library root. Folder
// entries carry a remote path ending in "/" and no content.
type FileEntry struct {
	Instance    string `json:"instance"`
	ID          string `json:"id"`
	Path        string `json:"path"`
	RemotePath  string `json:"remotePath"`
	ContentHash uint32 `json:"contentHash"`
	DataBlobID  string `json:"dataBlobId,omitempty"`

	Data []byte `json:"-"`
}

func (e *FileEntry) IsFolder() bool {
	return strings.HasSuffix(e.RemotePath, "/")
}

func (e *FileEntry) SetBaseline(hash uint32, data []byte) {
	e.ContentHash = hash
	e.DataBlobID = ""
	e.Data = slices.Clone(data)
	if e.Data == nil {
		e.Data = []byte{}
	}
}

// FilesystemEntry tracks a plugin or library tree rooted at Path.
type FilesystemEntry struct {
	Instance string       `json:"instance"`
	ID       string       `json:"id"`
	Path     string       `json:"path"`
	Files    []*FileEntry `json:"files"`
}

func (e *FilesystemEntry) Clone() *FilesystemEntry {
	c := *e
	c.Files = make([]*FileEntry, len(e.Files))
	for i, f := range e.Files {
		fc := *f
		fc.Data = slices.Clone(f.Data)
		c.Files[i] = &fc
	}
	return &c
}

// File returns the entry tracked under remotePath, if any.
func (e *FilesystemEntry) File(remotePath string) *FileEntry {
	for _, f := range e.Files {
		if f.RemotePath == remotePath {
			return f
		}
	}
	return nil
}

// PutFile adds or replaces the entry with the same remote path.
func (e *FilesystemEntry) PutFile(f *FileEntry) {
	for i, existing := range e.Files {
		if existing.RemotePath == f.RemotePath {
			e.Files[i] = f
			return
		}
	}
	e.Files = append(e.Files, f)
}

// RemoveFile drops remotePath and, for folders, everything below it.
func (e *FilesystemEntry) RemoveFile(remotePath string) int {
	removed := 0
	e.Files = slices.DeleteFunc(e.Files, func(f *FileEntry) bool {
		if f.RemotePath == remotePath || (strings.HasSuffix(remotePath, "/") && strings.HasPrefix(f.RemotePath, remotePath)) {
			removed++
			return true
		}
		return false
	})
	return removed
}

// Metadata is the document persisted per module root.
type Metadata struct {
	Recipes   []*RecipeEntry     `json:"recipes"`
	Plugins   []*FilesystemEntry `json:"plugins"`
	Libraries []*FilesystemEntry `json:"libraries"`
}

func (m *Metadata) normalize() {
	if m.Recipes == nil {
		m.Recipes = []*RecipeEntry{}
	}
	if m.Plugins == nil {
		m.Plugins = []*FilesystemEntry{}
	}
	if m.Libraries == nil {
		m.Libraries = []*FilesystemEntry{}
	}
	for _, list := range [][]*FilesystemEntry{m.Plugins, m.Libraries} {
		for _, fse := range list {
			if fse.Files == nil {
				fse.Files = []*FileEntry{}
			}
		}
	}
}

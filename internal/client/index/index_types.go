package index

import (
	"github.com/openmined/studiosync/internal/client/metadata"
)

// Kind tells plugin trees and library trees apart.
type Kind string

const (
	KindPlugin  Kind = "plugin"
	KindLibrary Kind = "library"
)

// Project is a named set of module roots opened in the workspace.
type Project struct {
	Name        string   `json:"name" mapstructure:"name"`
	ModuleRoots []string `json:"module_roots" mapstructure:"module_roots"`
}

// RecipeItem is a tracked recipe file.
type RecipeItem struct {
	Store *metadata.Store
	Entry *metadata.RecipeEntry
	File  string
}

// SyncedFilesystem is a tracked plugin or library tree.
type SyncedFilesystem struct {
	Kind  Kind
	Store *metadata.Store
	Entry *metadata.FilesystemEntry
	Root  string
}

// Put records the entry in the owning store without flushing.
func (f *SyncedFilesystem) Put() {
	switch f.Kind {
	case KindPlugin:
		f.Store.PutPlugin(f.Entry)
	case KindLibrary:
		f.Store.PutLibrary(f.Entry)
	}
}

// Delete drops the entry from the owning store without flushing.
func (f *SyncedFilesystem) Delete() {
	switch f.Kind {
	case KindPlugin:
		f.Store.DeletePlugin(f.Entry.Path)
	case KindLibrary:
		f.Store.DeleteLibrary(f.Entry.Path)
	}
}

// ItemView is a read-only copy of a tracked item handed to readers.
type ItemView struct {
	Kind        string `json:"kind"`
	Instance    string `json:"instance"`
	ID          string `json:"id"`
	Path        string `json:"path"`
	ModuleRoot  string `json:"moduleRoot"`
	Version     int64  `json:"version,omitempty"`
	ContentHash uint32 `json:"contentHash,omitempty"`
	Files       int    `json:"files,omitempty"`
}

const KindRecipe = "recipe"

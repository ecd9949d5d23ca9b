package sync

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Side picks which version wins when a conflict is resolved.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

var ErrInvalidSide = errors.New("invalid conflict side")

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideLocal:
		return SideLocal, nil
	case SideRemote:
		return SideRemote, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

// Conflict records divergent local and remote edits of one item. Both sides
// are left untouched until it is resolved.
type Conflict struct {
	Kind       string `json:"kind"`
	Instance   string `json:"instance"`
	Path       string `json:"path"`
	ProjectKey string `json:"projectKey,omitempty"`
	RecipeName string `json:"recipeName,omitempty"`
	TreeID     string `json:"treeId,omitempty"`
	RemotePath string `json:"remotePath,omitempty"`

	BaseVersion   int64 `json:"baseVersion,omitempty"`
	RemoteVersion int64 `json:"remoteVersion,omitempty"`

	Local  []byte `json:"-"`
	Remote []byte `json:"-"`
	Base   []byte `json:"-"`

	DetectedAt time.Time `json:"detectedAt"`
}

func (c *Conflict) String() string {
	return fmt.Sprintf("%s %s (%s)", c.Kind, c.Path, c.Instance)
}

// LocalPatch is the patch taking the baseline to the local version.
func (c *Conflict) LocalPatch() string {
	return patchText(c.Base, c.Local)
}

// RemotePatch is the patch taking the baseline to the remote version.
func (c *Conflict) RemotePatch() string {
	return patchText(c.Base, c.Remote)
}

func patchText(from, to []byte) string {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(string(from), string(to))
	return dmp.PatchToText(patches)
}

package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceSetup_CreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "state")

	w, err := NewWorkspace(root)
	require.NoError(t, err)

	require.NoError(t, w.Setup())
	t.Cleanup(func() { _ = w.Unlock() })

	assert.DirExists(t, w.Root)
	assert.DirExists(t, w.LogsDir)
	assert.FileExists(t, filepath.Join(root, "studiosync.lock"))
}

func TestWorkspaceLocking_SingleInstance(t *testing.T) {
	root := t.TempDir()

	w1, err := NewWorkspace(root)
	require.NoError(t, err)
	w2, err := NewWorkspace(root)
	require.NoError(t, err)

	require.NoError(t, w1.Lock())

	err = w2.Lock()
	require.ErrorIs(t, err, ErrWorkspaceLocked)

	lockPath := w1.LockPath()
	assert.FileExists(t, lockPath)

	// unlocking a workspace that never held the lock is a no-op
	require.NoError(t, w2.Unlock())
	assert.FileExists(t, lockPath)

	require.NoError(t, w1.Unlock())
	_, statErr := os.Stat(lockPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)

	require.NoError(t, w2.Lock())
	t.Cleanup(func() { _ = w2.Unlock() })
}

func TestNewWorkspace_EmptyPath(t *testing.T) {
	_, err := NewWorkspace("")
	assert.Error(t, err)
}

package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/studiosync/internal/utils"
)

const (
	logsDir  = "logs"
	lockFile = "studiosync.lock"
)

var (
	ErrWorkspaceLocked = errors.New("state dir locked by another studiosync daemon")
)

// Workspace is the daemon's state directory. Metadata stays next to each
// module root; the workspace only holds logs and the instance lock.
type Workspace struct {
	Root    string
	LogsDir string

	flock *flock.Flock
}

func NewWorkspace(stateDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", stateDir, err)
	}

	return &Workspace{
		Root:    root,
		LogsDir: filepath.Join(root, logsDir),
		flock:   flock.New(filepath.Join(root, lockFile)),
	}, nil
}

func (w *Workspace) LockPath() string {
	return w.flock.Path()
}

func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock state dir: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock state dir: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Setup takes the lock and creates the directory layout.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)

	if err := utils.EnsureDir(w.LogsDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.LogsDir, err)
	}

	return nil
}

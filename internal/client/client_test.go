package client

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openmined/studiosync/internal/client/config"
	"github.com/openmined/studiosync/internal/client/index"
	"github.com/openmined/studiosync/internal/client/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmp := t.TempDir()
	cfg := &config.Config{
		StateDir: filepath.Join(tmp, "state"),
		Instances: map[string]*config.InstanceConfig{
			"design": {URL: "http://127.0.0.1:1", APIKey: "key"},
		},
		Projects: []index.Project{
			{Name: "CHURN", ModuleRoots: []string{filepath.Join(tmp, "churn")}},
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestClient_SyncOnceWithNothingTracked(t *testing.T) {
	c, err := New(testConfig(t))
	require.NoError(t, err)

	summary, err := c.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.HasChanges())
}

func TestClient_SyncOnceFailsWhenLocked(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg)
	require.NoError(t, err)

	other, err := workspace.NewWorkspace(cfg.StateDir)
	require.NoError(t, err)
	require.NoError(t, other.Lock())
	t.Cleanup(func() { _ = other.Unlock() })

	_, err = c.SyncOnce(context.Background())
	assert.ErrorIs(t, err, workspace.ErrWorkspaceLocked)
}

func TestClient_Reconfigure(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg)
	require.NoError(t, err)

	next := *cfg
	next.BackgroundSync = true
	next.InitialDelay = 3600
	require.NoError(t, c.Reconfigure(&next))
	t.Cleanup(func() {
		next.BackgroundSync = false
		_ = c.Reconfigure(&next)
	})

	status := c.SyncManager().SchedulerStatus()
	assert.True(t, status.Enabled)
	assert.NotNil(t, status.NextRun)
}

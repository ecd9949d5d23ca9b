package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/studiosync/internal/client/config"
	"github.com/openmined/studiosync/internal/client/localfs"
	"github.com/openmined/studiosync/internal/client/sync"
	"github.com/openmined/studiosync/internal/client/workspace"
	"github.com/openmined/studiosync/internal/studiosdk"
)

// Client owns the sync manager and the studio clients for one state dir.
type Client struct {
	config    *config.Config
	workspace *workspace.Workspace
	registry  *studiosdk.Registry
	sync      *sync.SyncManager
}

func New(cfg *config.Config) (*Client, error) {
	ws, err := workspace.NewWorkspace(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	registry, err := studiosdk.NewRegistryFromConfig(cfg.StudioInstances())
	if err != nil {
		return nil, fmt.Errorf("failed to create studio clients: %w", err)
	}

	mgrConfig, err := managerConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		config:    cfg,
		workspace: ws,
		registry:  registry,
		sync:      sync.NewManager(localfs.NewOsAdapter(), registry, mgrConfig),
	}, nil
}

func (c *Client) SyncManager() *sync.SyncManager {
	return c.sync
}

// Start locks the state dir and runs background sync until ctx is done.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("studiosync client start", "statedir", c.config.StateDir, "instances", c.registry.Instances(), "projects", len(c.config.Projects))

	if err := c.workspace.Setup(); err != nil {
		return fmt.Errorf("failed to setup workspace: %w", err)
	}
	defer c.workspace.Unlock()

	if err := c.sync.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync manager: %w", err)
	}

	<-ctx.Done()
	slog.Info("received interrupt signal, stopping client")

	if err := c.sync.Stop(); err != nil {
		slog.Error("sync manager stop", "error", err)
	}
	slog.Info("studiosync client stop")
	return nil
}

// SyncOnce runs one pass under the state dir lock. It fails fast when a
// daemon already holds the lock.
func (c *Client) SyncOnce(ctx context.Context) (*sync.Summary, error) {
	if err := c.workspace.Lock(); err != nil {
		return nil, err
	}
	defer c.workspace.Unlock()

	return c.sync.RunOnce(ctx)
}

// Reconfigure applies a changed config file to the running manager. Instance
// and control plane changes need a restart.
func (c *Client) Reconfigure(cfg *config.Config) error {
	mgrConfig, err := managerConfig(cfg)
	if err != nil {
		return err
	}
	c.sync.Reconfigure(mgrConfig)
	c.config = cfg
	return nil
}

func managerConfig(cfg *config.Config) (sync.ManagerConfig, error) {
	projects, err := cfg.SyncProjects()
	if err != nil {
		return sync.ManagerConfig{}, fmt.Errorf("failed to expand module roots: %w", err)
	}
	return sync.ManagerConfig{
		Projects: projects,
		Scheduler: sync.SchedulerConfig{
			Enabled:         cfg.BackgroundSync,
			InitialDelay:    cfg.InitialDelayDuration(),
			PollingInterval: cfg.PollingDuration(),
		},
	}, nil
}

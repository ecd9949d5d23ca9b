package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/studiosync/internal/client/config"
	"github.com/openmined/studiosync/internal/client/controlplane"
	"golang.org/x/sync/errgroup"
)

type ClientDaemon struct {
	client *Client
	cps    *ControlPlaneServer
}

func NewClientDaemon(cfg *config.Config) (*ClientDaemon, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}

	cps, err := NewControlPlaneServer(controlplane.CPServerConfig{
		Addr:      cfg.ControlPlane.Addr,
		AuthToken: cfg.ControlPlane.Token,
	}, c.SyncManager())
	if err != nil {
		return nil, err
	}

	return &ClientDaemon{
		client: c,
		cps:    cps,
	}, nil
}

// Reconfigure is called when the config file changes on disk.
func (d *ClientDaemon) Reconfigure(cfg *config.Config) error {
	return d.client.Reconfigure(cfg)
}

func (d *ClientDaemon) Start(ctx context.Context) error {
	slog.Info("client daemon start")

	// Create errgroup with derived context
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := d.client.Start(egCtx); err != nil {
			return fmt.Errorf("failed to start client: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		if err := d.cps.Start(egCtx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
		return nil
	})

	// Launch goroutine to handle shutdown on context cancellation
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("stopping daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return d.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("client daemon failure", "error", err)
		return err
	}

	slog.Info("client daemon stopped")
	return nil
}

func (d *ClientDaemon) Stop(ctx context.Context) error {
	if err := d.cps.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop control plane: %w", err)
	}
	return nil
}

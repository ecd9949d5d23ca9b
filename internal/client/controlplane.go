package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/openmined/studiosync/internal/client/controlplane"
	"github.com/openmined/studiosync/internal/client/handlers"
	"github.com/openmined/studiosync/internal/client/middleware"
	"github.com/openmined/studiosync/internal/utils"
)

type ControlPlaneServer struct {
	config controlplane.CPServerConfig
	server *http.Server
}

func NewControlPlaneServer(config controlplane.CPServerConfig, backend handlers.SyncBackend) (*ControlPlaneServer, error) {
	if _, err := AddrToURL(config.Addr); err != nil {
		return nil, err
	}
	config = config.WithDefaults()

	routes := SetupRoutes(backend, &RouteConfig{
		Auth: middleware.TokenAuthConfig{
			Token: config.AuthToken,
		},
		RateLimit:       config.RateLimit,
		RateLimitPeriod: config.RateLimitPeriod,
	})

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// Timeouts to prevent slow client attacks. No write timeout, event
		// streams stay open.
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Connection control
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	return &ControlPlaneServer{
		config: config,
		server: httpServer,
	}, nil
}

func (s *ControlPlaneServer) Start(ctx context.Context) error {
	url, _ := AddrToURL(s.config.Addr)
	slog.Info("control plane start", "addr", url, "token", utils.MaskSecret(s.config.AuthToken))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (s *ControlPlaneServer) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}

// AddrToURL turns a listen address into the base url clients use.
func AddrToURL(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid control plane address %q: %w", addr, err)
	}
	if port == "" {
		return "", fmt.Errorf("invalid control plane address %q: missing port", addr)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// Package controlplane serves a local HTTP API over a workspace: status,
// the snapshot history graph, branches and on-demand sync.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmined/syncvault/internal/config"
)

type Server struct {
	config *config.ControlPlaneConfig
	server *http.Server
}

func NewServer(cfg *config.ControlPlaneConfig, svc Service) *Server {
	routes := SetupRoutes(svc, &RouteConfig{AuthToken: cfg.AuthToken})

	return &Server{
		config: cfg,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           routes,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      10 * time.Minute,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}
}

// Start serves until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("control plane start", "addr", fmt.Sprintf("http://%s", s.config.Addr), "auth", s.config.AuthToken != "")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control plane: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}

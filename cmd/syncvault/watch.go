package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmined/syncvault/internal/controlplane"
	"github.com/openmined/syncvault/internal/vfs"
	"github.com/openmined/syncvault/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync on file changes and on a timer until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			defer slog.Info("Bye!")
			return s.runner().Run(cmd.Context())
		},
	}

	cmd.Flags().Duration("interval", 0, "time between periodic syncs (default 30s)")
	return cmd
}

func newServeCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local control plane, syncing in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			server := controlplane.NewServer(&s.cfg.ControlPlane, s.eng)
			eg, ctx := errgroup.WithContext(cmd.Context())

			eg.Go(func() error {
				return server.Start(ctx)
			})
			eg.Go(func() error {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Stop(stopCtx)
			})
			if !noWatch {
				eg.Go(func() error {
					return s.runner().Run(ctx)
				})
			}

			defer slog.Info("Bye!")
			return eg.Wait()
		},
	}

	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:7938)")
	cmd.Flags().String("token", "", "bearer token required by the API")
	cmd.Flags().Duration("interval", 0, "time between periodic syncs (default 30s)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "only sync on request")
	return cmd
}

// runner syncs s on file changes and every sync interval.
func (s *session) runner() *watch.Runner {
	w := watch.NewWatcher(s.ws.Root)
	w.FilterPaths(watch.WorkspaceFilter(s.ws, vfs.LoadIgnoreList(s.ws.FS(), s.cfg.Ignore...)))
	return watch.NewRunner(s.eng, w, s.cfg.SyncInterval)
}

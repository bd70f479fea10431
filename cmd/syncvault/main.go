package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syncvault/internal/utils"
	"github.com/openmined/syncvault/internal/version"
	"github.com/openmined/syncvault/internal/workspace"
	"github.com/spf13/cobra"
)

const logTimeFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	logLevel      = new(slog.LevelVar)
	stdoutHandler slog.Handler
	logFile       *os.File

	// attribute keys masked in every log sink
	secretLogKeys = []string{"key", "auth_token", "token", "git_token", "secret_access_key"}
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "syncvault",
		Short:        "End-to-end encrypted workspace sync",
		Version:      version.Detailed(),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				logLevel.Set(slog.LevelDebug)
			}
		},
	}

	cmd.PersistentFlags().StringP("root", "r", ".", "workspace root directory")
	cmd.PersistentFlags().StringP("config", "c", "", "config file (default <root>/.syncvault/config.yaml)")
	cmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	cmd.AddCommand(
		newInitCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newHistoryCmd(),
		newBranchCmd(),
		newCheckoutCmd(),
		newWatchCmd(),
		newServeCmd(),
		newTriggerCmd(),
		newVersionCmd(),
	)
	return cmd
}

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	logLevel.Set(slog.LevelInfo)
	stdoutHandler = tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel,
		TimeFormat: logTimeFormat,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(utils.NewLogTee(stdoutHandler).Redact(secretLogKeys...)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

// attachLogFile tees the default logger into the workspace log. It is a
// no-op before main has set up stdout logging, which keeps tests quiet.
func attachLogFile(ws *workspace.Workspace) error {
	if stdoutHandler == nil || logFile != nil {
		return nil
	}
	if err := utils.EnsureDir(ws.LogsDir); err != nil {
		return err
	}

	file, err := os.OpenFile(ws.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logFile = file

	fileHandler := slog.NewTextHandler(utils.NewLogInterceptor(file), &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// the interceptor stamps each line
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(utils.NewLogTee(stdoutHandler, fileHandler).Redact(secretLogKeys...)))
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openmined/syncvault/internal/config"
	"github.com/openmined/syncvault/internal/engine"
	"github.com/openmined/syncvault/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "SYNCVAULT"

var ErrNotInitialized = errors.New("workspace not initialized")

// keys that may be set from the environment alone
var envKeys = []string{
	"key",
	"environment_id",
	"branch",
	"transport",
	"workers",
	"sync_interval",
	"dir.path",
	"git.url",
	"git.username",
	"git.token",
	"s3.bucket",
	"s3.region",
	"s3.endpoint",
	"s3.prefix",
	"s3.access_key",
	"s3.secret_key",
	"control_plane.addr",
	"control_plane.auth_token",
}

// flag name -> config key, bound when the command defines the flag
var flagKeys = map[string]string{
	"interval": "sync_interval",
	"addr":     "control_plane.addr",
	"token":    "control_plane.auth_token",
}

func loadWorkspace(cmd *cobra.Command) (*workspace.Workspace, error) {
	root, _ := cmd.Flags().GetString("root")
	return workspace.NewWorkspace(root)
}

func configPath(cmd *cobra.Command, ws *workspace.Workspace) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	return ws.ConfigPath()
}

// loadConfig merges the config file, SYNCVAULT_* variables and the command
// flags, in increasing order of precedence.
func loadConfig(cmd *cobra.Command, ws *workspace.Workspace) (*config.Config, error) {
	v := viper.New()
	path := configPath(cmd, ws)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	found := true
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", path, err)
		}
		found = false
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		cfg.Path = path
	}
	if !found && cfg.Key == "" {
		return nil, fmt.Errorf("%w: %s (run 'syncvault init')", ErrNotInitialized, ws.Root)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type session struct {
	ws  *workspace.Workspace
	cfg *config.Config
	eng *engine.Engine
}

// loadSession reads the workspace config without opening an engine.
func loadSession(cmd *cobra.Command) (*session, error) {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd, ws)
	if err != nil {
		return nil, err
	}
	if err := attachLogFile(ws); err != nil {
		slog.Warn("log file", "error", err)
	}
	return &session{ws: ws, cfg: cfg}, nil
}

func (s *session) open(ctx context.Context, opts ...engine.Option) error {
	eng, err := engine.Open(ctx, s.ws, s.cfg, opts...)
	if err != nil {
		return err
	}
	s.eng = eng
	return nil
}

// openSession loads the workspace config and opens an engine on it.
func openSession(cmd *cobra.Command, opts ...engine.Option) (*session, error) {
	s, err := loadSession(cmd)
	if err != nil {
		return nil, err
	}
	if err := s.open(cmd.Context(), opts...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	if s.eng == nil {
		return
	}
	if err := s.eng.Close(); err != nil {
		slog.Warn("engine close", "error", err)
	}
}

package main

import (
	"fmt"

	"github.com/openmined/syncvault/internal/config"
	"github.com/openmined/syncvault/internal/crypto"
	"github.com/openmined/syncvault/internal/utils"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		force bool
		cfg   = config.Config{}
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		Long: `Initialize a workspace at --root and write its config.

Without --key a new key is generated. Every machine syncing the same
remote needs the same key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(cmd)
			if err != nil {
				return err
			}
			if err := ws.CheckRoot(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			path := configPath(cmd, ws)
			if utils.FileExists(path) && !force {
				fmt.Fprintln(out, "Workspace already initialized")
				fmt.Fprintf(out, "Config Path: %s\n", green.Render(path))
				return nil
			}

			generated := false
			if cfg.Key == "" {
				if cfg.Key, err = crypto.GenerateKey(); err != nil {
					return err
				}
				generated = true
			}
			cfg.Path = path

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := ws.Setup(); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Fprintln(out, "Workspace initialized")
			fmt.Fprintf(out, "Config Path: %s\n", green.Render(cfg.Path))
			fmt.Fprintf(out, "Root:        %s\n", cyan.Render(ws.Root))
			fmt.Fprintf(out, "Transport:   %s\n", cyan.Render(cfg.Transport))
			fmt.Fprintf(out, "Branch:      %s\n", cyan.Render(cfg.Branch))
			if generated {
				fmt.Fprintf(out, "\n%s use this key on your other machines:\n%s\n", yellow.Render("NOTE"), bold.Render(cfg.Key))
			}
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&cfg.Transport, "transport", "t", config.TransportDir, "transport: dir, git or s3")
	cmd.Flags().StringVarP(&cfg.Key, "key", "k", "", "hex encoded 256-bit key (generated when empty)")
	cmd.Flags().StringVarP(&cfg.Branch, "branch", "b", config.DefaultBranch, "branch to sync")
	cmd.Flags().StringSliceVar(&cfg.Include, "include", nil, "glob of paths to sync (repeatable)")
	cmd.Flags().StringSliceVar(&cfg.Ignore, "ignore", nil, "gitignore pattern to skip (repeatable)")
	cmd.Flags().StringVar(&cfg.Dir.Path, "dir", "", "remote directory for the dir transport")
	cmd.Flags().StringVar(&cfg.Git.URL, "git-url", "", "repository url for the git transport")
	cmd.Flags().StringVar(&cfg.Git.Username, "git-username", "", "git basic auth username")
	cmd.Flags().StringVar(&cfg.Git.Token, "git-token", "", "git basic auth token")
	cmd.Flags().StringVar(&cfg.S3.Bucket, "s3-bucket", "", "bucket for the s3 transport")
	cmd.Flags().StringVar(&cfg.S3.Region, "s3-region", "", "s3 region")
	cmd.Flags().StringVar(&cfg.S3.Endpoint, "s3-endpoint", "", "s3 compatible endpoint url")
	cmd.Flags().StringVar(&cfg.S3.Prefix, "s3-prefix", "", "key prefix inside the bucket")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")

	return cmd
}

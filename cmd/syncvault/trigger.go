package main

import (
	"github.com/openmined/syncvault/internal/controlplane"
	"github.com/spf13/cobra"
)

func newTriggerCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask a running 'syncvault serve' to sync now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}

			res, err := controlplane.NewClient(&s.cfg.ControlPlane).Sync(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().String("addr", "", "control plane address (default from config)")
	cmd.Flags().String("token", "", "control plane bearer token (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

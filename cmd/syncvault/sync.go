package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syncvault/internal/engine"
	"github.com/openmined/syncvault/internal/resolve"
	"github.com/openmined/syncvault/internal/workspace"
	"github.com/spf13/cobra"
)

var errNoTerminal = errors.New("interactive resolution needs a terminal")

func newSyncCmd() *cobra.Command {
	var interactive, asJSON bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull, merge and publish the workspace once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var opts []engine.Option
			if interactive {
				if !isatty.IsTerminal(os.Stdin.Fd()) {
					return errNoTerminal
				}
				opts = append(opts, engine.WithStrategy(resolve.NewInteractive(newConflictPrompter(s))))
			}
			if err := s.open(cmd.Context(), opts...); err != nil {
				return err
			}

			res, err := s.eng.Sync(cmd.Context())
			if res != nil {
				if asJSON {
					if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
						return err
					}
				} else {
					printResult(cmd.OutOrStdout(), res)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask how to resolve conflicts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func printResult(w io.Writer, res *engine.Result) {
	switch {
	case res.Error != "":
		fmt.Fprintf(w, "%s %s\n", red.Render("Sync failed:"), res.Error)
	case res.Aborted:
		fmt.Fprintln(w, yellow.Render("Sync aborted, nothing was committed"))
		return
	case !res.Changed():
		fmt.Fprintf(w, "%s on %s\n", green.Render("Up to date"), cyan.Render(res.Branch))
		return
	default:
		fmt.Fprintf(w, "%s %s @ %s\n", green.Render("Synced"), cyan.Render(res.Branch), shortID(res.Head))
	}

	counts := []struct {
		label string
		n     int
	}{
		{"Uploaded", res.Uploaded},
		{"Downloaded", res.Materialized},
		{"Deleted", res.Deleted},
		{"Kept both", res.KeptBoth},
		{"Quarantined", res.Quarantined},
	}
	for _, c := range counts {
		if c.n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.label, c.n)
		}
	}
	if len(res.Quarantine) > 0 {
		fmt.Fprintf(w, "  %s\n", yellow.Render("Local edits preserved under "+workspace.MetaDir+"/ in the workspace:"))
		for _, p := range res.Quarantine {
			fmt.Fprintf(w, "    %s %s\n", gray.Render("moved to"), p)
		}
	}
	if res.FastForward {
		fmt.Fprintln(w, gray.Render("  fast-forward"))
	}
	if res.Committed && !res.Pushed {
		fmt.Fprintln(w, yellow.Render("  committed locally, not yet published"))
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

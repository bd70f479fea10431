package main

import (
	"fmt"
	"io"

	"github.com/openmined/syncvault/internal/engine"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the branch and unsynced local changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.eng.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func printStatus(w io.Writer, st *engine.Status) {
	fmt.Fprintf(w, "Workspace: %s\n", cyan.Render(st.Root))
	fmt.Fprintf(w, "Branch:    %s (%s)\n", cyan.Render(st.Branch), st.Transport)
	if st.Synced == "" {
		fmt.Fprintf(w, "Synced:    %s\n", gray.Render("never"))
	} else {
		fmt.Fprintf(w, "Synced:    %s\n", shortID(st.Synced))
	}
	if st.Head != "" && st.Head != st.Synced {
		fmt.Fprintf(w, "Head:      %s %s\n", shortID(st.Head), yellow.Render("(ahead of workspace)"))
	}
	if st.LastSync != nil {
		fmt.Fprintf(w, "Last sync: %s\n", ago(st.LastSync.StartedAt.UnixMilli()))
	}

	if len(st.Pending) == 0 {
		fmt.Fprintln(w, green.Render("\nNothing to sync"))
		return
	}
	fmt.Fprintf(w, "\n%d pending change(s):\n", len(st.Pending))
	for _, c := range st.Pending {
		style := green
		switch c.Op {
		case engine.OpModified:
			style = yellow
		case engine.OpDeleted:
			style = red
		}
		fmt.Fprintf(w, "  %s %s\n", style.Render(fmt.Sprintf("%-9s", c.Op)), c.Path)
	}
}

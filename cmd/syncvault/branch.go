package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/openmined/syncvault/internal/reconcile"
	"github.com/spf13/cobra"
)

func newBranchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "branch [name]",
		Short: "List branches, or create one at the current snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				if _, err := s.eng.Checkout(cmd.Context(), args[0], true); err != nil {
					return err
				}
				fmt.Fprintf(out, "Created branch %s\n", cyan.Render(args[0]))
				return nil
			}

			current, err := s.eng.Index().ReadHead()
			if err != nil {
				return err
			}
			branches, err := s.eng.Branches()
			if err != nil {
				return err
			}
			printBranches(out, current, branches)
			return nil
		},
	}
}

func printBranches(w io.Writer, current string, branches map[string]string) {
	names := make([]string, 0, len(branches)+1)
	for name := range branches {
		names = append(names, name)
	}
	if _, ok := branches[current]; !ok {
		// checked out but never published
		names = append(names, current)
	}
	sort.Strings(names)

	for _, name := range names {
		id := gray.Render("(no snapshot)")
		if head, ok := branches[name]; ok {
			id = gray.Render(shortID(head))
		}
		if name == current {
			fmt.Fprintf(w, "%s %s %s\n", green.Render("*"), green.Render(name), id)
		} else {
			fmt.Fprintf(w, "  %s %s\n", name, id)
		}
	}
}

func newCheckoutCmd() *cobra.Command {
	var create bool

	cmd := &cobra.Command{
		Use:   "checkout <branch>",
		Short: "Switch the workspace to another branch",
		Long: `Switch the workspace to another branch.

The workspace must have no unsynced changes. Files are replaced to match
the head of the branch. With -b the branch is created at the current
snapshot and no file changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.eng.Checkout(cmd.Context(), args[0], create)
			if err != nil {
				return err
			}
			printCheckout(cmd.OutOrStdout(), args[0], report)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&create, "create", "b", false, "create the branch first")
	return cmd
}

func printCheckout(w io.Writer, branch string, report *reconcile.Report) {
	fmt.Fprintf(w, "Switched to %s\n", cyan.Render(branch))
	if report == nil {
		return
	}
	if n := len(report.Materialized); n > 0 {
		fmt.Fprintf(w, "  %-9s %d\n", "written", n)
	}
	if n := len(report.Deleted); n > 0 {
		fmt.Fprintf(w, "  %-9s %d\n", "removed", n)
	}
}

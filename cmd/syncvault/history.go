package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/openmined/syncvault/internal/controlplane"
	"github.com/openmined/syncvault/internal/index"
	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		branch string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"log"},
		Short:   "Show the snapshot history, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			g, err := s.eng.History(cmd.Context())
			if err != nil {
				return err
			}
			branches, err := s.eng.Branches()
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), &controlplane.HistoryResponse{
					Nodes:    g.Ordered(),
					Edges:    g.Edges(),
					Roots:    g.Roots(),
					Heads:    g.Heads(),
					Branches: branches,
				})
			}

			nodes := g.Ordered()
			if branch != "" {
				head, ok := branches[branch]
				if !ok {
					return fmt.Errorf("unknown branch %q", branch)
				}
				nodes = reachable(g, head)
			}

			synced := ""
			if wsIndex, err := s.eng.Index().LoadWorkspaceIndex(); err != nil {
				return err
			} else if wsIndex != nil {
				synced = wsIndex.ID
			}

			printHistory(cmd.OutOrStdout(), nodes, branches, synced, limit)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most n snapshots (0 for all)")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "only snapshots reachable from this branch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the graph as JSON")
	return cmd
}

// reachable returns the ancestors of head in creation order.
func reachable(g *index.Graph, head string) []snapshot.Header {
	ancestors := g.Ancestors(head)
	var out []snapshot.Header
	for _, h := range g.Ordered() {
		if ancestors.Contains(h.ID) {
			out = append(out, h)
		}
	}
	return out
}

func printHistory(w io.Writer, nodes []snapshot.Header, branches map[string]string, synced string, limit int) {
	labels := make(map[string][]string)
	for name, id := range branches {
		labels[id] = append(labels[id], name)
	}

	if len(nodes) == 0 {
		fmt.Fprintln(w, gray.Render("No snapshots yet"))
		return
	}

	shown := 0
	for i := len(nodes) - 1; i >= 0; i-- {
		if limit > 0 && shown == limit {
			fmt.Fprintln(w, gray.Render(fmt.Sprintf("... %d older", i+1)))
			break
		}
		h := nodes[i]
		shown++

		marker := " "
		if h.ID == synced {
			marker = green.Render("*")
		}

		line := fmt.Sprintf("%s %s", marker, cyan.Render(shortID(h.ID)))
		if names := labels[h.ID]; len(names) > 0 {
			sort.Strings(names)
			line += " " + yellow.Render("("+strings.Join(names, ", ")+")")
		}
		line += fmt.Sprintf(" %d files %s %s", h.FileCount, lightGray.Render(h.EnvironmentID), gray.Render(ago(h.CreatedAt)))
		if len(h.ParentIDs) > 1 {
			parents := make([]string, len(h.ParentIDs))
			for j, p := range h.ParentIDs {
				parents[j] = shortID(p)
			}
			line += gray.Render(" merge " + strings.Join(parents, " + "))
		}
		fmt.Fprintln(w, line)
	}
}

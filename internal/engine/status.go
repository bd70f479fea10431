package engine

import (
	"context"
	"sort"

	"github.com/openmined/syncvault/internal/index"
	"github.com/openmined/syncvault/internal/snapshot"
)

type ChangeOp string

const (
	OpAdded    ChangeOp = "added"
	OpModified ChangeOp = "modified"
	OpDeleted  ChangeOp = "deleted"
)

// Change is a local edit not yet synced.
type Change struct {
	Path string   `json:"path"`
	Op   ChangeOp `json:"op"`
}

type Status struct {
	Root      string   `json:"root"`
	Branch    string   `json:"branch"`
	Head      string   `json:"head,omitempty"`
	Synced    string   `json:"synced,omitempty"`
	Branches  []string `json:"branches"`
	Transport string   `json:"transport"`
	Pending   []Change `json:"pending"`
	Running   bool     `json:"running"`
	LastSync  *Result  `json:"lastSync,omitempty"`
}

// Status reports the branch, the local head and the edits a sync would
// pick up. It reads the local mirror only.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	branch, err := e.index.ReadHead()
	if err != nil {
		return nil, err
	}
	branches, err := e.index.ListBranches()
	if err != nil {
		return nil, err
	}
	head, _, err := e.index.ReadRef(branch)
	if err != nil {
		return nil, err
	}

	baseline, err := e.index.LoadWorkspaceIndex()
	if err != nil {
		return nil, err
	}
	local, err := e.scan(ctx, baseline)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Root:      e.ws.Root,
		Branch:    branch,
		Head:      head,
		Branches:  branches,
		Transport: e.transport.Name(),
		Pending:   Pending(baseline, local),
		Running:   e.Running(),
		LastSync:  e.LastResult(),
	}
	if baseline != nil {
		st.Synced = baseline.ID
	}
	if st.Branches == nil {
		st.Branches = []string{}
	}
	return st, nil
}

// Pending lists the paths whose live state differs between baseline and
// local, sorted by path.
func Pending(baseline, local *snapshot.Snapshot) []Change {
	before, after := baseline.Index(), local.Index()
	out := []Change{}

	for p, a := range after {
		b, ok := before[p]
		switch {
		case a.Deleted && ok && b.Live():
			out = append(out, Change{Path: p, Op: OpDeleted})
		case a.Deleted:
		case !ok || b.Deleted:
			out = append(out, Change{Path: p, Op: OpAdded})
		case a.Hash != b.Hash:
			out = append(out, Change{Path: p, Op: OpModified})
		}
	}
	for p, b := range before {
		if _, ok := after[p]; !ok && b.Live() {
			out = append(out, Change{Path: p, Op: OpDeleted})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// History returns the snapshot DAG of every known branch.
func (e *Engine) History(ctx context.Context) (*index.Graph, error) {
	return e.index.Graph(ctx)
}

// Branches maps every branch to its head snapshot id.
func (e *Engine) Branches() (map[string]string, error) {
	names, err := e.index.ListBranches()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		id, ok, err := e.index.ReadRef(name)
		if err != nil {
			return nil, err
		}
		if ok {
			out[name] = id
		}
	}
	return out, nil
}

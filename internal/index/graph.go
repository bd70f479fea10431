package index

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/syncvault/internal/snapshot"
)

// Edge points from a parent snapshot to a child derived from it.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the snapshot history as an explicit DAG. It is built once from
// a set of headers and is read-only afterwards.
type Graph struct {
	nodes    map[string]snapshot.Header
	children map[string][]string
	ordered  []snapshot.Header
	roots    []string
	heads    []string
}

// NewGraph builds the DAG. Parent ids that are not among headers are
// ignored, so a snapshot whose parents are all unknown is a root.
func NewGraph(headers []snapshot.Header) *Graph {
	g := &Graph{
		nodes:    make(map[string]snapshot.Header, len(headers)),
		children: make(map[string][]string, len(headers)),
	}
	for _, h := range headers {
		g.nodes[h.ID] = h
	}

	g.ordered = make([]snapshot.Header, 0, len(g.nodes))
	for _, h := range g.nodes {
		g.ordered = append(g.ordered, h)
	}
	sort.Slice(g.ordered, func(i, j int) bool {
		if g.ordered[i].CreatedAt != g.ordered[j].CreatedAt {
			return g.ordered[i].CreatedAt < g.ordered[j].CreatedAt
		}
		return g.ordered[i].ID < g.ordered[j].ID
	})

	for _, h := range g.ordered {
		known := 0
		for _, p := range h.ParentIDs {
			if _, ok := g.nodes[p]; ok {
				g.children[p] = append(g.children[p], h.ID)
				known++
			}
		}
		if known == 0 {
			g.roots = append(g.roots, h.ID)
		}
	}
	for _, h := range g.ordered {
		if len(g.children[h.ID]) == 0 {
			g.heads = append(g.heads, h.ID)
		}
	}
	return g
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Node(id string) (snapshot.Header, bool) {
	h, ok := g.nodes[id]
	return h, ok
}

// Ordered returns every node by creation time, oldest first.
func (g *Graph) Ordered() []snapshot.Header {
	return g.ordered
}

// Children returns the ids derived directly from id.
func (g *Graph) Children(id string) []string {
	return g.children[id]
}

// Roots are nodes without a known parent.
func (g *Graph) Roots() []string {
	return g.roots
}

// Heads are nodes without children.
func (g *Graph) Heads() []string {
	return g.heads
}

// Edges lists every parent to child link, in node order.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, h := range g.ordered {
		for _, c := range g.children[h.ID] {
			edges = append(edges, Edge{From: h.ID, To: c})
		}
	}
	return edges
}

// Ancestors returns id and everything reachable through its parents.
func (g *Graph) Ancestors(id string) mapset.Set[string] {
	seen := mapset.NewThreadUnsafeSet[string]()
	if _, ok := g.nodes[id]; !ok {
		return seen
	}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !seen.Add(cur) {
			continue
		}
		for _, p := range g.nodes[cur].ParentIDs {
			if _, ok := g.nodes[p]; ok {
				queue = append(queue, p)
			}
		}
	}
	return seen
}

// IsAncestor reports whether a is b or one of b's ancestors.
func (g *Graph) IsAncestor(a, b string) bool {
	return g.Ancestors(b).Contains(a)
}

// MergeBase returns the newest common ancestor of a and b.
func (g *Graph) MergeBase(a, b string) (string, bool) {
	common := g.Ancestors(a).Intersect(g.Ancestors(b))
	for i := len(g.ordered) - 1; i >= 0; i-- {
		if common.Contains(g.ordered[i].ID) {
			return g.ordered[i].ID, true
		}
	}
	return "", false
}

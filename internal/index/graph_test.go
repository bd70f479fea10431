package index

import (
	"testing"

	"github.com/openmined/syncvault/internal/snapshot"
	"github.com/stretchr/testify/assert"
)

// r -> a -> c -> m
//   \-> b -----/
func testGraph() *Graph {
	return NewGraph([]snapshot.Header{
		{ID: "m", CreatedAt: 50, ParentIDs: []string{"c", "b"}},
		{ID: "r", CreatedAt: 10, ParentIDs: []string{}},
		{ID: "a", CreatedAt: 20, ParentIDs: []string{"r"}},
		{ID: "b", CreatedAt: 30, ParentIDs: []string{"r"}},
		{ID: "c", CreatedAt: 40, ParentIDs: []string{"a"}},
		{ID: "orphan", CreatedAt: 45, ParentIDs: []string{"pruned"}},
	})
}

func TestGraph_Structure(t *testing.T) {
	g := testGraph()

	assert.Equal(t, 6, g.Len())
	assert.Equal(t, []string{"r", "orphan"}, g.Roots())
	assert.Equal(t, []string{"orphan", "m"}, g.Heads())
	assert.Equal(t, []string{"a", "b"}, g.Children("r"))

	var order []string
	for _, h := range g.Ordered() {
		order = append(order, h.ID)
	}
	assert.Equal(t, []string{"r", "a", "b", "c", "orphan", "m"}, order)

	assert.Equal(t, []Edge{
		{From: "r", To: "a"},
		{From: "r", To: "b"},
		{From: "a", To: "c"},
		{From: "b", To: "m"},
		{From: "c", To: "m"},
	}, g.Edges())
}

func TestGraph_Ancestry(t *testing.T) {
	g := testGraph()

	assert.True(t, g.IsAncestor("r", "m"))
	assert.True(t, g.IsAncestor("b", "m"))
	assert.True(t, g.IsAncestor("m", "m"))
	assert.False(t, g.IsAncestor("m", "r"))
	assert.False(t, g.IsAncestor("b", "c"))
	assert.False(t, g.IsAncestor("r", "missing"))

	base, ok := g.MergeBase("c", "b")
	assert.True(t, ok)
	assert.Equal(t, "r", base)

	base, ok = g.MergeBase("m", "c")
	assert.True(t, ok)
	assert.Equal(t, "c", base)

	_, ok = g.MergeBase("orphan", "m")
	assert.False(t, ok)
}

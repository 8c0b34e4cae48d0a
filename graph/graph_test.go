package graph

import (
	"testing"

	"github.com/akmonengine/bedrock/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_InsertAndQuery(t *testing.T) {
	g := New()

	a := g.InsertNode(registry.Entity(1), true)
	b := g.InsertNode(registry.Entity(2), true)
	e := g.InsertEdge(registry.Entity(10), a, b)

	assert.Equal(t, registry.Entity(1), g.NodeEntity(a))
	assert.Equal(t, registry.Entity(10), g.EdgeEntity(e))

	na, nb := g.EdgeNodes(e)
	assert.Equal(t, a, na)
	assert.Equal(t, b, nb)

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
}

func TestGraph_RemoveNodeRemovesIncidentEdges(t *testing.T) {
	g := New()
	a := g.InsertNode(registry.Entity(1), true)
	b := g.InsertNode(registry.Entity(2), true)
	c := g.InsertNode(registry.Entity(3), true)
	g.InsertEdge(registry.Entity(10), a, b)
	g.InsertEdge(registry.Entity(11), b, c)

	g.RemoveNode(b)

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
	// No dangling adjacency on the survivors
	assert.Empty(t, g.IncidentEdges(a))
	assert.Empty(t, g.IncidentEdges(c))
}

func TestGraph_IndicesAreStableAcrossRemoval(t *testing.T) {
	g := New()
	a := g.InsertNode(registry.Entity(1), true)
	b := g.InsertNode(registry.Entity(2), true)
	c := g.InsertNode(registry.Entity(3), true)

	g.RemoveNode(b)

	// Tombstoning: surviving indices stay valid
	assert.Equal(t, registry.Entity(1), g.NodeEntity(a))
	assert.Equal(t, registry.Entity(3), g.NodeEntity(c))

	// The freed slot is recycled
	d := g.InsertNode(registry.Entity(4), true)
	assert.Equal(t, b, d)
}

func TestGraph_RemoveUnknownPanics(t *testing.T) {
	g := New()
	assert.Panics(t, func() { g.RemoveNode(NodeIndex(3)) })
	assert.Panics(t, func() { g.RemoveEdge(EdgeIndex(3)) })

	a := g.InsertNode(registry.Entity(1), true)
	g.RemoveNode(a)
	assert.Panics(t, func() { g.RemoveNode(a) })
}

func TestGraph_EdgeBetweenUnknownNodesPanics(t *testing.T) {
	g := New()
	a := g.InsertNode(registry.Entity(1), true)
	assert.Panics(t, func() { g.InsertEdge(registry.Entity(10), a, NodeIndex(42)) })
}

func TestGraph_IsSingleConnectedComponent(t *testing.T) {
	g := New()
	assert.True(t, g.IsSingleConnectedComponent(), "empty graph counts as single")

	a := g.InsertNode(registry.Entity(1), true)
	b := g.InsertNode(registry.Entity(2), true)
	assert.False(t, g.IsSingleConnectedComponent())

	e := g.InsertEdge(registry.Entity(10), a, b)
	assert.True(t, g.IsSingleConnectedComponent())

	g.RemoveEdge(e)
	assert.False(t, g.IsSingleConnectedComponent())
}

func TestGraph_ConnectedComponents(t *testing.T) {
	g := New()

	a := g.InsertNode(registry.Entity(1), true)
	b := g.InsertNode(registry.Entity(2), true)
	c := g.InsertNode(registry.Entity(3), true)
	d := g.InsertNode(registry.Entity(4), true)
	g.InsertEdge(registry.Entity(10), a, b)
	g.InsertEdge(registry.Entity(11), c, d)

	var components []Component
	g.ConnectedComponents(func(comp Component) { components = append(components, comp) })

	require.Len(t, components, 2)
	assert.Len(t, components[0].Nodes, 2)
	assert.Len(t, components[0].Edges, 1)
	assert.Len(t, components[1].Nodes, 2)
	assert.Len(t, components[1].Edges, 1)
}

func TestGraph_NonConnectingNodeBridgesNothing(t *testing.T) {
	g := New()

	// Two dynamic groups resting on the same static body: the static
	// node must not join them into one component.
	a := g.InsertNode(registry.Entity(1), true)
	b := g.InsertNode(registry.Entity(2), true)
	ground := g.InsertNode(registry.Entity(3), false)
	g.InsertEdge(registry.Entity(10), a, ground)
	g.InsertEdge(registry.Entity(11), b, ground)

	var components []Component
	g.ConnectedComponents(func(comp Component) { components = append(components, comp) })
	require.Len(t, components, 2)

	// The static node appears in both components
	for _, comp := range components {
		found := false
		for _, n := range comp.Nodes {
			if g.NodeEntity(n) == registry.Entity(3) {
				found = true
			}
		}
		assert.True(t, found, "static node should appear in every touching component")
	}

	assert.False(t, g.IsSingleConnectedComponent())
}

func TestGraph_SplittingLastEdgeYieldsTwoComponents(t *testing.T) {
	g := New()

	a := g.InsertNode(registry.Entity(1), true)
	b := g.InsertNode(registry.Entity(2), true)
	c := g.InsertNode(registry.Entity(3), true)
	g.InsertEdge(registry.Entity(10), a, b)
	bridge := g.InsertEdge(registry.Entity(11), b, c)

	assert.True(t, g.IsSingleConnectedComponent())

	g.RemoveEdge(bridge)

	count := 0
	g.ConnectedComponents(func(Component) { count++ })
	assert.Equal(t, 2, count)
}

// Package graph implements the body-constraint multigraph. Nodes wrap body
// entities and edges wrap constraint entities. Indices are stable: removal
// tombstones the slot and pushes it onto a free list, it never compacts.
//
// Nodes are either connecting or non-connecting. Dynamic bodies connect
// components; static and kinematic bodies do not, so they may appear in
// several connected components at once.
package graph

import (
	"fmt"

	"github.com/akmonengine/bedrock/registry"
)

// NodeIndex identifies a node slot
type NodeIndex uint32

// EdgeIndex identifies an edge slot
type EdgeIndex uint32

// NullIndex marks an invalid node or edge index
const NullIndex = ^uint32(0)

type node struct {
	entity     registry.Entity
	connecting bool
	adjacency  []EdgeIndex
	alive      bool
}

type edge struct {
	entity registry.Entity
	nodeA  NodeIndex
	nodeB  NodeIndex
	alive  bool
}

// Graph is an undirected multigraph of bodies and constraints
type Graph struct {
	nodes []node
	edges []edge

	freeNodes []NodeIndex
	freeEdges []EdgeIndex
}

// New creates an empty graph
func New() *Graph {
	return &Graph{}
}

// InsertNode adds a node wrapping the given entity. Connecting nodes
// propagate connectivity during component traversal.
func (g *Graph) InsertNode(entity registry.Entity, connecting bool) NodeIndex {
	n := node{entity: entity, connecting: connecting, alive: true}

	if len(g.freeNodes) > 0 {
		idx := g.freeNodes[len(g.freeNodes)-1]
		g.freeNodes = g.freeNodes[:len(g.freeNodes)-1]
		g.nodes[idx] = n
		return idx
	}

	g.nodes = append(g.nodes, n)
	return NodeIndex(len(g.nodes) - 1)
}

// InsertEdge adds an edge between two existing nodes
func (g *Graph) InsertEdge(entity registry.Entity, nodeA, nodeB NodeIndex) EdgeIndex {
	if !g.nodeAlive(nodeA) || !g.nodeAlive(nodeB) {
		panic(fmt.Sprintf("graph: edge between unknown nodes %d, %d", nodeA, nodeB))
	}

	e := edge{entity: entity, nodeA: nodeA, nodeB: nodeB, alive: true}

	var idx EdgeIndex
	if len(g.freeEdges) > 0 {
		idx = g.freeEdges[len(g.freeEdges)-1]
		g.freeEdges = g.freeEdges[:len(g.freeEdges)-1]
		g.edges[idx] = e
	} else {
		g.edges = append(g.edges, e)
		idx = EdgeIndex(len(g.edges) - 1)
	}

	g.nodes[nodeA].adjacency = append(g.nodes[nodeA].adjacency, idx)
	g.nodes[nodeB].adjacency = append(g.nodes[nodeB].adjacency, idx)
	return idx
}

// RemoveNode tombstones a node, removing all incident edges first
func (g *Graph) RemoveNode(idx NodeIndex) {
	if !g.nodeAlive(idx) {
		panic(fmt.Sprintf("graph: remove of unknown node %d", idx))
	}

	for len(g.nodes[idx].adjacency) > 0 {
		g.RemoveEdge(g.nodes[idx].adjacency[0])
	}

	g.nodes[idx] = node{}
	g.freeNodes = append(g.freeNodes, idx)
}

// RemoveEdge tombstones an edge
func (g *Graph) RemoveEdge(idx EdgeIndex) {
	if !g.edgeAlive(idx) {
		panic(fmt.Sprintf("graph: remove of unknown edge %d", idx))
	}

	e := g.edges[idx]
	g.detachEdge(e.nodeA, idx)
	g.detachEdge(e.nodeB, idx)

	g.edges[idx] = edge{}
	g.freeEdges = append(g.freeEdges, idx)
}

func (g *Graph) detachEdge(n NodeIndex, idx EdgeIndex) {
	adj := g.nodes[n].adjacency
	for i, e := range adj {
		if e == idx {
			g.nodes[n].adjacency = append(adj[:i], adj[i+1:]...)
			return
		}
	}
}

func (g *Graph) nodeAlive(idx NodeIndex) bool {
	return int(idx) < len(g.nodes) && g.nodes[idx].alive
}

func (g *Graph) edgeAlive(idx EdgeIndex) bool {
	return int(idx) < len(g.edges) && g.edges[idx].alive
}

// NodeEntity returns the entity wrapped by a node
func (g *Graph) NodeEntity(idx NodeIndex) registry.Entity {
	if !g.nodeAlive(idx) {
		panic(fmt.Sprintf("graph: unknown node %d", idx))
	}
	return g.nodes[idx].entity
}

// EdgeEntity returns the entity wrapped by an edge
func (g *Graph) EdgeEntity(idx EdgeIndex) registry.Entity {
	if !g.edgeAlive(idx) {
		panic(fmt.Sprintf("graph: unknown edge %d", idx))
	}
	return g.edges[idx].entity
}

// EdgeNodes returns the endpoint node indices of an edge
func (g *Graph) EdgeNodes(idx EdgeIndex) (NodeIndex, NodeIndex) {
	if !g.edgeAlive(idx) {
		panic(fmt.Sprintf("graph: unknown edge %d", idx))
	}
	return g.edges[idx].nodeA, g.edges[idx].nodeB
}

// IncidentEdges returns a copy of the edge indices incident to a node
func (g *Graph) IncidentEdges(idx NodeIndex) []EdgeIndex {
	if !g.nodeAlive(idx) {
		panic(fmt.Sprintf("graph: unknown node %d", idx))
	}
	return append([]EdgeIndex(nil), g.nodes[idx].adjacency...)
}

// NodeCount returns the number of live nodes
func (g *Graph) NodeCount() int {
	count := 0
	for i := range g.nodes {
		if g.nodes[i].alive {
			count++
		}
	}
	return count
}

// EdgeCount returns the number of live edges
func (g *Graph) EdgeCount() int {
	count := 0
	for i := range g.edges {
		if g.edges[i].alive {
			count++
		}
	}
	return count
}

// Component is one connected component of the graph
type Component struct {
	Nodes []NodeIndex
	Edges []EdgeIndex
}

// IsSingleConnectedComponent reports whether every connecting node is
// reachable from the first connecting node. A graph without connecting
// nodes is considered a single component.
func (g *Graph) IsSingleConnectedComponent() bool {
	start := NodeIndex(NullIndex)
	total := 0
	for i := range g.nodes {
		if g.nodes[i].alive && g.nodes[i].connecting {
			if start == NodeIndex(NullIndex) {
				start = NodeIndex(i)
			}
			total++
		}
	}
	if total <= 1 {
		return true
	}

	visited := make([]bool, len(g.nodes))
	reached := g.bfs(start, visited, nil)

	count := 0
	for _, idx := range reached.Nodes {
		if g.nodes[idx].connecting {
			count++
		}
	}
	return count == total
}

// ConnectedComponents enumerates the connected components via BFS labeling.
// Traversal does not expand through non-connecting nodes, so a static body
// shared by two otherwise separate groups appears in both components.
func (g *Graph) ConnectedComponents(visitor func(Component)) {
	visited := make([]bool, len(g.nodes))
	visitedEdges := make([]bool, len(g.edges))

	for i := range g.nodes {
		idx := NodeIndex(i)
		if !g.nodes[i].alive || visited[i] || !g.nodes[i].connecting {
			continue
		}
		visitor(g.bfs(idx, visited, visitedEdges))
	}
}

func (g *Graph) bfs(start NodeIndex, visited []bool, visitedEdges []bool) Component {
	comp := Component{}
	queue := []NodeIndex{start}
	visited[start] = true

	// Non-connecting nodes may be pulled into several components; track
	// membership locally so they are reported once per component.
	inComponent := map[NodeIndex]bool{start: true}

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		comp.Nodes = append(comp.Nodes, idx)

		if !g.nodes[idx].connecting && idx != start {
			continue
		}

		for _, eidx := range g.nodes[idx].adjacency {
			if visitedEdges != nil {
				if visitedEdges[eidx] {
					continue
				}
				visitedEdges[eidx] = true
			}
			comp.Edges = append(comp.Edges, eidx)

			other := g.edges[eidx].nodeA
			if other == idx {
				other = g.edges[eidx].nodeB
			}

			if inComponent[other] {
				continue
			}
			inComponent[other] = true
			if g.nodes[other].connecting {
				visited[other] = true
			}
			queue = append(queue, other)
		}
	}

	return comp
}

package bedrock

import (
	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/collide"
	"github.com/akmonengine/bedrock/constraint"
	"github.com/akmonengine/bedrock/graph"
	"github.com/akmonengine/bedrock/registry"
)

// graphCallbacks lets the owner observe graph-relevant lifecycle events
// beyond the structural maintenance itself. Any callback may be nil.
type graphCallbacks struct {
	nodeDestroyed       func(registry.Entity)
	edgeDestroyed       func(registry.Entity)
	manifoldConstructed func(registry.Entity)
}

// registerGraphMaintenance wires a registry's component lifecycle into a
// constraint graph: bodies become nodes, manifolds and joint constraints
// become edges, and destroying a body first destroys its incident edge
// entities.
func registerGraphMaintenance(reg *registry.Registry, g *graph.Graph, cb graphCallbacks) {
	registry.OnConstruct[actor.BodyKind](reg, func(r *registry.Registry, e registry.Entity) {
		kind := registry.Get[actor.BodyKind](r, e)
		idx := g.InsertNode(e, kind.Procedural())
		registry.Emplace(r, e, graphNode{index: uint32(idx)})
	})

	registry.OnDestroy[graphNode](reg, func(r *registry.Registry, e registry.Entity) {
		node := registry.Get[graphNode](r, e)
		idx := graph.NodeIndex(node.index)
		for _, edgeIdx := range g.IncidentEdges(idx) {
			edgeEntity := g.EdgeEntity(edgeIdx)
			if r.Valid(edgeEntity) {
				r.Destroy(edgeEntity)
			}
		}
		g.RemoveNode(idx)

		if cb.nodeDestroyed != nil {
			cb.nodeDestroyed(e)
		}
	})

	insertEdge := func(r *registry.Registry, e, bodyA, bodyB registry.Entity) {
		nodeA := registry.TryGet[graphNode](r, bodyA)
		nodeB := registry.TryGet[graphNode](r, bodyB)
		if nodeA == nil || nodeB == nil {
			return
		}
		idx := g.InsertEdge(e, graph.NodeIndex(nodeA.index), graph.NodeIndex(nodeB.index))
		registry.Emplace(r, e, graphEdge{index: uint32(idx)})
	}

	registry.OnConstruct[collide.Manifold](reg, func(r *registry.Registry, e registry.Entity) {
		m := registry.Get[collide.Manifold](r, e)
		insertEdge(r, e, m.Body[0], m.Body[1])
		if cb.manifoldConstructed != nil {
			cb.manifoldConstructed(e)
		}
	})

	registry.OnConstruct[constraint.Constraint](reg, func(r *registry.Registry, e registry.Entity) {
		con := registry.Get[constraint.Constraint](r, e)
		// Contact constraints are owned by their manifold, which is the
		// graph edge already.
		if con.Kind == constraint.KindContact {
			return
		}
		insertEdge(r, e, con.Body[0], con.Body[1])
	})

	registry.OnDestroy[graphEdge](reg, func(r *registry.Registry, e registry.Entity) {
		edge := registry.Get[graphEdge](r, e)
		g.RemoveEdge(graph.EdgeIndex(edge.index))

		if cb.edgeDestroyed != nil {
			cb.edgeDestroyed(e)
		}
	})
}

package bedrock

import (
	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/collide"
	"github.com/akmonengine/bedrock/registry"
)

// parallelManifoldThreshold is the manifold count above which narrowphase
// updates are partitioned across dispatcher subtasks
const parallelManifoldThreshold = 4

// Narrowphase recomputes contact points for every manifold each step and
// maintains point persistence: merge into cached points, insert, replace
// by maximum area, and prune separated or drifted points.
type Narrowphase struct {
	reg *registry.Registry
}

// NewNarrowphase creates a narrowphase bound to a registry
func NewNarrowphase(reg *registry.Registry) *Narrowphase {
	return &Narrowphase{reg: reg}
}

func (n *Narrowphase) manifoldEntities() []registry.Entity {
	var out []registry.Entity
	registry.View(n.reg, func(e registry.Entity, m *collide.Manifold) {
		out = append(out, e)
	})
	return out
}

// Parallelizable reports whether per-pair collision is worth partitioning
func (n *Narrowphase) Parallelizable() bool {
	return registry.Count[collide.Manifold](n.reg) > parallelManifoldThreshold
}

// Update recomputes every manifold serially
func (n *Narrowphase) Update() {
	for _, e := range n.manifoldEntities() {
		n.UpdateManifold(e)
	}
}

// UpdateAsync partitions manifold updates across dispatcher subtasks;
// per-pair collision is independent
func (n *Narrowphase) UpdateAsync(d *Dispatcher, completion Job) {
	entities := n.manifoldEntities()
	ParallelForAsync(d, len(entities), completion, func(index int) {
		n.UpdateManifold(entities[index])
	})
}

// FinishAsync completes an asynchronous update; all mutation already
// happened inside the per-manifold subtasks
func (n *Narrowphase) FinishAsync() {}

// UpdateManifold runs the collision kernel for one manifold and folds the
// result into its persistent points
func (n *Narrowphase) UpdateManifold(e registry.Entity) {
	m := registry.Get[collide.Manifold](n.reg, e)

	shapeA := registry.TryGet[actor.ShapeRef](n.reg, m.Body[0])
	shapeB := registry.TryGet[actor.ShapeRef](n.reg, m.Body[1])
	if shapeA == nil || shapeB == nil {
		return
	}

	ta := registry.Get[actor.Transform](n.reg, m.Body[0])
	tb := registry.Get[actor.Transform](n.reg, m.Body[1])

	// Proceed to closest point calculation only while the AABBs overlap
	// within the margin; the manifold survives separation up to its own
	// threshold.
	bbA := registry.Get[actor.BoundingBox](n.reg, m.Body[0])
	bbB := registry.Get[actor.BoundingBox](n.reg, m.Body[1])

	m.Refresh(*ta, *tb)

	if bbA.AABB.Inset(-actor.ContactMargin).Overlaps(bbB.AABB) {
		ctx := collide.Context{
			TransformA: *ta,
			TransformB: *tb,
			Threshold:  actor.ContactMargin,
		}
		result := collide.Collide(shapeA.Shape, shapeB.Shape, ctx)

		material := registry.Get[actor.Material](n.reg, e)
		for _, rp := range result.Points {
			m.Merge(rp, *tb, material.Restitution, material.Friction)
		}
	}

	m.Prune(*ta, *tb)
	m.Age()
}

// UpdateManifolds seeds the contact points of freshly imported manifolds
func (n *Narrowphase) UpdateManifolds(entities []registry.Entity) {
	for _, e := range entities {
		if n.reg.Valid(e) && registry.Has[collide.Manifold](n.reg, e) {
			n.UpdateManifold(e)
		}
	}
}

package bedrock

import (
	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/collide"
	"github.com/akmonengine/bedrock/constraint"
	"github.com/akmonengine/bedrock/dtree"
	"github.com/akmonengine/bedrock/registry"
)

// SeparationThreshold is the AABB separation beyond which a manifold is
// destroyed; at least the shape margin.
const SeparationThreshold = 2 * actor.ContactMargin

// aabbOffset shrinks the query AABB during pair generation. Body AABBs are
// stored fattened by the contact margin, so manifolds still appear slightly
// before shapes touch, but AABBs that merely touch do not pair up.
const aabbOffset = actor.ContactMargin / 2

type bodyPair struct {
	first  registry.Entity
	second registry.Entity
}

// Broadphase maintains the two AABB trees of one registry: a procedural
// tree for dynamic and kinematic bodies, and a non-procedural tree for
// static bodies. Each step it refits moved leaves, retires manifolds whose
// AABBs separated, and creates manifolds for newly overlapping pairs.
type Broadphase struct {
	reg    *registry.Registry
	tree   *dtree.Tree // procedural
	npTree *dtree.Tree // non-procedural

	manifoldMap map[bodyPair]registry.Entity

	// makeManifold is supplied by the owner; it creates the manifold
	// entity with its contact constraint
	makeManifold func(a, b registry.Entity)

	newAABBEntities []registry.Entity
	pairResults     [][]bodyPair
}

// NewBroadphase hooks a broadphase up to a registry
func NewBroadphase(reg *registry.Registry, makeManifold func(a, b registry.Entity)) *Broadphase {
	b := &Broadphase{
		reg:          reg,
		tree:         dtree.New(),
		npTree:       dtree.New(),
		manifoldMap:  make(map[bodyPair]registry.Entity),
		makeManifold: makeManifold,
	}

	// Tree leaves follow the bounding box component's lifetime. Creation
	// is deferred: the entity may not carry its kind yet.
	registry.OnConstruct[actor.BoundingBox](reg, func(r *registry.Registry, e registry.Entity) {
		b.newAABBEntities = append(b.newAABBEntities, e)
	})
	registry.OnDestroy[treeNode](reg, func(r *registry.Registry, e registry.Entity) {
		node := registry.Get[treeNode](r, e)
		if node.procedural {
			b.tree.Destroy(dtree.NodeID(node.id))
		} else {
			b.npTree.Destroy(dtree.NodeID(node.id))
		}
	})

	registry.OnConstruct[collide.Manifold](reg, func(r *registry.Registry, e registry.Entity) {
		m := registry.Get[collide.Manifold](r, e)
		b.manifoldMap[pairKey(m.Body[0], m.Body[1])] = e
	})
	registry.OnDestroy[collide.Manifold](reg, func(r *registry.Registry, e registry.Entity) {
		m := registry.Get[collide.Manifold](r, e)
		delete(b.manifoldMap, pairKey(m.Body[0], m.Body[1]))
	})

	return b
}

// MakeContactManifold creates a manifold entity with its contact
// constraint between two bodies, mixing the two materials. Pairs without
// materials on both sides get no contact response and no manifold.
func MakeContactManifold(reg *registry.Registry, bodyA, bodyB registry.Entity) registry.Entity {
	matA := registry.TryGet[actor.Material](reg, bodyA)
	matB := registry.TryGet[actor.Material](reg, bodyB)
	if matA == nil || matB == nil {
		return registry.Null
	}

	e := reg.Create()
	mixed := actor.Material{
		Restitution: actor.MixRestitution(*matA, *matB),
		Friction:    actor.MixFriction(*matA, *matB),
		Stiffness:   actor.LargeStiffness,
		Damping:     actor.LargeStiffness,
	}
	if matA.Stiffness < actor.LargeStiffness || matB.Stiffness < actor.LargeStiffness {
		mixed.Stiffness = actor.MixStiffness(*matA, *matB)
		mixed.Damping = actor.MixDamping(*matA, *matB)
	}
	registry.Emplace(reg, e, mixed)

	registry.Emplace(reg, e, collide.NewManifold(bodyA, bodyB, SeparationThreshold))
	registry.Emplace(reg, e, constraint.Constraint{
		Kind: constraint.KindContact,
		Body: [2]registry.Entity{bodyA, bodyB},
	})
	registry.Emplace(reg, e, constraint.Impulse{})

	return e
}

func pairKey(a, b registry.Entity) bodyPair {
	if b < a {
		a, b = b, a
	}
	return bodyPair{first: a, second: b}
}

// ManifoldBetween returns the manifold entity of a body pair, if any
func (b *Broadphase) ManifoldBetween(e0, e1 registry.Entity) (registry.Entity, bool) {
	m, ok := b.manifoldMap[pairKey(e0, e1)]
	return m, ok
}

// Tree returns the procedural tree
func (b *Broadphase) Tree() *dtree.Tree {
	return b.tree
}

// View snapshots the procedural tree
func (b *Broadphase) View() dtree.View {
	return b.tree.View()
}

func (b *Broadphase) initNewAABBEntities() {
	for _, e := range b.newAABBEntities {
		if !b.reg.Valid(e) || registry.Has[treeNode](b.reg, e) {
			continue
		}
		bb := registry.TryGet[actor.BoundingBox](b.reg, e)
		kind := registry.TryGet[actor.BodyKind](b.reg, e)
		if bb == nil || kind == nil {
			continue
		}

		var id dtree.NodeID
		procedural := kind.Procedural()
		if procedural {
			id = b.tree.Create(bb.AABB, e)
		} else {
			id = b.npTree.Create(bb.AABB, e)
		}
		registry.Emplace(b.reg, e, treeNode{id: int32(id), procedural: procedural})
	}
	b.newAABBEntities = b.newAABBEntities[:0]
}

// destroySeparatedManifolds retires manifolds whose bodies' AABBs no
// longer intersect once the first is expanded by the separation threshold
func (b *Broadphase) destroySeparatedManifolds() {
	var separated []registry.Entity

	registry.View(b.reg, func(e registry.Entity, m *collide.Manifold) {
		bb0 := registry.TryGet[actor.BoundingBox](b.reg, m.Body[0])
		bb1 := registry.TryGet[actor.BoundingBox](b.reg, m.Body[1])
		if bb0 == nil || bb1 == nil {
			separated = append(separated, e)
			return
		}
		if !bb0.AABB.Inset(-m.SeparationThreshold).Overlaps(bb1.AABB) {
			separated = append(separated, e)
		}
	})

	for _, e := range separated {
		b.reg.Destroy(e)
	}
}

// commonUpdate runs the serial part of the step: leaf initialization,
// manifold retirement and leaf refitting
func (b *Broadphase) commonUpdate() {
	b.initNewAABBEntities()
	b.destroySeparatedManifolds()

	registry.View3(b.reg, func(e registry.Entity, node *treeNode, bb *actor.BoundingBox, kind *actor.BodyKind) {
		if !node.procedural {
			// Kinematic bodies live in the procedural tree; static
			// leaves never move.
			return
		}
		b.tree.Move(dtree.NodeID(node.id), bb.AABB)
	})
}

// Parallelizable reports whether pair generation is worth partitioning
func (b *Broadphase) Parallelizable() bool {
	return b.proceduralCount() > 1
}

func (b *Broadphase) proceduralCount() int {
	count := 0
	registry.View2(b.reg, func(e registry.Entity, kind *actor.BodyKind, bb *actor.BoundingBox) {
		if kind.Procedural() {
			count++
		}
	})
	return count
}

func (b *Broadphase) proceduralEntities() []registry.Entity {
	var out []registry.Entity
	registry.View2(b.reg, func(e registry.Entity, node *treeNode, bb *actor.BoundingBox) {
		if node.procedural {
			out = append(out, e)
		}
	})
	return out
}

// collideTree queries one tree with a body's expanded AABB, reporting
// every filter-approved candidate
func (b *Broadphase) collideTree(tree *dtree.Tree, entity registry.Entity, aabb actor.AABB, report func(bodyPair)) {
	tree.Query(aabb, func(id dtree.NodeID) bool {
		other := tree.Entity(id)
		if !b.ShouldCollide(entity, other) {
			return true
		}
		otherAABB := registry.Get[actor.BoundingBox](b.reg, other)
		if aabb.Overlaps(otherAABB.AABB) {
			report(bodyPair{first: entity, second: other})
		}
		return true
	})
}

// Update runs the full broadphase serially
func (b *Broadphase) Update() {
	b.commonUpdate()

	for _, e := range b.proceduralEntities() {
		bb := registry.Get[actor.BoundingBox](b.reg, e)
		aabb := bb.AABB.Inset(aabbOffset)
		report := func(p bodyPair) {
			if _, ok := b.ManifoldBetween(p.first, p.second); !ok {
				b.makeManifold(p.first, p.second)
			}
		}
		b.collideTree(b.tree, e, aabb, report)
		b.collideTree(b.npTree, e, aabb, report)
	}
}

// UpdateAsync partitions pair generation across dispatcher subtasks and
// posts the completion job once the last partition finishes. Manifold
// creation happens afterwards in FinishAsync, on the worker.
func (b *Broadphase) UpdateAsync(d *Dispatcher, completion Job) {
	b.commonUpdate()

	entities := b.proceduralEntities()
	b.pairResults = make([][]bodyPair, len(entities))

	ParallelForAsync(d, len(entities), completion, func(index int) {
		e := entities[index]
		bb := registry.Get[actor.BoundingBox](b.reg, e)
		aabb := bb.AABB.Inset(aabbOffset)
		report := func(p bodyPair) {
			b.pairResults[index] = append(b.pairResults[index], p)
		}
		b.collideTree(b.tree, e, aabb, report)
		b.collideTree(b.npTree, e, aabb, report)
	})
}

// FinishAsync merges the partitioned pair results and creates the missing
// manifolds
func (b *Broadphase) FinishAsync() {
	for _, pairs := range b.pairResults {
		for _, p := range pairs {
			if _, ok := b.ManifoldBetween(p.first, p.second); !ok {
				b.makeManifold(p.first, p.second)
			}
		}
	}
	b.pairResults = nil
}

// ShouldCollide applies the collision filter test
func (b *Broadphase) ShouldCollide(e0, e1 registry.Entity) bool {
	if e0 == e1 {
		return false
	}

	f0 := registry.TryGet[actor.CollisionFilter](b.reg, e0)
	f1 := registry.TryGet[actor.CollisionFilter](b.reg, e1)
	if f0 == nil || f1 == nil {
		return false
	}
	return (f0.Group&f1.Mask) != 0 && (f1.Group&f0.Mask) != 0
}

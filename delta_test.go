package bedrock

import (
	"testing"

	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/collide"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelta_HydrateEmptyRegistry(t *testing.T) {
	master := registry.New()
	body := MakeRigidBody(master, actor.BodyDef{
		Kind:     actor.BodyKindDynamic,
		Position: mgl64.Vec3{1, 2, 3},
		Mass:     2,
		Inertia:  mgl64.Vec3{1, 1, 1},
	})

	builder := NewDeltaBuilder()
	builder.CreatedEntity(body)
	BuilderAllComponents(builder, master, body)
	delta := builder.Finish()

	worker := registry.New()
	emap := NewEntityMap()
	created := delta.Apply(worker, emap)

	require.Len(t, created, 1)
	local := created[0]
	require.True(t, worker.Valid(local))

	transform := registry.Get[actor.Transform](worker, local)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, transform.Position)

	mass := registry.Get[actor.MassProps](worker, local)
	assert.Equal(t, 2.0, mass.Mass)
	assert.Equal(t, 0.5, mass.InvMass)

	// The mapping is established
	mapped, ok := emap.RemLoc(body)
	require.True(t, ok)
	assert.Equal(t, local, mapped)
}

func TestDelta_RoundTripEquivalence(t *testing.T) {
	master := registry.New()
	body := MakeRigidBody(master, actor.BodyDef{
		Kind:     actor.BodyKindDynamic,
		Position: mgl64.Vec3{4, 5, 6},
		LinVel:   mgl64.Vec3{1, 0, 0},
		Mass:     1,
		Inertia:  mgl64.Vec3{1, 1, 1},
	})

	builder := NewDeltaBuilder()
	builder.CreatedEntity(body)
	BuilderAllComponents(builder, master, body)
	delta := builder.Finish()

	// Apply to an empty registry, then serialize it back out
	worker := registry.New()
	emap := NewEntityMap()
	created := delta.Apply(worker, emap)
	require.Len(t, created, 1)

	back := NewDeltaBuilder()
	back.CreatedEntity(created[0])
	BuilderAllComponents(back, worker, created[0])
	echo := back.Finish()

	// Equivalent modulo ordering within type buckets: same pool types,
	// same record counts, same transform value.
	require.Len(t, echo.Pools, len(delta.Pools))

	types := func(d *IslandDelta) map[int]int {
		out := make(map[int]int)
		for _, p := range d.Pools {
			out[p.TypeIndex] = len(p.Created)
		}
		return out
	}
	assert.Equal(t, types(delta), types(echo))

	transform := registry.Get[actor.Transform](worker, created[0])
	assert.Equal(t, mgl64.Vec3{4, 5, 6}, transform.Position)
}

func TestDelta_ValuesAreDecoupled(t *testing.T) {
	master := registry.New()
	body := MakeRigidBody(master, actor.BodyDef{
		Kind:    actor.BodyKindDynamic,
		Mass:    1,
		Inertia: mgl64.Vec3{1, 1, 1},
	})

	builder := NewDeltaBuilder()
	builder.CreatedEntity(body)
	BuilderAllComponents(builder, master, body)
	delta := builder.Finish()

	// Mutating the master after recording must not leak into the import
	registry.Get[actor.Transform](master, body).Position = mgl64.Vec3{9, 9, 9}

	worker := registry.New()
	emap := NewEntityMap()
	created := delta.Apply(worker, emap)

	transform := registry.Get[actor.Transform](worker, created[0])
	assert.Equal(t, mgl64.Vec3{}, transform.Position)
}

func TestDelta_UnmappedRecordSkippedSilently(t *testing.T) {
	builder := NewDeltaBuilder()
	ghost := registry.Entity(1234)
	BuilderUpdated(builder, ghost, &actor.Velocity{Linear: mgl64.Vec3{1, 0, 0}})
	delta := builder.Finish()

	worker := registry.New()
	emap := NewEntityMap()

	assert.NotPanics(t, func() { delta.Apply(worker, emap) })
	assert.Equal(t, 0, worker.Len())
}

func TestDelta_DestroyedEntityRemovesMapping(t *testing.T) {
	master := registry.New()
	body := MakeRigidBody(master, actor.BodyDef{
		Kind: actor.BodyKindStatic,
	})

	builder := NewDeltaBuilder()
	builder.CreatedEntity(body)
	BuilderAllComponents(builder, master, body)

	worker := registry.New()
	emap := NewEntityMap()
	created := builder.Finish().Apply(worker, emap)
	require.Len(t, created, 1)

	builder.DestroyedEntity(body)
	builder.Finish().Apply(worker, emap)

	assert.False(t, worker.Valid(created[0]))
	assert.False(t, emap.HasRem(body))
}

func TestDelta_EntityReferencesAreTranslated(t *testing.T) {
	master := registry.New()
	bodyA := MakeRigidBody(master, actor.BodyDef{Kind: actor.BodyKindDynamic, Mass: 1, Inertia: mgl64.Vec3{1, 1, 1}})
	bodyB := MakeRigidBody(master, actor.BodyDef{Kind: actor.BodyKindDynamic, Mass: 1, Inertia: mgl64.Vec3{1, 1, 1}})

	mat := actor.NewMaterial(0, 0.5)
	registry.Emplace(master, bodyA, mat)
	registry.Emplace(master, bodyB, mat)
	manifold := MakeContactManifold(master, bodyA, bodyB)
	require.NotEqual(t, registry.Null, manifold)

	builder := NewDeltaBuilder()
	for _, e := range []registry.Entity{bodyA, bodyB, manifold} {
		builder.CreatedEntity(e)
		BuilderAllComponents(builder, master, e)
	}

	worker := registry.New()
	emap := NewEntityMap()
	builder.Finish().Apply(worker, emap)

	localManifold, ok := emap.RemLoc(manifold)
	require.True(t, ok)
	localA, _ := emap.RemLoc(bodyA)
	localB, _ := emap.RemLoc(bodyB)

	m := registry.Get[collide.Manifold](worker, localManifold)
	assert.Equal(t, localA, m.Body[0])
	assert.Equal(t, localB, m.Body[1])
}

func TestSnapshot_PoolRoundTrip(t *testing.T) {
	master := registry.New()
	body := MakeRigidBody(master, actor.BodyDef{
		Kind:     actor.BodyKindDynamic,
		Position: mgl64.Vec3{1, 1, 1},
		Mass:     1,
		Inertia:  mgl64.Vec3{1, 1, 1},
	})

	pools := SnapshotPools(master, []registry.Entity{body})
	require.NotEmpty(t, pools)

	worker := registry.New()
	emap := NewEntityMap()
	local := worker.Create()
	emap.Insert(body, local)

	for _, pool := range pools {
		ApplyPoolSnapshot(worker, emap, pool)
	}

	transform := registry.Get[actor.Transform](worker, local)
	assert.Equal(t, mgl64.Vec3{1, 1, 1}, transform.Position)
}

func TestEntityMap_Bijection(t *testing.T) {
	m := NewEntityMap()
	m.Insert(registry.Entity(10), registry.Entity(1))

	local, ok := m.RemLoc(registry.Entity(10))
	require.True(t, ok)
	assert.Equal(t, registry.Entity(1), local)

	remote, ok := m.LocRem(registry.Entity(1))
	require.True(t, ok)
	assert.Equal(t, registry.Entity(10), remote)

	m.EraseLoc(registry.Entity(1))
	assert.False(t, m.HasRem(registry.Entity(10)))
	assert.False(t, m.HasLoc(registry.Entity(1)))
}

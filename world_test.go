package bedrock

import (
	"testing"
	"time"

	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/constraint"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pump advances the coordinator until the condition holds or the timeout
// expires
func pump(t *testing.T, w *World, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		w.Step(0.01)
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	w.Step(0.01)
	return condition()
}

func testMaterial() *actor.Material {
	m := actor.NewMaterial(0, 0.5)
	return &m
}

func TestWorld_FreeFallProgresses(t *testing.T) {
	w := NewWorld(DefaultConfig())
	defer w.Terminate()

	body := w.CreateBody(actor.BodyDef{
		Kind:     actor.BodyKindDynamic,
		Position: mgl64.Vec3{0, 3, 0},
		Mass:     1,
		Inertia:  mgl64.Vec3{1, 1, 1},
		Gravity:  mgl64.Vec3{0, -9.8, 0},
	})

	ok := pump(t, w, 5*time.Second, func() bool {
		transform := registry.Get[actor.Transform](w.Registry(), body)
		return transform.Position.Y() < 2.0
	})
	require.True(t, ok, "body did not fall")

	vel := registry.Get[actor.Velocity](w.Registry(), body)
	assert.Negative(t, vel.Linear.Y())
}

func TestWorld_SleepAndWake(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeToSleep = 0.3
	w := NewWorld(cfg)
	defer w.Terminate()

	w.CreateBody(actor.BodyDef{
		Kind:     actor.BodyKindStatic,
		Shape:    &actor.Plane{Normal: mgl64.Vec3{0, 1, 0}},
		Material: testMaterial(),
	})
	body := w.CreateBody(actor.BodyDef{
		Kind:     actor.BodyKindDynamic,
		Position: mgl64.Vec3{0, 0.52, 0},
		Mass:     1,
		Shape:    &actor.Sphere{Radius: 0.5},
		Material: testMaterial(),
		Gravity:  mgl64.Vec3{0, -9.8, 0},
	})

	sleepingIsland := func() (registry.Entity, bool) {
		for _, island := range w.Islands() {
			if registry.Has[actor.SleepingTag](w.Registry(), island) {
				return island, true
			}
		}
		return registry.Null, false
	}

	ok := pump(t, w, 10*time.Second, func() bool {
		_, asleep := sleepingIsland()
		return asleep
	})
	require.True(t, ok, "island never went to sleep")

	island, _ := sleepingIsland()
	require.True(t, registry.Has[actor.SleepingTag](w.Registry(), body),
		"sleeping tag missing on the body")

	// Drain any in-flight deltas before sampling the frozen timestamp
	time.Sleep(100 * time.Millisecond)
	w.Step(0.1)

	// The worker must stop stepping: the island timestamp freezes
	frozen := registry.Get[IslandTimestamp](w.Registry(), island).Value
	sleptPosition := registry.Get[actor.Transform](w.Registry(), body).Position
	time.Sleep(300 * time.Millisecond)
	w.Step(0.3)
	assert.Equal(t, frozen, registry.Get[IslandTimestamp](w.Registry(), island).Value)

	// Wake without disturbing it: position must be preserved
	w.Wake(body)
	ok = pump(t, w, 5*time.Second, func() bool {
		return !registry.Has[actor.SleepingTag](w.Registry(), body)
	})
	require.True(t, ok, "island never woke up")

	position := registry.Get[actor.Transform](w.Registry(), body).Position
	assert.InDelta(t, sleptPosition.Y(), position.Y(), 1e-2)
}

func TestWorld_ImpulseWakesSleepingIsland(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeToSleep = 0.3
	w := NewWorld(cfg)
	defer w.Terminate()

	w.CreateBody(actor.BodyDef{
		Kind:     actor.BodyKindStatic,
		Shape:    &actor.Plane{Normal: mgl64.Vec3{0, 1, 0}},
		Material: testMaterial(),
	})
	body := w.CreateBody(actor.BodyDef{
		Kind:     actor.BodyKindDynamic,
		Position: mgl64.Vec3{0, 0.52, 0},
		Mass:     1,
		Shape:    &actor.Sphere{Radius: 0.5},
		Material: testMaterial(),
		Gravity:  mgl64.Vec3{0, -9.8, 0},
	})

	ok := pump(t, w, 10*time.Second, func() bool {
		return registry.Has[actor.SleepingTag](w.Registry(), body)
	})
	require.True(t, ok, "body never slept")

	w.ApplyImpulse(body, mgl64.Vec3{0.5, 0, 0}, mgl64.Vec3{})

	ok = pump(t, w, 5*time.Second, func() bool {
		transform := registry.Get[actor.Transform](w.Registry(), body)
		return !registry.Has[actor.SleepingTag](w.Registry(), body) &&
			transform.Position.X() > 0.01
	})
	assert.True(t, ok, "impulse did not wake the island")
}

func TestWorld_ConstraintMergesIslands(t *testing.T) {
	w := NewWorld(DefaultConfig())
	defer w.Terminate()

	a := w.CreateBody(actor.BodyDef{
		Kind:             actor.BodyKindDynamic,
		Position:         mgl64.Vec3{0, 0, 0},
		Mass:             1,
		Inertia:          mgl64.Vec3{1, 1, 1},
		SleepingDisabled: true,
	})
	b := w.CreateBody(actor.BodyDef{
		Kind:             actor.BodyKindDynamic,
		Position:         mgl64.Vec3{10, 0, 0},
		Mass:             1,
		Inertia:          mgl64.Vec3{1, 1, 1},
		SleepingDisabled: true,
	})

	require.Len(t, w.Islands(), 2)

	w.CreateConstraint(constraint.KindDistance, a, b, constraint.Constraint{Distance: 10})
	assert.Len(t, w.Islands(), 1)
}

func TestWorld_SplitAfterConstraintDestroyed(t *testing.T) {
	w := NewWorld(DefaultConfig())
	defer w.Terminate()

	a := w.CreateBody(actor.BodyDef{
		Kind:             actor.BodyKindDynamic,
		Position:         mgl64.Vec3{0, 0, 0},
		Mass:             1,
		Inertia:          mgl64.Vec3{1, 1, 1},
		SleepingDisabled: true,
	})
	b := w.CreateBody(actor.BodyDef{
		Kind:             actor.BodyKindDynamic,
		Position:         mgl64.Vec3{20, 0, 0},
		Mass:             1,
		Inertia:          mgl64.Vec3{1, 1, 1},
		SleepingDisabled: true,
	})

	con := w.CreateConstraint(constraint.KindDistance, a, b, constraint.Constraint{Distance: 20})
	require.Len(t, w.Islands(), 1)

	w.DestroyConstraint(con)

	// The worker debounces the connectivity check (~1.1s) before
	// requesting the split.
	ok := pump(t, w, 8*time.Second, func() bool {
		return len(w.Islands()) == 2
	})
	require.True(t, ok, "island did not split")

	// Each resulting island contains exactly one of the bodies
	islandsA := registry.Get[IslandContainer](w.Registry(), a).Islands
	islandsB := registry.Get[IslandContainer](w.Registry(), b).Islands
	require.Len(t, islandsA, 1)
	require.Len(t, islandsB, 1)
	assert.NotEqual(t, islandsA[0], islandsB[0])
}

func TestWorld_ApproachingBodiesMerge(t *testing.T) {
	w := NewWorld(DefaultConfig())
	defer w.Terminate()

	w.CreateBody(actor.BodyDef{
		Kind:             actor.BodyKindDynamic,
		Position:         mgl64.Vec3{-1.5, 0, 0},
		LinVel:           mgl64.Vec3{1, 0, 0},
		Mass:             1,
		Shape:            &actor.Sphere{Radius: 0.5},
		Material:         testMaterial(),
		SleepingDisabled: true,
	})
	w.CreateBody(actor.BodyDef{
		Kind:             actor.BodyKindDynamic,
		Position:         mgl64.Vec3{1.5, 0, 0},
		LinVel:           mgl64.Vec3{-1, 0, 0},
		Mass:             1,
		Shape:            &actor.Sphere{Radius: 0.5},
		Material:         testMaterial(),
		SleepingDisabled: true,
	})

	require.Len(t, w.Islands(), 2)

	ok := pump(t, w, 6*time.Second, func() bool {
		return len(w.Islands()) == 1
	})
	assert.True(t, ok, "islands did not merge on approach")
}

func TestWorld_PauseAndStepOnce(t *testing.T) {
	w := NewWorld(DefaultConfig())
	defer w.Terminate()

	body := w.CreateBody(actor.BodyDef{
		Kind:     actor.BodyKindDynamic,
		Position: mgl64.Vec3{0, 100, 0},
		Mass:     1,
		Inertia:  mgl64.Vec3{1, 1, 1},
		Gravity:  mgl64.Vec3{0, -9.8, 0},
	})

	w.SetPaused(true)
	time.Sleep(100 * time.Millisecond)
	w.Step(0.1)

	y1 := registry.Get[actor.Transform](w.Registry(), body).Position.Y()
	time.Sleep(300 * time.Millisecond)
	w.Step(0.3)
	y2 := registry.Get[actor.Transform](w.Registry(), body).Position.Y()
	assert.Equal(t, y1, y2, "paused body must not move")

	// StepOnce advances exactly one fixed step even while paused
	w.StepOnce()
	ok := pump(t, w, 3*time.Second, func() bool {
		return registry.Get[actor.Transform](w.Registry(), body).Position.Y() < y2
	})
	assert.True(t, ok, "StepOnce did not advance the simulation")
}

func TestIslandWorker_StaticOnlyIslandSleepsImmediately(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeToSleep = 0.1
	d := NewDispatcher(2)
	defer d.Stop()

	master := registry.New()
	island := master.Create()
	registry.Emplace(master, island, IslandTimestamp{Value: wallClock()})

	ground := MakeRigidBody(master, actor.BodyDef{
		Kind:     actor.BodyKindStatic,
		Shape:    &actor.Plane{Normal: mgl64.Vec3{0, 1, 0}},
		Material: testMaterial(),
	})

	queues := NewQueuePair()
	worker := NewIslandWorker(island, cfg, queues, d, nil)
	defer func() {
		worker.Terminate()
		worker.Join()
	}()

	emap := NewEntityMap()
	SinkOf[*IslandDelta](queues.Output).Connect(func(delta *IslandDelta) {
		delta.Apply(master, emap)
	})

	builder := NewDeltaBuilder()
	BuilderUpdated(builder, island, registry.Get[IslandTimestamp](master, island))
	builder.CreatedEntity(ground)
	BuilderAllComponents(builder, master, ground)
	queues.Input.Push(builder.Finish())

	d.Async(worker.Job())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		queues.Output.Update()
		if registry.Has[actor.SleepingTag](master, island) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("static-only island never went to sleep")
}

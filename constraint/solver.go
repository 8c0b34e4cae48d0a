package constraint

import (
	"math"

	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// DefaultIterations is the default solver iteration count
const DefaultIterations = 10

// Solver drives one simulation substep: it integrates accelerations,
// prepares every constraint into the row cache in a fixed kind order, runs
// the PGS iterations, applies the delta-velocities and integrates the
// resulting velocities into new transforms.
type Solver struct {
	reg   *registry.Registry
	cache RowCache

	Iterations int

	// prepared lists the constraint entities in row emission order,
	// aligned with cache.ConNumRows
	prepared []registry.Entity

	// frictionPairs links contact friction rows to their partner normal
	// rows for the per-iteration limit refresh
	frictionPairs []frictionPair
}

type frictionPair struct {
	normalIdx   int
	frictionIdx int
	friction    float64
}

// NewSolver creates a solver bound to a registry
func NewSolver(reg *registry.Registry) *Solver {
	return &Solver{reg: reg, Iterations: DefaultIterations}
}

type bodyState struct {
	transform *actor.Transform
	vel       *actor.Velocity
	dvel      *actor.DeltaVelocity
	mass      *actor.MassProps
	winertia  *actor.WorldInertia
}

func fetchBody(reg *registry.Registry, e registry.Entity) bodyState {
	return bodyState{
		transform: registry.Get[actor.Transform](reg, e),
		vel:       registry.Get[actor.Velocity](reg, e),
		dvel:      registry.Get[actor.DeltaVelocity](reg, e),
		mass:      registry.Get[actor.MassProps](reg, e),
		winertia:  registry.Get[actor.WorldInertia](reg, e),
	}
}

// bind fills a row's mass terms and delta-velocity slots from the two
// body states
func bind(row *Row, a, b bodyState) {
	row.InvMassA = a.mass.InvMass
	row.InvMassB = b.mass.InvMass
	row.InvInertiaA = a.winertia.Inv
	row.InvInertiaB = b.winertia.Inv
	row.DvA = &a.dvel.Linear
	row.DwA = &a.dvel.Angular
	row.DvB = &b.dvel.Linear
	row.DwB = &b.dvel.Angular
}

// Update advances the dynamics of the registry by dt
func (s *Solver) Update(dt float64) {
	reg := s.reg

	s.cache.Clear()
	s.prepared = s.prepared[:0]
	s.frictionPairs = s.frictionPairs[:0]

	// Apply forces and acceleration
	s.integrateAcceleration(dt)

	// Setup constraints. The kind order and the row order within each
	// constraint are part of the solver's convergence behavior.
	s.prepareContacts(dt)
	s.prepareKind(KindPoint, dt)
	s.prepareKind(KindDistance, dt)
	s.prepareKind(KindSoftDistance, dt)
	s.prepareKind(KindHinge, dt)
	s.prepareKind(KindGeneric, dt)

	// Solve constraints
	for i := 0; i < s.Iterations; i++ {
		// Refresh per-iteration limits
		for _, fp := range s.frictionPairs {
			limit := math.Abs(s.cache.Rows[fp.normalIdx].Impulse * fp.friction)
			s.cache.Rows[fp.frictionIdx].LowerLimit = -limit
			s.cache.Rows[fp.frictionIdx].UpperLimit = limit
		}

		for r := range s.cache.Rows {
			row := &s.cache.Rows[r]
			row.apply(row.solve())
		}
	}

	// Apply constraint velocity corrections
	registry.View3(reg, func(e registry.Entity, kind *actor.BodyKind, vel *actor.Velocity, dvel *actor.DeltaVelocity) {
		if *kind != actor.BodyKindDynamic {
			return
		}
		vel.Linear = vel.Linear.Add(dvel.Linear)
		vel.Angular = vel.Angular.Add(dvel.Angular)
		dvel.Linear = mgl64.Vec3{}
		dvel.Angular = mgl64.Vec3{}
	})

	// Assign applied impulses for next step's warm start
	s.updateImpulses()

	// Integrate velocities to obtain new transforms
	s.integrateVelocity(dt)

	// Update AABBs after transforms change
	UpdateAABBs(reg)

	// Update world-space moment of inertia
	UpdateInertia(reg)
}

func (s *Solver) integrateAcceleration(dt float64) {
	registry.View3(s.reg, func(e registry.Entity, kind *actor.BodyKind, vel *actor.Velocity, acc *actor.Acceleration) {
		if *kind != actor.BodyKindDynamic {
			return
		}
		vel.Linear = vel.Linear.Add(acc.Linear.Mul(dt))
	})
}

func (s *Solver) integrateVelocity(dt float64) {
	reg := s.reg
	registry.View3(reg, func(e registry.Entity, kind *actor.BodyKind, transform *actor.Transform, vel *actor.Velocity) {
		if !kind.Procedural() {
			return
		}

		transform.Position = transform.Position.Add(vel.Linear.Mul(dt))

		omega := mgl64.Quat{W: 0, V: vel.Angular}
		qdot := omega.Mul(transform.Rotation).Scale(0.5)
		transform.SetRotation(transform.Rotation.Add(qdot.Scale(dt)).Normalize())

		if present := registry.TryGet[actor.Present](reg, e); present != nil {
			present.Position = transform.Position
			present.Rotation = transform.Rotation
		}
	})
}

// UpdateAABBs refreshes the bounding box component of every shaped body.
// Boxes are fattened by the contact margin.
func UpdateAABBs(reg *registry.Registry) {
	registry.View3(reg, func(e registry.Entity, shape *actor.ShapeRef, transform *actor.Transform, bb *actor.BoundingBox) {
		bb.AABB = shape.Shape.AABB(*transform).Inset(-actor.ContactMargin)
	})
}

// UpdateInertia refreshes the world-frame inverse inertia of every
// dynamic body
func UpdateInertia(reg *registry.Registry) {
	registry.View3(reg, func(e registry.Entity, kind *actor.BodyKind, transform *actor.Transform, wi *actor.WorldInertia) {
		if *kind != actor.BodyKindDynamic {
			return
		}
		mass := registry.Get[actor.MassProps](reg, e)
		wi.Inv = actor.ComputeWorldInvInertia(*transform, mass.InvInertia)
	})
}

// updateImpulses writes the accumulated row impulses back into each
// constraint's impulse record, in the same order preparation emitted them
func (s *Solver) updateImpulses() {
	rowIdx := 0
	for conIdx, entity := range s.prepared {
		numRows := s.cache.ConNumRows[conIdx]
		imp := registry.Get[Impulse](s.reg, entity)
		for i := 0; i < numRows; i++ {
			imp.Values[i] = s.cache.Rows[rowIdx+i].Impulse
		}
		rowIdx += numRows
	}
}

// RowsInUse returns the number of rows prepared in the last update
func (s *Solver) RowsInUse() int {
	return len(s.cache.Rows)
}

// Rows exposes the prepared rows of the last update for inspection
func (s *Solver) Rows() []Row {
	return s.cache.Rows
}

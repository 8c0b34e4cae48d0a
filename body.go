package bedrock

import (
	"fmt"
	"math"

	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// MakeRigidBody assembles the components of a rigid body on a new entity.
// Malformed definitions (zero mass for a dynamic body, a dynamic mesh) are
// programmer errors.
func MakeRigidBody(reg *registry.Registry, def actor.BodyDef) registry.Entity {
	orientation := def.Orientation
	if orientation.Len() < 1e-9 {
		orientation = mgl64.QuatIdent()
	}

	e := reg.Create()
	transform := actor.NewTransformAt(def.Position, orientation)
	registry.Emplace(reg, e, transform)

	if def.Kind == actor.BodyKindDynamic {
		if def.Mass <= 0 || math.IsInf(def.Mass, 1) {
			panic(fmt.Sprintf("bedrock: dynamic body with invalid mass %v", def.Mass))
		}
		if def.Shape != nil && def.Shape.Type() == actor.ShapeTypeMesh {
			panic("bedrock: mesh shapes only attach to static bodies")
		}

		inertia := def.Inertia
		if inertia == (mgl64.Vec3{}) && def.Shape != nil {
			inertia = def.Shape.ComputeInertia(def.Mass)
		}
		if inertia == (mgl64.Vec3{}) {
			panic("bedrock: dynamic body needs an inertia tensor or a shape")
		}

		registry.Emplace(reg, e, actor.MassProps{
			Mass:    def.Mass,
			InvMass: 1.0 / def.Mass,
			Inertia: inertia,
			InvInertia: mgl64.Vec3{
				1.0 / inertia.X(),
				1.0 / inertia.Y(),
				1.0 / inertia.Z(),
			},
		})
	} else {
		registry.Emplace(reg, e, actor.MassProps{
			Mass:    math.Inf(1),
			InvMass: 0,
			Inertia: mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)},
		})
	}

	mass := registry.Get[actor.MassProps](reg, e)
	registry.Emplace(reg, e, actor.WorldInertia{
		Inv: actor.ComputeWorldInvInertia(transform, mass.InvInertia),
	})

	if def.Kind == actor.BodyKindStatic {
		registry.Emplace(reg, e, actor.Velocity{})
	} else {
		registry.Emplace(reg, e, actor.Velocity{Linear: def.LinVel, Angular: def.AngVel})
	}
	registry.Emplace(reg, e, actor.DeltaVelocity{})

	if def.Kind == actor.BodyKindDynamic && def.Gravity != (mgl64.Vec3{}) {
		registry.Emplace(reg, e, actor.Acceleration{Linear: def.Gravity})
	}

	if def.Material != nil {
		registry.Emplace(reg, e, *def.Material)
	}

	if def.Presentation {
		registry.Emplace(reg, e, actor.Present{
			Position: def.Position,
			Rotation: orientation,
		})
	}

	if def.Shape != nil {
		registry.Emplace(reg, e, actor.ShapeRef{Shape: def.Shape})
		registry.Emplace(reg, e, actor.BoundingBox{
			AABB: def.Shape.AABB(transform).Inset(-actor.ContactMargin),
		})

		group, mask := def.CollisionGroup, def.CollisionMask
		if group == 0 {
			group = 1
		}
		if mask == 0 {
			mask = ^uint64(0)
		}
		registry.Emplace(reg, e, actor.CollisionFilter{Group: group, Mask: mask})
	}

	if def.SleepingDisabled {
		registry.Emplace(reg, e, actor.SleepingDisabledTag{})
	}

	// The kind goes in last: its construct hook inserts the graph node
	// once the body is fully assembled.
	registry.Emplace(reg, e, def.Kind)

	return e
}

// ApplyImpulse applies an impulse at a location relative to the center of
// mass, adjusting linear and angular velocity
func ApplyImpulse(reg *registry.Registry, e registry.Entity, impulse, relLocation mgl64.Vec3) {
	mass := registry.Get[actor.MassProps](reg, e)
	wi := registry.Get[actor.WorldInertia](reg, e)
	vel := registry.Get[actor.Velocity](reg, e)

	vel.Linear = vel.Linear.Add(impulse.Mul(mass.InvMass))
	vel.Angular = vel.Angular.Add(wi.Inv.Mul3x1(relLocation.Cross(impulse)))
}

// UpdateKinematicPosition moves a kinematic body to a new position,
// deriving the velocity that covers the motion in dt
func UpdateKinematicPosition(reg *registry.Registry, e registry.Entity, pos mgl64.Vec3, dt float64) {
	if *registry.Get[actor.BodyKind](reg, e) != actor.BodyKindKinematic {
		panic("bedrock: kinematic update on non-kinematic body")
	}
	transform := registry.Get[actor.Transform](reg, e)
	vel := registry.Get[actor.Velocity](reg, e)

	vel.Linear = pos.Sub(transform.Position).Mul(1.0 / dt)
	transform.Position = pos
}

// UpdateKinematicOrientation rotates a kinematic body to a new orientation,
// deriving the angular velocity that covers the motion in dt
func UpdateKinematicOrientation(reg *registry.Registry, e registry.Entity, orn mgl64.Quat, dt float64) {
	if *registry.Get[actor.BodyKind](reg, e) != actor.BodyKindKinematic {
		panic("bedrock: kinematic update on non-kinematic body")
	}
	transform := registry.Get[actor.Transform](reg, e)
	vel := registry.Get[actor.Velocity](reg, e)

	q := transform.Rotation.Inverse().Mul(orn).Normalize()
	angle := 2 * math.Acos(clampf(q.W, -1, 1))
	var axis mgl64.Vec3
	if q.V.LenSqr() > 1e-12 {
		axis = q.V.Normalize()
	}

	vel.Angular = axis.Mul(angle / dt)
	transform.SetRotation(orn.Normalize())
}

// ClearKinematicVelocities zeroes the velocity of every kinematic body,
// called once per coordinator tick after kinematic updates are routed
func ClearKinematicVelocities(reg *registry.Registry) {
	registry.View2(reg, func(e registry.Entity, kind *actor.BodyKind, vel *actor.Velocity) {
		if *kind == actor.BodyKindKinematic {
			vel.Linear = mgl64.Vec3{}
			vel.Angular = mgl64.Vec3{}
		}
	})
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

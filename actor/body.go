package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyKind represents the kind of rigid body
type BodyKind int

const (
	// BodyKindDynamic bodies are affected by forces, gravity, and collisions
	// They have finite mass and can move freely
	BodyKindDynamic BodyKind = iota

	// BodyKindStatic bodies are immovable and have infinite mass
	// They are not affected by forces or gravity (e.g., ground, walls)
	BodyKindStatic

	// BodyKindKinematic bodies have infinite mass but their velocity is
	// driven by the host
	BodyKindKinematic
)

// Procedural reports whether bodies of this kind move during simulation.
// Dynamic and kinematic bodies live in the procedural broadphase tree,
// static bodies in the non-procedural one.
func (k BodyKind) Procedural() bool {
	return k == BodyKindDynamic || k == BodyKindKinematic
}

// Material holds the surface and softness properties of a body
type Material struct {
	Restitution float64 // 0 = no rebound, 1 = perfect restitution
	Friction    float64
	Stiffness   float64
	Damping     float64
}

// LargeStiffness marks a contact as rigid; below it contacts behave as a
// spring-damper with the mixed stiffness and damping.
const LargeStiffness = 1e20

// NewMaterial creates a rigid material with the given restitution and friction
func NewMaterial(restitution, friction float64) Material {
	return Material{
		Restitution: restitution,
		Friction:    friction,
		Stiffness:   LargeStiffness,
		Damping:     LargeStiffness,
	}
}

// MixRestitution combines the restitution of two touching materials
func MixRestitution(a, b Material) float64 {
	return (a.Restitution + b.Restitution) / 2.0
}

// MixFriction combines the friction of two touching materials
// using the geometric mean
func MixFriction(a, b Material) float64 {
	return math.Sqrt(a.Friction * b.Friction)
}

// MixStiffness combines the stiffness of two touching materials like
// springs in series
func MixStiffness(a, b Material) float64 {
	return 1.0 / (1.0/a.Stiffness + 1.0/b.Stiffness)
}

// MixDamping combines the damping of two touching materials
func MixDamping(a, b Material) float64 {
	return 1.0 / (1.0/a.Damping + 1.0/b.Damping)
}

// Velocity is the linear and angular velocity component of a body
type Velocity struct {
	Linear  mgl64.Vec3
	Angular mgl64.Vec3
}

// DeltaVelocity accumulates the solver's velocity corrections during
// iterations. Only dynamic bodies carry one.
type DeltaVelocity struct {
	Linear  mgl64.Vec3
	Angular mgl64.Vec3
}

// Acceleration is the linear acceleration component (gravity included)
type Acceleration struct {
	Linear mgl64.Vec3
}

// MassProps holds the mass and the body-frame inertia tensor diagonal,
// together with their inverses. Static and kinematic bodies have
// InvMass == 0 and a zero InvInertia.
type MassProps struct {
	Mass       float64
	InvMass    float64
	Inertia    mgl64.Vec3
	InvInertia mgl64.Vec3
}

// WorldInertia caches the world-frame inverse inertia tensor,
// refreshed after every orientation change
type WorldInertia struct {
	Inv mgl64.Mat3
}

// ComputeWorldInvInertia rotates the body-frame inverse inertia diagonal
// into world space: I_world⁻¹ = R * diag(I⁻¹) * Rᵀ
func ComputeWorldInvInertia(transform Transform, invInertia mgl64.Vec3) mgl64.Mat3 {
	r := transform.RotationMatrix()
	diag := mgl64.Mat3{
		invInertia.X(), 0, 0,
		0, invInertia.Y(), 0,
		0, 0, invInertia.Z(),
	}
	return r.Mul3(diag).Mul3(r.Transpose())
}

// ShapeRef attaches a collision shape to a body
type ShapeRef struct {
	Shape Shape
}

// CollisionFilter restricts which pairs of bodies may collide.
// Two bodies collide iff (A.Group & B.Mask) != 0 and (B.Group & A.Mask) != 0.
type CollisionFilter struct {
	Group uint64
	Mask  uint64
}

// BoundingBox is the current world-space AABB component of a body
type BoundingBox struct {
	AABB AABB
}

// Present is the smoothed position and orientation used for
// interpolated rendering
type Present struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// SleepingTag marks an entity as asleep
type SleepingTag struct{}

// SleepingDisabledTag prevents the island containing this entity
// from ever going to sleep
type SleepingDisabledTag struct{}

// BodyDef describes a rigid body to be created
type BodyDef struct {
	Kind        BodyKind
	Position    mgl64.Vec3
	Orientation mgl64.Quat

	LinVel mgl64.Vec3
	AngVel mgl64.Vec3

	// Gravity applied to this body when dynamic
	Gravity mgl64.Vec3

	Mass    float64
	Inertia mgl64.Vec3 // zero = derive from shape

	Shape    Shape
	Material *Material

	CollisionGroup uint64
	CollisionMask  uint64

	// Presentation enables the smoothed present position/orientation
	Presentation bool

	SleepingDisabled bool
}

// DefaultGravity is standard gravity along -Y. It is not applied on its
// own: a body accelerates only under the Gravity of its definition.
var DefaultGravity = mgl64.Vec3{0, -9.8, 0}

// UpdateInertia derives the inertia diagonal from the shape and mass
func (def *BodyDef) UpdateInertia() {
	if def.Shape != nil {
		def.Inertia = def.Shape.ComputeInertia(def.Mass)
	}
}

package constraint

import (
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// Kind discriminates the constraint variants
type Kind int

const (
	KindContact Kind = iota
	KindPoint
	KindDistance
	KindSoftDistance
	KindHinge
	KindGeneric
)

// MaxRows is the most rows a single constraint can emit: a full contact
// manifold emits two rows per point
const MaxRows = 8

// Constraint is an edge of the constraint graph: a tagged variant
// referencing exactly two bodies. Rows are written with Body[0] as "A" and
// Body[1] as "B"; the order is significant.
type Constraint struct {
	Kind Kind
	Body [2]registry.Entity

	// PivotA and PivotB anchor point, distance and hinge constraints in
	// each body's local frame
	PivotA mgl64.Vec3
	PivotB mgl64.Vec3

	// Distance is the rest length of distance constraints
	Distance float64

	// Stiffness and Damping shape soft-distance constraints
	Stiffness float64
	Damping   float64

	// AxisA and AxisB are the hinge axes in each body's local frame
	AxisA mgl64.Vec3
	AxisB mgl64.Vec3

	// Generic 6-DOF limits, per axis. A locked axis has equal lower and
	// upper values.
	LinearLower  mgl64.Vec3
	LinearUpper  mgl64.Vec3
	AngularLower mgl64.Vec3
	AngularUpper mgl64.Vec3

	// friction carried from preparation into the per-iteration limit
	// refresh of contact rows
	friction [4]float64
}

// MapEntities translates the body references when the constraint crosses a
// registry boundary
func (c *Constraint) MapEntities(translate func(registry.Entity) registry.Entity) {
	c.Body[0] = translate(c.Body[0])
	c.Body[1] = translate(c.Body[1])
}

// Impulse stores the accumulated impulse of every row of a constraint,
// carried across steps for warm-starting
type Impulse struct {
	Values [MaxRows]float64
}

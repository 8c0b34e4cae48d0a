package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ShapeType discriminates collision shapes. The narrowphase dispatches on
// pairs of these tags.
type ShapeType int

const (
	ShapeTypeSphere ShapeType = iota
	ShapeTypeBox
	ShapeTypePlane
	ShapeTypeCapsule
	ShapeTypeCylinder
	ShapeTypeMesh

	ShapeTypeCount
)

// ContactMargin is the collision margin around every shape. Manifolds keep
// their contact points alive while the separation stays below this margin.
const ContactMargin = 0.04

// Shape is the interface that all collision shapes must implement
type Shape interface {
	Type() ShapeType
	// AABB calculates the axis-aligned bounding box for the shape
	// at the given transform
	AABB(transform Transform) AABB
	// ComputeMass calculates mass for the shape given a density
	ComputeMass(density float64) float64
	// ComputeInertia returns the body-frame inertia tensor diagonal
	ComputeInertia(mass float64) mgl64.Vec3
	// Support returns the local-space point of the shape furthest
	// along the given direction
	Support(direction mgl64.Vec3) mgl64.Vec3
	// Feature returns the local-space vertices of the contact feature
	// (point, edge or face) facing the given direction
	Feature(direction mgl64.Vec3) []mgl64.Vec3
}

// SupportWorld finds the world-space support point of a shape under a transform
func SupportWorld(shape Shape, transform Transform, direction mgl64.Vec3) mgl64.Vec3 {
	localDirection := transform.InverseRotation.Rotate(direction)
	localSupport := shape.Support(localDirection)
	return transform.ToWorld(localSupport)
}

// Box represents an oriented box collision shape
// The box is defined by its half-extents (half-width, half-height, half-depth)
type Box struct {
	HalfExtents mgl64.Vec3
}

func (b *Box) Type() ShapeType { return ShapeTypeBox }

func (b *Box) AABB(transform Transform) AABB {
	// Project the rotated half extents on the world axes: the extent of
	// a rotated box along axis i is sum_j |R[i][j]| * h[j].
	r := transform.RotationMatrix()
	var extents mgl64.Vec3
	for i := 0; i < 3; i++ {
		extents[i] = math.Abs(r.At(i, 0))*b.HalfExtents.X() +
			math.Abs(r.At(i, 1))*b.HalfExtents.Y() +
			math.Abs(r.At(i, 2))*b.HalfExtents.Z()
	}

	return AABB{
		Min: transform.Position.Sub(extents),
		Max: transform.Position.Add(extents),
	}
}

// ComputeMass calculates mass for the box
func (b *Box) ComputeMass(density float64) float64 {
	// Volume = 8 * hx * hy * hz (full dimensions are 2*halfExtents)
	volume := 8.0 * b.HalfExtents.X() * b.HalfExtents.Y() * b.HalfExtents.Z()

	return density * volume
}

func (b *Box) ComputeInertia(mass float64) mgl64.Vec3 {
	x := b.HalfExtents.X() * 2
	y := b.HalfExtents.Y() * 2
	z := b.HalfExtents.Z() * 2

	// I = (m/12) * (dimension1² + dimension2²)
	factor := mass / 12.0
	return mgl64.Vec3{
		factor * (y*y + z*z),
		factor * (x*x + z*z),
		factor * (x*x + y*y),
	}
}

func (b *Box) Support(direction mgl64.Vec3) mgl64.Vec3 {
	hx, hy, hz := b.HalfExtents.X(), b.HalfExtents.Y(), b.HalfExtents.Z()

	if direction.X() < 0 {
		hx = -hx
	}
	if direction.Y() < 0 {
		hy = -hy
	}
	if direction.Z() < 0 {
		hz = -hz
	}

	return mgl64.Vec3{hx, hy, hz}
}

// Feature returns the face whose outward normal aligns best with the
// given direction
func (b *Box) Feature(direction mgl64.Vec3) []mgl64.Vec3 {
	_, vertices := b.FaceVertices(direction)
	return vertices
}

// Vertices returns the 8 corners of the box in local space
func (b *Box) Vertices() [8]mgl64.Vec3 {
	hx, hy, hz := b.HalfExtents.X(), b.HalfExtents.Y(), b.HalfExtents.Z()
	return [8]mgl64.Vec3{
		{-hx, -hy, -hz},
		{+hx, -hy, -hz},
		{-hx, +hy, -hz},
		{+hx, +hy, -hz},
		{-hx, -hy, +hz},
		{+hx, -hy, +hz},
		{-hx, +hy, +hz},
		{+hx, +hy, +hz},
	}
}

// FaceVertices returns the vertices of the face whose outward normal aligns
// best with the given local-space direction, in perimeter order. Seen from
// outside, the +Y face winds counter-clockwise and the other five clockwise.
func (b *Box) FaceVertices(direction mgl64.Vec3) (mgl64.Vec3, []mgl64.Vec3) {
	hx := b.HalfExtents.X()
	hy := b.HalfExtents.Y()
	hz := b.HalfExtents.Z()

	faces := []struct {
		normal   mgl64.Vec3
		vertices []mgl64.Vec3
	}{
		{mgl64.Vec3{1, 0, 0}, []mgl64.Vec3{{hx, -hy, -hz}, {hx, -hy, hz}, {hx, hy, hz}, {hx, hy, -hz}}},
		{mgl64.Vec3{-1, 0, 0}, []mgl64.Vec3{{-hx, -hy, hz}, {-hx, -hy, -hz}, {-hx, hy, -hz}, {-hx, hy, hz}}},
		{mgl64.Vec3{0, 1, 0}, []mgl64.Vec3{{-hx, hy, -hz}, {-hx, hy, hz}, {hx, hy, hz}, {hx, hy, -hz}}},
		{mgl64.Vec3{0, -1, 0}, []mgl64.Vec3{{-hx, -hy, hz}, {hx, -hy, hz}, {hx, -hy, -hz}, {-hx, -hy, -hz}}},
		{mgl64.Vec3{0, 0, 1}, []mgl64.Vec3{{-hx, -hy, hz}, {-hx, hy, hz}, {hx, hy, hz}, {hx, -hy, hz}}},
		{mgl64.Vec3{0, 0, -1}, []mgl64.Vec3{{hx, -hy, -hz}, {hx, hy, -hz}, {-hx, hy, -hz}, {-hx, -hy, -hz}}},
	}

	bestDot := -math.MaxFloat64
	best := 0
	for i, face := range faces {
		dot := direction.Dot(face.normal)
		if dot > bestDot {
			bestDot = dot
			best = i
		}
	}

	return faces[best].normal, faces[best].vertices
}

// Sphere represents a spherical collision shape
type Sphere struct {
	Radius float64
}

func (s *Sphere) Type() ShapeType { return ShapeTypeSphere }

// AABB calculates the axis-aligned bounding box for the sphere
func (s *Sphere) AABB(transform Transform) AABB {
	// Sphere AABB is not affected by rotation, only by position
	radiusVec := mgl64.Vec3{s.Radius, s.Radius, s.Radius}

	return AABB{
		Min: transform.Position.Sub(radiusVec),
		Max: transform.Position.Add(radiusVec),
	}
}

// ComputeMass calculates mass for the sphere
func (s *Sphere) ComputeMass(density float64) float64 {
	// Volume of sphere = (4/3) * π * r³
	volume := (4.0 / 3.0) * math.Pi * math.Pow(s.Radius, 3)

	return density * volume
}

func (s *Sphere) ComputeInertia(mass float64) mgl64.Vec3 {
	// I = (2/5) * m * r², the same on every axis
	i := (2.0 / 5.0) * mass * s.Radius * s.Radius
	return mgl64.Vec3{i, i, i}
}

func (s *Sphere) Support(direction mgl64.Vec3) mgl64.Vec3 {
	if direction.LenSqr() < 1e-12 {
		return mgl64.Vec3{s.Radius, 0, 0}
	}
	return direction.Normalize().Mul(s.Radius)
}

func (s *Sphere) Feature(direction mgl64.Vec3) []mgl64.Vec3 {
	return []mgl64.Vec3{s.Support(direction)}
}

// Plane represents an infinite plane collision shape
// The plane is defined by the equation: Normal · p = Distance
// where Normal is the plane's normal vector (must be normalized)
// and Distance is the signed distance from the origin along the normal.
// Planes are always static.
type Plane struct {
	Normal   mgl64.Vec3
	Distance float64
}

func (p *Plane) Type() ShapeType { return ShapeTypePlane }

func (p *Plane) AABB(transform Transform) AABB {
	const thickness = 1.0
	const infinity = 1e10

	// Point on the plane closest to the origin
	planePoint := p.Normal.Mul(p.Distance)

	min := planePoint.Sub(p.Normal.Mul(thickness)).Add(transform.Position)
	max := planePoint.Add(transform.Position)

	// Extend the AABB to infinity in directions perpendicular to the normal
	for i := 0; i < 3; i++ {
		if math.Abs(p.Normal[i]) < 1.0 {
			min[i] = -infinity
			max[i] = infinity
		}
	}

	return AABB{Min: min, Max: max}
}

// ComputeMass calculates mass for the plane.
// Planes cannot be moved by collisions.
func (p *Plane) ComputeMass(density float64) float64 {
	return math.Inf(1)
}

func (p *Plane) ComputeInertia(mass float64) mgl64.Vec3 {
	return mgl64.Vec3{}
}

func (p *Plane) Support(direction mgl64.Vec3) mgl64.Vec3 {
	// Treat the plane as a very large thin slab for support queries
	const size = 1e4
	tangent1, tangent2 := TangentBasis(p.Normal)

	support := p.Normal.Mul(p.Distance)
	if direction.Dot(tangent1) > 0 {
		support = support.Add(tangent1.Mul(size))
	} else {
		support = support.Sub(tangent1.Mul(size))
	}
	if direction.Dot(tangent2) > 0 {
		support = support.Add(tangent2.Mul(size))
	} else {
		support = support.Sub(tangent2.Mul(size))
	}
	if direction.Dot(p.Normal) < 0 {
		support = support.Sub(p.Normal.Mul(size))
	}
	return support
}

// Feature returns a large quad spanning the contact plane
func (p *Plane) Feature(direction mgl64.Vec3) []mgl64.Vec3 {
	const size = 1e4
	tangent1, tangent2 := TangentBasis(p.Normal)
	origin := p.Normal.Mul(p.Distance)

	return []mgl64.Vec3{
		origin.Add(tangent1.Mul(-size)).Add(tangent2.Mul(-size)),
		origin.Add(tangent1.Mul(-size)).Add(tangent2.Mul(size)),
		origin.Add(tangent1.Mul(size)).Add(tangent2.Mul(size)),
		origin.Add(tangent1.Mul(size)).Add(tangent2.Mul(-size)),
	}
}

// Capsule represents a capsule along the local Y axis: a cylinder of
// half-length HalfHeight capped with hemispheres of the given radius
type Capsule struct {
	Radius     float64
	HalfHeight float64
}

func (c *Capsule) Type() ShapeType { return ShapeTypeCapsule }

func (c *Capsule) AABB(transform Transform) AABB {
	p0 := transform.ToWorld(mgl64.Vec3{0, -c.HalfHeight, 0})
	p1 := transform.ToWorld(mgl64.Vec3{0, +c.HalfHeight, 0})
	radiusVec := mgl64.Vec3{c.Radius, c.Radius, c.Radius}

	segment := AABB{Min: p0, Max: p0}.Union(AABB{Min: p1, Max: p1})
	return AABB{Min: segment.Min.Sub(radiusVec), Max: segment.Max.Add(radiusVec)}
}

func (c *Capsule) ComputeMass(density float64) float64 {
	cylinder := math.Pi * c.Radius * c.Radius * (2 * c.HalfHeight)
	caps := (4.0 / 3.0) * math.Pi * math.Pow(c.Radius, 3)
	return density * (cylinder + caps)
}

func (c *Capsule) ComputeInertia(mass float64) mgl64.Vec3 {
	// Approximate with the enclosing cylinder
	r2 := c.Radius * c.Radius
	h := 2*c.HalfHeight + 2*c.Radius
	lateral := mass * (3*r2 + h*h) / 12.0
	axial := mass * r2 / 2.0
	return mgl64.Vec3{lateral, axial, lateral}
}

func (c *Capsule) Support(direction mgl64.Vec3) mgl64.Vec3 {
	dir := direction
	if dir.LenSqr() < 1e-12 {
		dir = mgl64.Vec3{0, 1, 0}
	}
	dir = dir.Normalize()

	support := dir.Mul(c.Radius)
	if dir.Y() >= 0 {
		support[1] += c.HalfHeight
	} else {
		support[1] -= c.HalfHeight
	}
	return support
}

// Feature returns both cap supports when the direction is mostly radial,
// so a lying capsule rests on a line of contact
func (c *Capsule) Feature(direction mgl64.Vec3) []mgl64.Vec3 {
	dir := direction
	if dir.LenSqr() < 1e-12 {
		dir = mgl64.Vec3{0, 1, 0}
	}
	dir = dir.Normalize()

	if math.Abs(dir.Y()) > 0.99 {
		return []mgl64.Vec3{c.Support(dir)}
	}

	radial := dir.Mul(c.Radius)
	return []mgl64.Vec3{
		radial.Add(mgl64.Vec3{0, -c.HalfHeight, 0}),
		radial.Add(mgl64.Vec3{0, +c.HalfHeight, 0}),
	}
}

// Cylinder represents a cylinder along the local Y axis
type Cylinder struct {
	Radius     float64
	HalfHeight float64
}

func (c *Cylinder) Type() ShapeType { return ShapeTypeCylinder }

func (c *Cylinder) AABB(transform Transform) AABB {
	// Use the enclosing capsule-style bound: conservative but cheap
	p0 := transform.ToWorld(mgl64.Vec3{0, -c.HalfHeight, 0})
	p1 := transform.ToWorld(mgl64.Vec3{0, +c.HalfHeight, 0})
	radiusVec := mgl64.Vec3{c.Radius, c.Radius, c.Radius}

	segment := AABB{Min: p0, Max: p0}.Union(AABB{Min: p1, Max: p1})
	return AABB{Min: segment.Min.Sub(radiusVec), Max: segment.Max.Add(radiusVec)}
}

func (c *Cylinder) ComputeMass(density float64) float64 {
	return density * math.Pi * c.Radius * c.Radius * (2 * c.HalfHeight)
}

func (c *Cylinder) ComputeInertia(mass float64) mgl64.Vec3 {
	r2 := c.Radius * c.Radius
	h := 2 * c.HalfHeight
	lateral := mass * (3*r2 + h*h) / 12.0
	axial := mass * r2 / 2.0
	return mgl64.Vec3{lateral, axial, lateral}
}

func (c *Cylinder) Support(direction mgl64.Vec3) mgl64.Vec3 {
	radial := mgl64.Vec3{direction.X(), 0, direction.Z()}
	var support mgl64.Vec3
	if radial.LenSqr() > 1e-12 {
		support = radial.Normalize().Mul(c.Radius)
	}
	if direction.Y() >= 0 {
		support[1] = c.HalfHeight
	} else {
		support[1] = -c.HalfHeight
	}
	return support
}

// Feature returns the cap rim when the direction is mostly axial, or the
// side edge when radial
func (c *Cylinder) Feature(direction mgl64.Vec3) []mgl64.Vec3 {
	dir := direction
	if dir.LenSqr() < 1e-12 {
		dir = mgl64.Vec3{0, 1, 0}
	}
	dir = dir.Normalize()

	y := c.HalfHeight
	if dir.Y() < 0 {
		y = -y
	}

	if math.Abs(dir.Y()) > 0.7 {
		// Cap face, sampled as a quad inscribed in the rim
		r := c.Radius * math.Sqrt2 / 2.0
		return []mgl64.Vec3{
			{-r, y, -r}, {-r, y, r}, {r, y, r}, {r, y, -r},
		}
	}

	radial := mgl64.Vec3{dir.X(), 0, dir.Z()}
	if radial.LenSqr() < 1e-12 {
		radial = mgl64.Vec3{1, 0, 0}
	}
	radial = radial.Normalize().Mul(c.Radius)
	return []mgl64.Vec3{
		radial.Add(mgl64.Vec3{0, -c.HalfHeight, 0}),
		radial.Add(mgl64.Vec3{0, +c.HalfHeight, 0}),
	}
}

// TangentBasis generates two orthonormal tangent vectors for a normal
func TangentBasis(normal mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	var tangent1 mgl64.Vec3
	if math.Abs(normal.X()) > 0.9 {
		tangent1 = mgl64.Vec3{0, 1, 0}
	} else {
		tangent1 = mgl64.Vec3{1, 0, 0}
	}

	tangent1 = tangent1.Sub(normal.Mul(tangent1.Dot(normal))).Normalize()
	tangent2 := normal.Cross(tangent1).Normalize()

	return tangent1, tangent2
}

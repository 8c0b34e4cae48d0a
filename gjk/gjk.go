// Package gjk implements the Gilbert-Johnson-Keerthi algorithm for convex
// collision detection.
//
// GJK detects whether two convex shapes overlap by testing if their
// Minkowski difference contains the origin. The algorithm builds a simplex
// incrementally, converging toward the origin in typically 3-6 iterations.
// Shapes are presented as support functions only, so any convex volume
// works without exposing its geometry.
//
// References:
//   - Gilbert, Johnson, Keerthi: "A Fast Procedure for Computing the Distance
//     Between Complex Objects in Three-Dimensional Space" (1988)
//   - Van den Bergen: "Collision Detection in Interactive 3D Environments" (2003)
package gjk

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// Support returns the world-space point of a convex volume furthest along
// the given direction
type Support func(direction mgl64.Vec3) mgl64.Vec3

// Simplex represents a set of 1-4 points in the Minkowski difference space.
// Size progression: 1 point → 2 (line) → 3 (triangle) → 4 (tetrahedron).
type Simplex struct {
	Points [4]mgl64.Vec3
	Count  int
}

func (s *Simplex) Reset() {
	s.Count = 0
}

var SimplexPool = sync.Pool{
	New: func() interface{} {
		return &Simplex{}
	},
}

// MinkowskiSupport computes a support point in the Minkowski difference (A - B)
func MinkowskiSupport(a, b Support, direction mgl64.Vec3) mgl64.Vec3 {
	return a(direction).Sub(b(direction.Mul(-1)))
}

// Intersect performs collision detection between two convex volumes given by
// their support functions. initialDir seeds the search; the vector from A's
// center toward B's center converges fastest.
//
// On intersection the simplex holds the final tetrahedron containing the
// origin, which EPA uses as its initial polytope.
func Intersect(a, b Support, initialDir mgl64.Vec3, simplex *Simplex) bool {
	direction := initialDir
	if direction.LenSqr() < 1e-8 {
		direction = mgl64.Vec3{1, 0, 0}
	}

	simplex.Points[0] = MinkowskiSupport(a, b, direction)
	simplex.Count = 1

	// Next search direction: toward the origin from the first point
	direction = simplex.Points[0].Mul(-1)

	if direction.LenSqr() < 1e-16 {
		// Shapes exactly touching at a point
		return true
	}

	const maxIterations = 32
	for i := 0; i < maxIterations; i++ {
		newPoint := MinkowskiSupport(a, b, direction)

		// If the new point does not pass the origin along the search
		// direction the origin is unreachable: separation proven.
		if newPoint.Dot(direction) <= 0 {
			return false
		}

		simplex.Points[simplex.Count] = newPoint
		simplex.Count++

		if containsOrigin(simplex, &direction) {
			return true
		}
	}

	// Failed to converge (very rare, indicates numerical issues)
	return false
}

// containsOrigin tests if the simplex contains the origin. It reduces the
// simplex to the feature closest to the origin and updates the search
// direction for the next iteration.
func containsOrigin(simplex *Simplex, direction *mgl64.Vec3) bool {
	switch simplex.Count {
	case 2:
		return line(simplex, direction)
	case 3:
		return triangle(simplex, direction)
	case 4:
		return tetrahedron(simplex, direction)
	}
	return false
}

// line handles the 2-point simplex. A line cannot contain the origin in 3D;
// the simplex is reduced to its closest Voronoi feature.
func line(simplex *Simplex, direction *mgl64.Vec3) bool {
	a := simplex.Points[1]
	b := simplex.Points[0]
	ab := b.Sub(a)
	ao := a.Mul(-1)

	// Degenerate: identical points
	if ab.LenSqr() < 1e-8 {
		if ao.LenSqr() < 1e-8 {
			return true
		}
		simplex.Points[0] = a
		simplex.Count = 1
		*direction = ao
		return false
	}

	// Voronoi region A: origin behind A, away from B
	if ab.Dot(ao) <= 0 {
		simplex.Points[0] = a
		simplex.Count = 1
		*direction = ao
		return false
	}

	abPerp := ab.Cross(ao).Cross(ab)
	if abPerp.LenSqr() < 1e-8 {
		// Origin lies on the segment
		return true
	}

	*direction = abPerp
	return false
}

// triangle handles the 3-point simplex, reducing to the closest edge or
// keeping the face and searching above/below its plane.
func triangle(simplex *Simplex, direction *mgl64.Vec3) bool {
	a := simplex.Points[2] // most recent point
	b := simplex.Points[1]
	c := simplex.Points[0]

	ab := b.Sub(a)
	ac := c.Sub(a)
	ao := a.Mul(-1)

	abc := ab.Cross(ac)

	// Collinear points: fall back to the line case
	if abc.LenSqr() < 1e-10 {
		simplex.Points[0] = b
		simplex.Points[1] = a
		simplex.Count = 2
		return line(simplex, direction)
	}

	// Edge AB region
	abPerp := ab.Cross(abc)
	if abPerp.Dot(ao) > 0 {
		simplex.Points[0] = b
		simplex.Points[1] = a
		simplex.Count = 2
		*direction = ab.Cross(ao).Cross(ab)
		return false
	}

	// Edge AC region
	acPerp := abc.Cross(ac)
	if acPerp.Dot(ao) > 0 {
		simplex.Points[0] = c
		simplex.Points[1] = a
		simplex.Count = 2
		*direction = ac.Cross(ao).Cross(ac)
		return false
	}

	if abc.Dot(ao) > 0 {
		*direction = abc
	} else {
		// Below the face: reverse winding to keep orientation consistent
		simplex.Points[0] = a
		simplex.Points[1] = c
		simplex.Points[2] = b
		simplex.Count = 3
		*direction = abc.Mul(-1)
	}

	return false
}

// tetrahedron handles the 4-point simplex, the only case that can contain
// the origin. Face normals point away from the opposite vertex.
func tetrahedron(simplex *Simplex, direction *mgl64.Vec3) bool {
	a := simplex.Points[3] // most recent point
	b := simplex.Points[2]
	c := simplex.Points[1]
	d := simplex.Points[0]

	ab := b.Sub(a)
	ac := c.Sub(a)
	ad := d.Sub(a)
	ao := a.Mul(-1)

	abc := ab.Cross(ac)
	if abc.Dot(ad) > 0 {
		abc = abc.Mul(-1)
	}

	acd := ac.Cross(ad)
	if acd.Dot(ab) > 0 {
		acd = acd.Mul(-1)
	}

	adb := ad.Cross(ab)
	if adb.Dot(ac) > 0 {
		adb = adb.Mul(-1)
	}

	// Degenerate tetrahedron: retry as triangle
	if abc.LenSqr() < 1e-10 || acd.LenSqr() < 1e-10 || adb.LenSqr() < 1e-10 {
		simplex.Points[0] = c
		simplex.Points[1] = b
		simplex.Points[2] = a
		simplex.Count = 3
		return triangle(simplex, direction)
	}

	if abc.Dot(ao) > 0 {
		simplex.Points[0] = c
		simplex.Points[1] = b
		simplex.Points[2] = a
		simplex.Count = 3
		*direction = abc
		return false
	}

	if acd.Dot(ao) > 0 {
		simplex.Points[0] = d
		simplex.Points[1] = c
		simplex.Points[2] = a
		simplex.Count = 3
		*direction = acd
		return false
	}

	if adb.Dot(ao) > 0 {
		simplex.Points[0] = b
		simplex.Points[1] = d
		simplex.Points[2] = a
		simplex.Count = 3
		*direction = adb
		return false
	}

	// Origin is inside every face
	return true
}

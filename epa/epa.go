// Package epa implements the Expanding Polytope Algorithm for computing
// penetration depth between overlapping convex volumes.
//
// EPA runs after GJK detects an intersection. It expands a polytope,
// seeded with GJK's final simplex, toward the boundary of the Minkowski
// difference; the face closest to the origin yields the minimum
// translation vector separating the shapes.
//
// References:
//   - Van den Bergen: "Proximity Queries and Penetration Depth Computation
//     on 3D Game Objects" (2001)
package epa

import (
	"fmt"

	"github.com/akmonengine/bedrock/gjk"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// MaxIterations limits polytope expansion. Typical convergence is
	// 5-15 iterations for simple shapes.
	MaxIterations = 32

	// ConvergenceTolerance defines when expansion stops: a new support
	// point improving the face distance by less than this means the
	// closest boundary face was found.
	ConvergenceTolerance = 0.001

	// MinFaceDistance is the minimum face distance before a face is
	// considered degenerate and skipped.
	MinFaceDistance = 0.0001
)

// Face is one triangular face of the expanding polytope
type Face struct {
	Points   [3]mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
}

type edge struct {
	a, b mgl64.Vec3
}

// Penetration expands the polytope seeded by the GJK simplex and returns
// the separating normal and penetration depth. The normal points from
// volume A toward volume B: translating B by normal·depth separates the
// shapes.
func Penetration(a, b gjk.Support, simplex *gjk.Simplex) (mgl64.Vec3, float64, error) {
	if simplex.Count < 4 {
		return degeneratePenetration(a, b, simplex)
	}

	faces := buildInitialFaces(simplex)

	for i := 0; i < MaxIterations; i++ {
		if len(faces) == 0 {
			break
		}

		closest := closestFaceIndex(faces)
		face := faces[closest]

		if face.Distance < MinFaceDistance {
			// Degenerate face near or behind the origin: drop and retry
			faces[closest] = faces[len(faces)-1]
			faces = faces[:len(faces)-1]
			continue
		}

		support := gjk.MinkowskiSupport(a, b, face.Normal)
		distance := support.Dot(face.Normal)

		if distance-face.Distance < ConvergenceTolerance {
			return face.Normal, face.Distance, nil
		}

		faces = expand(faces, support)
	}

	return mgl64.Vec3{}, 0, fmt.Errorf("epa: no convergence after %d iterations", MaxIterations)
}

// buildInitialFaces creates the polytope from the GJK tetrahedron
func buildInitialFaces(simplex *gjk.Simplex) []Face {
	p0, p1, p2, p3 := simplex.Points[0], simplex.Points[1], simplex.Points[2], simplex.Points[3]

	candidates := [4]Face{
		makeFaceOutward(p0, p1, p2, p3),
		makeFaceOutward(p0, p2, p3, p1),
		makeFaceOutward(p0, p3, p1, p2),
		makeFaceOutward(p1, p3, p2, p0),
	}

	faces := make([]Face, 0, 8)
	for _, f := range candidates {
		if f.Distance >= MinFaceDistance {
			faces = append(faces, f)
		}
	}

	// Need at least 3 valid faces for a closed polytope; keep everything
	// in the degenerate case.
	if len(faces) < 3 {
		faces = append(faces[:0], candidates[:]...)
	}
	return faces
}

// makeFaceOutward builds a face whose normal points away from the
// opposite vertex of the tetrahedron
func makeFaceOutward(p0, p1, p2, opposite mgl64.Vec3) Face {
	normal := p1.Sub(p0).Cross(p2.Sub(p0))
	if normal.LenSqr() < 1e-12 {
		return Face{Points: [3]mgl64.Vec3{p0, p1, p2}, Distance: -1}
	}
	normal = normal.Normalize()

	if normal.Dot(opposite.Sub(p0)) > 0 {
		normal = normal.Mul(-1)
	}

	return Face{
		Points:   [3]mgl64.Vec3{p0, p1, p2},
		Normal:   normal,
		Distance: normal.Dot(p0),
	}
}

func closestFaceIndex(faces []Face) int {
	best := 0
	for i := 1; i < len(faces); i++ {
		if faces[i].Distance < faces[best].Distance {
			best = i
		}
	}
	return best
}

// expand removes every face visible from the support point and re-closes
// the polytope across the horizon boundary
func expand(faces []Face, support mgl64.Vec3) []Face {
	var boundary []edge
	kept := faces[:0]

	for _, f := range faces {
		if f.Normal.Dot(support.Sub(f.Points[0])) > 0 {
			// Visible: collect its edges; edges shared by two visible
			// faces cancel out, the remainder forms the horizon.
			boundary = addBoundaryEdge(boundary, f.Points[0], f.Points[1])
			boundary = addBoundaryEdge(boundary, f.Points[1], f.Points[2])
			boundary = addBoundaryEdge(boundary, f.Points[2], f.Points[0])
		} else {
			kept = append(kept, f)
		}
	}

	for _, e := range boundary {
		normal := e.b.Sub(e.a).Cross(support.Sub(e.a))
		if normal.LenSqr() < 1e-12 {
			continue
		}
		normal = normal.Normalize()
		distance := normal.Dot(e.a)
		if distance < 0 {
			normal = normal.Mul(-1)
			distance = -distance
		}
		kept = append(kept, Face{
			Points:   [3]mgl64.Vec3{e.a, e.b, support},
			Normal:   normal,
			Distance: distance,
		})
	}

	return kept
}

func addBoundaryEdge(boundary []edge, a, b mgl64.Vec3) []edge {
	for i, e := range boundary {
		if vecEqual(e.a, b) && vecEqual(e.b, a) || vecEqual(e.a, a) && vecEqual(e.b, b) {
			boundary[i] = boundary[len(boundary)-1]
			return boundary[:len(boundary)-1]
		}
	}
	return append(boundary, edge{a: a, b: b})
}

func vecEqual(a, b mgl64.Vec3) bool {
	return a.Sub(b).LenSqr() < 1e-16
}

// degeneratePenetration estimates a contact when GJK returned fewer than
// four simplex points: the shapes touch near their boundary.
func degeneratePenetration(a, b gjk.Support, simplex *gjk.Simplex) (mgl64.Vec3, float64, error) {
	const estimate = 0.01

	if simplex.Count >= 2 {
		closest := simplex.Points[0]
		for i := 1; i < simplex.Count; i++ {
			if simplex.Points[i].LenSqr() < closest.LenSqr() {
				closest = simplex.Points[i]
			}
		}
		if closest.LenSqr() > 1e-12 {
			normal := closest.Normalize()
			return normal, closest.Len(), nil
		}
	}

	// Single point at the origin: fall back to the direction opposite the
	// Minkowski support along +Y
	dir := gjk.MinkowskiSupport(a, b, mgl64.Vec3{0, 1, 0})
	if dir.LenSqr() < 1e-12 {
		return mgl64.Vec3{0, 1, 0}, estimate, nil
	}
	return dir.Normalize().Mul(-1), estimate, nil
}

package collide

import (
	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/epa"
	"github.com/akmonengine/bedrock/gjk"
	"github.com/go-gl/mathgl/mgl64"
)

// collideConvexConvex is the generic kernel for convex pairs without an
// analytic routine. GJK proves intersection, EPA extracts the separating
// normal and depth, and the contact region is rebuilt by clipping the two
// shapes' contact features against each other.
func collideConvexConvex(a, b actor.Shape, ctx Context) Result {
	supportA := func(dir mgl64.Vec3) mgl64.Vec3 { return actor.SupportWorld(a, ctx.TransformA, dir) }
	supportB := func(dir mgl64.Vec3) mgl64.Vec3 { return actor.SupportWorld(b, ctx.TransformB, dir) }

	simplex := gjk.SimplexPool.Get().(*gjk.Simplex)
	defer gjk.SimplexPool.Put(simplex)
	simplex.Reset()

	initialDir := ctx.TransformB.Position.Sub(ctx.TransformA.Position)
	if !gjk.Intersect(supportA, supportB, initialDir, simplex) {
		return Result{}
	}

	// EPA normal points from A toward B; contact results carry the
	// opposite orientation.
	normalAB, depth, err := epa.Penetration(supportA, supportB, simplex)
	if err != nil {
		return Result{}
	}
	normal := normalAB.Mul(-1)

	points := clipFeatures(a, b, ctx, normalAB)
	if len(points) == 0 {
		points = []mgl64.Vec3{supportB(normal)}
	}

	var result Result
	for _, p := range points {
		pivotA := ctx.TransformA.ToLocal(p)
		pivotB := ctx.TransformB.ToLocal(p.Add(normal.Mul(depth)))
		result.add(pivotA, pivotB, normal, -depth)
	}
	return result
}

// clipFeatures computes the contact region between the features of the two
// shapes facing each other along the separating normal, using
// Sutherland-Hodgman clipping. Returns world-space points.
func clipFeatures(a, b actor.Shape, ctx Context, normalAB mgl64.Vec3) []mgl64.Vec3 {
	localNormalA := ctx.TransformA.InverseRotation.Rotate(normalAB)
	localNormalB := ctx.TransformB.InverseRotation.Rotate(normalAB.Mul(-1))

	featureA := transformFeature(a.Feature(localNormalA), ctx.TransformA)
	featureB := transformFeature(b.Feature(localNormalB), ctx.TransformB)

	// The feature with more vertices serves as the reference
	var incident, reference []mgl64.Vec3
	if len(featureB) <= len(featureA) {
		incident, reference = featureB, featureA
	} else {
		incident, reference = featureA, featureB
	}

	if len(incident) == 1 {
		return incident
	}
	if len(reference) < 3 {
		// Edge-edge or point contact: midpoint of the incident feature
		return []mgl64.Vec3{centroid(incident)}
	}

	clipped := clipAgainstSidePlanes(incident, reference, normalAB)

	// Final clip against the reference face plane: keep points behind it
	refNormal := reference[1].Sub(reference[0]).Cross(reference[2].Sub(reference[0]))
	if refNormal.LenSqr() < 1e-12 {
		return clipped
	}
	refNormal = refNormal.Normalize()
	if refNormal.Dot(normalAB) < 0 {
		refNormal = refNormal.Mul(-1)
	}

	offset := reference[0].Dot(refNormal)
	out := clipped[:0]
	for _, p := range clipped {
		if p.Dot(refNormal)-offset <= actor.ContactMargin {
			out = append(out, p)
		}
	}
	return out
}

// clipAgainstSidePlanes trims the incident polygon to the lateral bounds of
// the reference polygon
func clipAgainstSidePlanes(incident, reference []mgl64.Vec3, normal mgl64.Vec3) []mgl64.Vec3 {
	clipped := append([]mgl64.Vec3(nil), incident...)
	center := centroid(reference)

	for i := 0; i < len(reference) && len(clipped) > 0; i++ {
		v1 := reference[i]
		v2 := reference[(i+1)%len(reference)]

		sideNormal := v2.Sub(v1).Cross(normal)
		if sideNormal.LenSqr() < 1e-12 {
			continue
		}
		sideNormal = sideNormal.Normalize()
		// Orient inward, toward the reference centroid
		if center.Sub(v1).Dot(sideNormal) < 0 {
			sideNormal = sideNormal.Mul(-1)
		}

		clipped = clipPolygonAgainstPlane(clipped, v1, sideNormal)
	}
	return clipped
}

// clipPolygonAgainstPlane keeps the part of the polygon on the positive
// side of the plane, inserting intersection points on crossing edges
func clipPolygonAgainstPlane(polygon []mgl64.Vec3, planePoint, planeNormal mgl64.Vec3) []mgl64.Vec3 {
	var out []mgl64.Vec3

	for i := 0; i < len(polygon); i++ {
		current := polygon[i]
		next := polygon[(i+1)%len(polygon)]

		currentInside := current.Sub(planePoint).Dot(planeNormal) >= 0
		nextInside := next.Sub(planePoint).Dot(planeNormal) >= 0

		if currentInside {
			out = append(out, current)
		}
		if currentInside != nextInside {
			out = append(out, lineIntersectPlane(current, next, planePoint, planeNormal))
		}
	}
	return out
}

func lineIntersectPlane(p1, p2, planePoint, planeNormal mgl64.Vec3) mgl64.Vec3 {
	d := p2.Sub(p1)
	denom := d.Dot(planeNormal)
	if denom > -1e-12 && denom < 1e-12 {
		return p1
	}
	t := planePoint.Sub(p1).Dot(planeNormal) / denom
	return p1.Add(d.Mul(clamp(t, 0, 1)))
}

func centroid(points []mgl64.Vec3) mgl64.Vec3 {
	var sum mgl64.Vec3
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1.0 / float64(len(points)))
}

func transformFeature(feature []mgl64.Vec3, transform actor.Transform) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(feature))
	for i, v := range feature {
		out[i] = transform.ToWorld(v)
	}
	return out
}

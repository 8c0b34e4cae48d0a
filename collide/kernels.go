package collide

import (
	"math"

	"github.com/akmonengine/bedrock/actor"
	"github.com/go-gl/mathgl/mgl64"
)

func collideSphereSphere(a, b actor.Shape, ctx Context) Result {
	sa := a.(*actor.Sphere)
	sb := b.(*actor.Sphere)

	d := ctx.TransformA.Position.Sub(ctx.TransformB.Position)
	centerDist := d.Len()

	var normal mgl64.Vec3
	if centerDist > 1e-9 {
		normal = d.Mul(1.0 / centerDist)
	} else {
		normal = mgl64.Vec3{0, 1, 0}
	}

	distance := centerDist - sa.Radius - sb.Radius
	if distance > ctx.Threshold {
		return Result{}
	}

	pointOnA := ctx.TransformA.Position.Sub(normal.Mul(sa.Radius))
	pointOnB := ctx.TransformB.Position.Add(normal.Mul(sb.Radius))

	var result Result
	result.add(ctx.TransformA.ToLocal(pointOnA), ctx.TransformB.ToLocal(pointOnB), normal, distance)
	return result
}

func collideSpherePlane(a, b actor.Shape, ctx Context) Result {
	sphere := a.(*actor.Sphere)
	plane := b.(*actor.Plane)

	normal := ctx.TransformB.Rotation.Rotate(plane.Normal)
	planePoint := ctx.TransformB.ToWorld(plane.Normal.Mul(plane.Distance))

	center := ctx.TransformA.Position
	distance := center.Sub(planePoint).Dot(normal) - sphere.Radius
	if distance > ctx.Threshold {
		return Result{}
	}

	pointOnA := center.Sub(normal.Mul(sphere.Radius))
	pointOnB := pointOnA.Sub(normal.Mul(distance))

	var result Result
	result.add(ctx.TransformA.ToLocal(pointOnA), ctx.TransformB.ToLocal(pointOnB), normal, distance)
	return result
}

func collideSphereBox(a, b actor.Shape, ctx Context) Result {
	sphere := a.(*actor.Sphere)
	box := b.(*actor.Box)

	// Sphere center in box-local space
	center := ctx.TransformB.ToLocal(ctx.TransformA.Position)
	h := box.HalfExtents

	closest := mgl64.Vec3{
		clamp(center.X(), -h.X(), h.X()),
		clamp(center.Y(), -h.Y(), h.Y()),
		clamp(center.Z(), -h.Z(), h.Z()),
	}

	var localNormal mgl64.Vec3
	var distance float64

	delta := center.Sub(closest)
	if delta.LenSqr() > 1e-12 {
		// Center outside the box
		d := delta.Len()
		localNormal = delta.Mul(1.0 / d)
		distance = d - sphere.Radius
	} else {
		// Center inside: push out along the axis of least penetration
		best := 0
		bestDepth := math.MaxFloat64
		sign := 1.0
		for i := 0; i < 3; i++ {
			depth := h[i] - math.Abs(center[i])
			if depth < bestDepth {
				bestDepth = depth
				best = i
				if center[i] < 0 {
					sign = -1.0
				} else {
					sign = 1.0
				}
			}
		}
		localNormal = mgl64.Vec3{}
		localNormal[best] = sign
		closest[best] = sign * h[best]
		distance = -bestDepth - sphere.Radius
	}

	if distance > ctx.Threshold {
		return Result{}
	}

	normal := ctx.TransformB.Rotation.Rotate(localNormal)
	pointOnA := ctx.TransformA.Position.Sub(normal.Mul(sphere.Radius))

	var result Result
	result.add(ctx.TransformA.ToLocal(pointOnA), closest, normal, distance)
	return result
}

// collideConvexPlane tests the contact feature of any convex shape against
// an infinite plane, reporting every feature vertex within the threshold
func collideConvexPlane(a, b actor.Shape, ctx Context) Result {
	plane := b.(*actor.Plane)

	normal := ctx.TransformB.Rotation.Rotate(plane.Normal)
	planePoint := ctx.TransformB.ToWorld(plane.Normal.Mul(plane.Distance))

	// Feature of A facing the plane
	localDir := ctx.TransformA.InverseRotation.Rotate(normal.Mul(-1))
	feature := a.Feature(localDir)

	var result Result
	for _, v := range feature {
		world := ctx.TransformA.ToWorld(v)
		distance := world.Sub(planePoint).Dot(normal)
		if distance > ctx.Threshold {
			continue
		}
		pointOnB := world.Sub(normal.Mul(distance))
		result.add(v, ctx.TransformB.ToLocal(pointOnB), normal, distance)
	}
	return result
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

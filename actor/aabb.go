package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AABB represents an axis-aligned bounding box
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// ContainsPoint checks if a point is inside the AABB
func (a AABB) ContainsPoint(point mgl64.Vec3) bool {
	return point.X() >= a.Min.X() && point.X() <= a.Max.X() &&
		point.Y() >= a.Min.Y() && point.Y() <= a.Max.Y() &&
		point.Z() >= a.Min.Z() && point.Z() <= a.Max.Z()
}

// Overlaps checks if two AABBs overlap
func (a AABB) Overlaps(other AABB) bool {
	// AABBs overlap if they overlap on all three axes
	return a.Max.X() >= other.Min.X() && a.Min.X() <= other.Max.X() &&
		a.Max.Y() >= other.Min.Y() && a.Min.Y() <= other.Max.Y() &&
		a.Max.Z() >= other.Min.Z() && a.Min.Z() <= other.Max.Z()
}

// Contains checks if the other AABB lies entirely inside this one
func (a AABB) Contains(other AABB) bool {
	return a.Min.X() <= other.Min.X() && a.Max.X() >= other.Max.X() &&
		a.Min.Y() <= other.Min.Y() && a.Max.Y() >= other.Max.Y() &&
		a.Min.Z() <= other.Min.Z() && a.Max.Z() >= other.Max.Z()
}

// Inset shrinks the AABB by the given amount on every side.
// A negative amount expands it instead.
func (a AABB) Inset(amount float64) AABB {
	m := mgl64.Vec3{amount, amount, amount}
	return AABB{Min: a.Min.Add(m), Max: a.Max.Sub(m)}
}

// Union returns the smallest AABB enclosing both boxes
func (a AABB) Union(other AABB) AABB {
	return AABB{
		Min: mgl64.Vec3{
			math.Min(a.Min.X(), other.Min.X()),
			math.Min(a.Min.Y(), other.Min.Y()),
			math.Min(a.Min.Z(), other.Min.Z()),
		},
		Max: mgl64.Vec3{
			math.Max(a.Max.X(), other.Max.X()),
			math.Max(a.Max.Y(), other.Max.Y()),
			math.Max(a.Max.Z(), other.Max.Z()),
		},
	}
}

// Center returns the midpoint of the AABB
func (a AABB) Center() mgl64.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// SurfaceArea returns the total surface area of the box, used as the
// cost metric when descending the dynamic tree
func (a AABB) SurfaceArea() float64 {
	d := a.Max.Sub(a.Min)
	return 2.0 * (d.X()*d.Y() + d.Y()*d.Z() + d.Z()*d.X())
}

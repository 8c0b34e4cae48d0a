// Package collide implements the narrowphase: shape-pair collision kernels
// behind a tag-indexed dispatch table, and persistent contact manifolds that
// accumulate, refresh and retire contact points across steps.
package collide

import (
	"github.com/akmonengine/bedrock/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Context carries the configuration of the two bodies into a kernel
type Context struct {
	TransformA actor.Transform
	TransformB actor.Transform
	// Threshold is the maximum separation at which kernels still report
	// candidate points
	Threshold float64
}

// Swapped returns the context with the two bodies exchanged
func (ctx Context) Swapped() Context {
	return Context{
		TransformA: ctx.TransformB,
		TransformB: ctx.TransformA,
		Threshold:  ctx.Threshold,
	}
}

// ResultPoint is one candidate contact produced by a kernel
type ResultPoint struct {
	// PivotA and PivotB are the contact pivots in each body's local frame
	PivotA mgl64.Vec3
	PivotB mgl64.Vec3
	// Normal is the world-space contact normal, pointing from body B
	// toward body A
	Normal mgl64.Vec3
	// Distance is the signed separation along the normal,
	// negative when penetrating
	Distance float64
}

// Result is the output of a collision kernel
type Result struct {
	Points []ResultPoint
}

func (r *Result) add(pivotA, pivotB, normal mgl64.Vec3, distance float64) {
	r.Points = append(r.Points, ResultPoint{
		PivotA:   pivotA,
		PivotB:   pivotB,
		Normal:   normal,
		Distance: distance,
	})
}

// swapped flips a result produced with the bodies exchanged back into the
// caller's ordering
func (r Result) swapped() Result {
	var out Result
	for _, p := range r.Points {
		out.Points = append(out.Points, ResultPoint{
			PivotA:   p.PivotB,
			PivotB:   p.PivotA,
			Normal:   p.Normal.Mul(-1),
			Distance: p.Distance,
		})
	}
	return out
}

package collide

import (
	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// MaxPoints is the capacity of a contact manifold
	MaxPoints = 4

	// CachingThreshold is the merging radius: a candidate whose pivot
	// lands within this distance of an existing point refreshes that
	// point instead of inserting a new one
	CachingThreshold = 0.02

	// BreakingThreshold retires points whose pivots have drifted apart
	// laterally on the contact plane
	BreakingThreshold = actor.ContactMargin
)

// ContactPoint is one persistent contact inside a manifold
type ContactPoint struct {
	// PivotA and PivotB are the contact pivots in each body's local frame
	PivotA mgl64.Vec3
	PivotB mgl64.Vec3
	// Normal is the world-space contact normal pointing from body B
	// toward body A
	Normal mgl64.Vec3
	// LocalNormal is the normal expressed in body B's local frame
	LocalNormal mgl64.Vec3
	// Distance is the signed separation, negative when penetrating
	Distance float64

	Restitution float64
	Friction    float64

	// Lifetime counts the steps this point has persisted
	Lifetime uint32

	// Accumulated impulses carried across steps for warm-starting
	NormalImpulse   float64
	FrictionImpulse float64
}

// Manifold is a persistent collision record between two bodies. The body
// order is stable for the manifold's lifetime.
type Manifold struct {
	Body [2]registry.Entity

	// SeparationThreshold is the AABB separation beyond which the
	// manifold is destroyed; at least the shape margin
	SeparationThreshold float64

	NumPoints int
	Points    [MaxPoints]ContactPoint
}

// MapEntities translates the body references when the manifold crosses a
// registry boundary
func (m *Manifold) MapEntities(translate func(registry.Entity) registry.Entity) {
	m.Body[0] = translate(m.Body[0])
	m.Body[1] = translate(m.Body[1])
}

// NewManifold creates an empty manifold between two bodies
func NewManifold(bodyA, bodyB registry.Entity, separationThreshold float64) Manifold {
	return Manifold{
		Body:                [2]registry.Entity{bodyA, bodyB},
		SeparationThreshold: separationThreshold,
	}
}

// Merge folds a kernel result point into the manifold. Candidates landing
// within the caching radius of an existing point refresh it; otherwise the
// point is inserted, or, once the manifold is full, replaces the existing
// point whose swap yields the configuration of largest area.
func (m *Manifold) Merge(rp ResultPoint, transformB actor.Transform, restitution, friction float64) {
	localNormal := transformB.InverseRotation.Rotate(rp.Normal)

	if idx := m.nearestPoint(rp); idx >= 0 {
		cp := &m.Points[idx]
		cp.PivotA = rp.PivotA
		cp.PivotB = rp.PivotB
		cp.Normal = rp.Normal
		cp.LocalNormal = localNormal
		cp.Distance = rp.Distance
		return
	}

	cp := ContactPoint{
		PivotA:      rp.PivotA,
		PivotB:      rp.PivotB,
		Normal:      rp.Normal,
		LocalNormal: localNormal,
		Distance:    rp.Distance,
		Restitution: restitution,
		Friction:    friction,
	}

	if m.NumPoints < MaxPoints {
		m.Points[m.NumPoints] = cp
		m.NumPoints++
		return
	}

	if idx := m.replacementIndex(cp); idx >= 0 {
		m.Points[idx] = cp
	}
}

// nearestPoint returns the index of an existing point whose pivot lies
// within the caching radius of the candidate, or -1
func (m *Manifold) nearestPoint(rp ResultPoint) int {
	shortest := CachingThreshold * CachingThreshold
	nearest := -1

	for i := 0; i < m.NumPoints; i++ {
		cp := &m.Points[i]
		if dA := rp.PivotA.Sub(cp.PivotA).LenSqr(); dA < shortest {
			shortest = dA
			nearest = i
		}
		if dB := rp.PivotB.Sub(cp.PivotB).LenSqr(); dB < shortest {
			shortest = dB
			nearest = i
		}
	}
	return nearest
}

// replacementIndex picks which of the four points the candidate should
// replace: among the four replacement configurations, the one spanning the
// largest area on the contact tangent plane while still retaining the
// deepest penetration. Returns -1 when no configuration qualifies.
func (m *Manifold) replacementIndex(candidate ContactPoint) int {
	deepest := candidate.Distance
	for i := 0; i < MaxPoints; i++ {
		if m.Points[i].Distance < deepest {
			deepest = m.Points[i].Distance
		}
	}

	tangent1, tangent2 := actor.TangentBasis(candidate.Normal)
	project := func(p mgl64.Vec3) mgl64.Vec3 {
		return mgl64.Vec3{p.Dot(tangent1), p.Dot(tangent2), 0}
	}

	bestArea := 0.0
	best := -1
	for i := 0; i < MaxPoints; i++ {
		var quad [MaxPoints]mgl64.Vec3
		minDistance := candidate.Distance
		for j := 0; j < MaxPoints; j++ {
			cp := &m.Points[j]
			if j == i {
				quad[j] = project(candidate.PivotA)
			} else {
				quad[j] = project(cp.PivotA)
				if cp.Distance < minDistance {
					minDistance = cp.Distance
				}
			}
		}

		// A configuration losing the deepest point never qualifies
		if minDistance > deepest+1e-12 {
			continue
		}

		if area := quadArea(quad); area > bestArea {
			bestArea = area
			best = i
		}
	}
	return best
}

// quadArea returns the area of the quadrilateral spanned by four planar
// points, half the cross product of its diagonals
func quadArea(p [MaxPoints]mgl64.Vec3) float64 {
	d1 := p[2].Sub(p[0])
	d2 := p[3].Sub(p[1])
	return 0.5 * d1.Cross(d2).Len()
}

// Refresh recomputes world normals and distances of every point from the
// bodies' current transforms
func (m *Manifold) Refresh(transformA, transformB actor.Transform) {
	for i := 0; i < m.NumPoints; i++ {
		cp := &m.Points[i]
		cp.Normal = transformB.Rotation.Rotate(cp.LocalNormal)
		pivotA := transformA.ToWorld(cp.PivotA)
		pivotB := transformB.ToWorld(cp.PivotB)
		cp.Distance = pivotA.Sub(pivotB).Dot(cp.Normal)
	}
}

// Prune removes points that have separated past the manifold threshold or
// drifted laterally beyond the breaking threshold
func (m *Manifold) Prune(transformA, transformB actor.Transform) {
	for i := m.NumPoints - 1; i >= 0; i-- {
		cp := &m.Points[i]

		pivotA := transformA.ToWorld(cp.PivotA)
		pivotB := transformB.ToWorld(cp.PivotB)
		d := pivotA.Sub(pivotB)
		normalDistance := d.Dot(cp.Normal)
		tangential := d.Sub(cp.Normal.Mul(normalDistance))

		if normalDistance < m.SeparationThreshold &&
			tangential.LenSqr() < BreakingThreshold*BreakingThreshold {
			continue
		}

		// Swap with last
		m.NumPoints--
		m.Points[i] = m.Points[m.NumPoints]
		m.Points[m.NumPoints] = ContactPoint{}
	}
}

// Age increments the lifetime of every persisted point
func (m *Manifold) Age() {
	for i := 0; i < m.NumPoints; i++ {
		m.Points[i].Lifetime++
	}
}

package collide

import (
	"math"
	"testing"

	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
)

func identityTransforms() (actor.Transform, actor.Transform) {
	return actor.NewTransform(), actor.NewTransform()
}

func resultPoint(x, z, distance float64) ResultPoint {
	return ResultPoint{
		PivotA:   mgl64.Vec3{x, -0.5, z},
		PivotB:   mgl64.Vec3{x, 0.5, z},
		Normal:   mgl64.Vec3{0, 1, 0},
		Distance: distance,
	}
}

func TestManifold_InsertUpToFour(t *testing.T) {
	m := NewManifold(registry.Entity(1), registry.Entity(2), 0.08)
	_, tb := identityTransforms()

	m.Merge(resultPoint(-0.5, -0.5, -0.01), tb, 0, 0.5)
	m.Merge(resultPoint(0.5, -0.5, -0.01), tb, 0, 0.5)
	m.Merge(resultPoint(0.5, 0.5, -0.01), tb, 0, 0.5)
	m.Merge(resultPoint(-0.5, 0.5, -0.01), tb, 0, 0.5)

	if m.NumPoints != 4 {
		t.Fatalf("NumPoints = %d, want 4", m.NumPoints)
	}

	for i := 0; i < m.NumPoints; i++ {
		cp := m.Points[i]
		if cp.Friction != 0.5 {
			t.Errorf("friction = %v, want 0.5", cp.Friction)
		}
		if math.Abs(cp.Normal.Len()-1) > 1e-6 {
			t.Errorf("|normal| = %v, want 1", cp.Normal.Len())
		}
	}
}

func TestManifold_MergeRefreshesNearbyPoint(t *testing.T) {
	m := NewManifold(registry.Entity(1), registry.Entity(2), 0.08)
	_, tb := identityTransforms()

	m.Merge(resultPoint(0, 0, -0.01), tb, 0, 0.5)
	if m.NumPoints != 1 {
		t.Fatalf("NumPoints = %d, want 1", m.NumPoints)
	}

	// A candidate within the caching radius refreshes instead of inserting
	near := resultPoint(0.005, 0, -0.03)
	m.Merge(near, tb, 0, 0.5)

	if m.NumPoints != 1 {
		t.Fatalf("NumPoints after merge = %d, want 1", m.NumPoints)
	}
	if math.Abs(m.Points[0].Distance-(-0.03)) > 1e-9 {
		t.Errorf("refreshed distance = %v, want -0.03", m.Points[0].Distance)
	}
}

func TestManifold_ReplacementKeepsDeepestAndArea(t *testing.T) {
	m := NewManifold(registry.Entity(1), registry.Entity(2), 0.08)
	_, tb := identityTransforms()

	// Four corners, one markedly deepest
	m.Merge(resultPoint(-0.5, -0.5, -0.05), tb, 0, 0.5)
	m.Merge(resultPoint(0.5, -0.5, -0.01), tb, 0, 0.5)
	m.Merge(resultPoint(0.5, 0.5, -0.01), tb, 0, 0.5)
	m.Merge(resultPoint(-0.5, 0.5, -0.01), tb, 0, 0.5)

	// A shallow candidate in the middle must not evict the deepest point
	m.Merge(resultPoint(0.1, 0.1, -0.005), tb, 0, 0.5)

	if m.NumPoints != 4 {
		t.Fatalf("NumPoints = %d, want 4", m.NumPoints)
	}

	deepest := 0.0
	for i := 0; i < m.NumPoints; i++ {
		if m.Points[i].Distance < deepest {
			deepest = m.Points[i].Distance
		}
	}
	if math.Abs(deepest-(-0.05)) > 1e-9 {
		t.Errorf("deepest after replacement = %v, want -0.05", deepest)
	}
}

func TestManifold_PruneSeparatedPoints(t *testing.T) {
	m := NewManifold(registry.Entity(1), registry.Entity(2), 0.08)
	tb := actor.NewTransform()

	m.Merge(resultPoint(0, 0, -0.01), tb, 0, 0.5)

	// Lift body A: the pivots separate along the normal past the
	// manifold threshold.
	ta := actor.NewTransformAt(mgl64.Vec3{0, 1.2, 0}, mgl64.QuatIdent())
	m.Refresh(ta, tb)
	m.Prune(ta, tb)
	if m.NumPoints != 0 {
		t.Fatalf("NumPoints = %d, want 0 after separation", m.NumPoints)
	}
}

func TestManifold_PruneKeepsTouchingPoints(t *testing.T) {
	m := NewManifold(registry.Entity(1), registry.Entity(2), 0.08)
	ta := actor.NewTransformAt(mgl64.Vec3{0, 0.99, 0}, mgl64.QuatIdent())
	tb := actor.NewTransform()

	m.Merge(resultPoint(0, 0, -0.01), tb, 0, 0.5)
	m.Refresh(ta, tb)
	m.Prune(ta, tb)
	if m.NumPoints != 1 {
		t.Fatalf("NumPoints = %d, want 1", m.NumPoints)
	}
	if math.Abs(m.Points[0].Distance-(-0.01)) > 1e-9 {
		t.Errorf("refreshed distance = %v, want -0.01", m.Points[0].Distance)
	}
}

func TestManifold_PruneLateralDrift(t *testing.T) {
	m := NewManifold(registry.Entity(1), registry.Entity(2), 0.08)
	tb := actor.NewTransform()

	m.Merge(resultPoint(0, 0, -0.01), tb, 0, 0.5)

	// Slide body A sideways: pivots drift apart on the tangent plane
	ta := actor.NewTransformAt(mgl64.Vec3{0.2, 0.99, 0}, mgl64.QuatIdent())
	m.Refresh(ta, tb)
	m.Prune(ta, tb)
	if m.NumPoints != 0 {
		t.Fatalf("NumPoints = %d, want 0 after lateral drift", m.NumPoints)
	}
}

func TestManifold_AgeIncrementsLifetime(t *testing.T) {
	m := NewManifold(registry.Entity(1), registry.Entity(2), 0.08)
	_, tb := identityTransforms()

	m.Merge(resultPoint(0, 0, -0.01), tb, 0, 0.5)
	m.Age()
	m.Age()

	if m.Points[0].Lifetime != 2 {
		t.Errorf("lifetime = %d, want 2", m.Points[0].Lifetime)
	}
}

func TestManifold_BodyOrderIsStable(t *testing.T) {
	m := NewManifold(registry.Entity(7), registry.Entity(3), 0.08)
	if m.Body[0] != registry.Entity(7) || m.Body[1] != registry.Entity(3) {
		t.Error("manifold body order must be preserved as given")
	}
}

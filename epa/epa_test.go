package epa

import (
	"math"
	"testing"

	"github.com/akmonengine/bedrock/gjk"
	"github.com/go-gl/mathgl/mgl64"
)

func sphereSupport(center mgl64.Vec3, radius float64) gjk.Support {
	return func(direction mgl64.Vec3) mgl64.Vec3 {
		if direction.LenSqr() < 1e-12 {
			direction = mgl64.Vec3{1, 0, 0}
		}
		return center.Add(direction.Normalize().Mul(radius))
	}
}

func boxSupport(center mgl64.Vec3, half mgl64.Vec3) gjk.Support {
	return func(direction mgl64.Vec3) mgl64.Vec3 {
		p := center
		for i := 0; i < 3; i++ {
			if direction[i] >= 0 {
				p[i] += half[i]
			} else {
				p[i] -= half[i]
			}
		}
		return p
	}
}

func TestPenetration_Spheres(t *testing.T) {
	a := sphereSupport(mgl64.Vec3{0, 0, 0}, 1.0)
	b := sphereSupport(mgl64.Vec3{1.5, 0, 0}, 1.0)

	var simplex gjk.Simplex
	if !gjk.Intersect(a, b, mgl64.Vec3{1.5, 0, 0}, &simplex) {
		t.Fatal("expected intersection")
	}

	normal, depth, err := Penetration(a, b, &simplex)
	if err != nil {
		t.Fatal(err)
	}

	// Expected depth: radii sum minus center distance
	if math.Abs(depth-0.5) > 0.05 {
		t.Errorf("depth = %v, want ~0.5", depth)
	}
	// Normal points from A toward B
	if normal.X() < 0.9 {
		t.Errorf("normal = %v, want ~+X", normal)
	}
}

func TestPenetration_StackedBoxes(t *testing.T) {
	a := boxSupport(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0.5, 0.5, 0.5})
	b := boxSupport(mgl64.Vec3{0, 0.9, 0}, mgl64.Vec3{0.5, 0.5, 0.5})

	var simplex gjk.Simplex
	if !gjk.Intersect(a, b, mgl64.Vec3{0, 0.9, 0}, &simplex) {
		t.Fatal("expected intersection")
	}

	normal, depth, err := Penetration(a, b, &simplex)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(depth-0.1) > 0.01 {
		t.Errorf("depth = %v, want ~0.1", depth)
	}
	if normal.Y() < 0.99 {
		t.Errorf("normal = %v, want +Y", normal)
	}
	if math.Abs(normal.Len()-1) > 1e-6 {
		t.Errorf("|normal| = %v, want 1", normal.Len())
	}
}

func TestPenetration_DegenerateSimplex(t *testing.T) {
	a := sphereSupport(mgl64.Vec3{0, 0, 0}, 1.0)
	b := sphereSupport(mgl64.Vec3{0.5, 0, 0}, 1.0)

	simplex := &gjk.Simplex{Count: 1, Points: [4]mgl64.Vec3{{0.01, 0, 0}}}
	normal, depth, err := Penetration(a, b, simplex)
	if err != nil {
		t.Fatal(err)
	}
	if depth <= 0 {
		t.Errorf("depth = %v, want positive", depth)
	}
	if math.Abs(normal.Len()-1) > 1e-6 {
		t.Errorf("|normal| = %v, want 1", normal.Len())
	}
}

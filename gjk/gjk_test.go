package gjk

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func sphereSupport(center mgl64.Vec3, radius float64) Support {
	return func(direction mgl64.Vec3) mgl64.Vec3 {
		if direction.LenSqr() < 1e-12 {
			direction = mgl64.Vec3{1, 0, 0}
		}
		return center.Add(direction.Normalize().Mul(radius))
	}
}

func boxSupport(center mgl64.Vec3, half mgl64.Vec3) Support {
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

func TestIntersect_OverlappingSpheres(t *testing.T) {
	a := sphereSupport(mgl64.Vec3{0, 0, 0}, 1.0)
	b := sphereSupport(mgl64.Vec3{1.5, 0, 0}, 1.0)

	var simplex Simplex
	if !Intersect(a, b, mgl64.Vec3{1.5, 0, 0}, &simplex) {
		t.Fatal("overlapping spheres should intersect")
	}
}

func TestIntersect_SeparatedSpheres(t *testing.T) {
	a := sphereSupport(mgl64.Vec3{0, 0, 0}, 1.0)
	b := sphereSupport(mgl64.Vec3{3, 0, 0}, 1.0)

	var simplex Simplex
	if Intersect(a, b, mgl64.Vec3{3, 0, 0}, &simplex) {
		t.Fatal("separated spheres should not intersect")
	}
}

func TestIntersect_BoxesEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		centerB mgl64.Vec3
		want    bool
	}{
		{"deep overlap", mgl64.Vec3{0.5, 0, 0}, true},
		{"shallow overlap", mgl64.Vec3{0.98, 0, 0}, true},
		{"clearly separated", mgl64.Vec3{3, 0, 0}, false},
		{"diagonal overlap", mgl64.Vec3{0.9, 0.9, 0.9}, true},
		{"diagonal separated", mgl64.Vec3{1.5, 1.5, 1.5}, false},
	}

	half := mgl64.Vec3{0.5, 0.5, 0.5}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := boxSupport(mgl64.Vec3{}, half)
			b := boxSupport(tt.centerB, half)

			var simplex Simplex
			got := Intersect(a, b, tt.centerB, &simplex)
			if got != tt.want {
				t.Errorf("Intersect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMinkowskiSupport(t *testing.T) {
	a := boxSupport(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})
	b := boxSupport(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})

	got := MinkowskiSupport(a, b, mgl64.Vec3{1, 0, 0})
	if got.X() != 2 {
		t.Errorf("support x = %v, want 2", got.X())
	}
}

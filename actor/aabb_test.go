package actor

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestAABB_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b AABB
		want bool
	}{
		{
			name: "overlapping",
			a:    AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{2, 2, 2}},
			b:    AABB{Min: mgl64.Vec3{1, 1, 1}, Max: mgl64.Vec3{3, 3, 3}},
			want: true,
		},
		{
			name: "separated",
			a:    AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}},
			b:    AABB{Min: mgl64.Vec3{2, 2, 2}, Max: mgl64.Vec3{3, 3, 3}},
			want: false,
		},
		{
			name: "touching faces",
			a:    AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}},
			b:    AABB{Min: mgl64.Vec3{1, 0, 0}, Max: mgl64.Vec3{2, 1, 1}},
			want: true,
		},
		{
			name: "contained",
			a:    AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{4, 4, 4}},
			b:    AABB{Min: mgl64.Vec3{1, 1, 1}, Max: mgl64.Vec3{2, 2, 2}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAABB_Inset(t *testing.T) {
	a := AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{4, 4, 4}}

	shrunk := a.Inset(1)
	if shrunk.Min != (mgl64.Vec3{1, 1, 1}) || shrunk.Max != (mgl64.Vec3{3, 3, 3}) {
		t.Errorf("Inset(1) = %v..%v", shrunk.Min, shrunk.Max)
	}

	grown := a.Inset(-1)
	if grown.Min != (mgl64.Vec3{-1, -1, -1}) || grown.Max != (mgl64.Vec3{5, 5, 5}) {
		t.Errorf("Inset(-1) = %v..%v", grown.Min, grown.Max)
	}
}

func TestAABB_InsetSeparatesTouchingBoxes(t *testing.T) {
	a := AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}}
	b := AABB{Min: mgl64.Vec3{1, 0, 0}, Max: mgl64.Vec3{2, 1, 1}}

	if a.Inset(0.01).Overlaps(b) {
		t.Error("inset box should not overlap a box it only touched")
	}
}

func TestAABB_Union(t *testing.T) {
	a := AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}}
	b := AABB{Min: mgl64.Vec3{-1, 2, 0}, Max: mgl64.Vec3{0.5, 3, 4}}

	u := a.Union(b)
	if u.Min != (mgl64.Vec3{-1, 0, 0}) || u.Max != (mgl64.Vec3{1, 3, 4}) {
		t.Errorf("Union = %v..%v", u.Min, u.Max)
	}
}

func TestAABB_SurfaceArea(t *testing.T) {
	a := AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 2, 3}}
	want := 2.0 * (1*2 + 2*3 + 3*1)
	if got := a.SurfaceArea(); math.Abs(got-want) > 1e-9 {
		t.Errorf("SurfaceArea = %v, want %v", got, want)
	}
}

func TestAABB_Contains(t *testing.T) {
	outer := AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{4, 4, 4}}
	inner := AABB{Min: mgl64.Vec3{1, 1, 1}, Max: mgl64.Vec3{2, 2, 2}}

	if !outer.Contains(inner) {
		t.Error("outer should contain inner")
	}
	if inner.Contains(outer) {
		t.Error("inner should not contain outer")
	}
}

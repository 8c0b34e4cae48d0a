package actor

import "github.com/go-gl/mathgl/mgl64"

// Transform represents a position and orientation in 3D space
type Transform struct {
	Position        mgl64.Vec3
	Rotation        mgl64.Quat
	InverseRotation mgl64.Quat
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position:        mgl64.Vec3{0, 0, 0},
		Rotation:        mgl64.QuatIdent(),
		InverseRotation: mgl64.QuatIdent(),
	}
}

// NewTransformAt creates a transform at the given position and orientation
func NewTransformAt(position mgl64.Vec3, rotation mgl64.Quat) Transform {
	rotation = rotation.Normalize()
	return Transform{
		Position:        position,
		Rotation:        rotation,
		InverseRotation: rotation.Inverse(),
	}
}

// SetRotation replaces the orientation and refreshes the cached inverse
func (t *Transform) SetRotation(rotation mgl64.Quat) {
	t.Rotation = rotation
	t.InverseRotation = rotation.Inverse()
}

// ToWorld transforms a point from local space to world space
func (t Transform) ToWorld(local mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(local).Add(t.Position)
}

// ToLocal transforms a point from world space to local space
func (t Transform) ToLocal(world mgl64.Vec3) mgl64.Vec3 {
	return t.InverseRotation.Rotate(world.Sub(t.Position))
}

// RotationMatrix returns the orientation as a 3x3 basis matrix
func (t Transform) RotationMatrix() mgl64.Mat3 {
	return t.Rotation.Mat4().Mat3()
}

package geom

import "github.com/go-gl/mathgl/mgl32"

// RigidTransform is a rotation followed by a translation.
type RigidTransform struct {
	Position    mgl32.Vec3
	Orientation mgl32.Quat
}

func IdentityTransform() RigidTransform {
	return RigidTransform{Orientation: mgl32.QuatIdent()}
}

func (t RigidTransform) TransformPoint(p mgl32.Vec3) mgl32.Vec3 {
	return t.Orientation.Rotate(p).Add(t.Position)
}

func (t RigidTransform) InverseTransformPoint(p mgl32.Vec3) mgl32.Vec3 {
	return t.Orientation.Conjugate().Rotate(p.Sub(t.Position))
}

func (t RigidTransform) TransformDirection(d mgl32.Vec3) mgl32.Vec3 {
	return t.Orientation.Rotate(d)
}

func (t RigidTransform) InverseTransformDirection(d mgl32.Vec3) mgl32.Vec3 {
	return t.Orientation.Conjugate().Rotate(d)
}

// Mat4 returns the homogeneous matrix of the transform.
func (t RigidTransform) Mat4() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position[0], t.Position[1], t.Position[2]).Mul4(t.Orientation.Mat4())
}

// AffineTransform wraps a general 4x4 transform (scale and shear allowed) with its
// cached inverse. Meshes and terrains place their local geometry with it.
type AffineTransform struct {
	Matrix  mgl32.Mat4
	inverse mgl32.Mat4
}

func NewAffineTransform(m mgl32.Mat4) AffineTransform {
	return AffineTransform{Matrix: m, inverse: m.Inv()}
}

func IdentityAffine() AffineTransform {
	return NewAffineTransform(mgl32.Ident4())
}

func (a AffineTransform) TransformPoint(p mgl32.Vec3) mgl32.Vec3 {
	return a.Matrix.Mul4x1(p.Vec4(1)).Vec3()
}

func (a AffineTransform) InverseTransformPoint(p mgl32.Vec3) mgl32.Vec3 {
	return a.inverse.Mul4x1(p.Vec4(1)).Vec3()
}

func (a AffineTransform) Inverse() mgl32.Mat4 {
	return a.inverse
}

package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Frustum holds six planes in Ax+By+Cz+D=0 form with normals pointing inside,
// ordered Left, Right, Bottom, Top, Near, Far.
type Frustum [6]mgl32.Vec4

// FrustumFromMatrix extracts the planes of an OpenGL style view-projection matrix.
func FrustumFromMatrix(vp mgl32.Mat4) Frustum {
	var f Frustum
	for i := 0; i < 3; i++ {
		f[2*i] = mgl32.Vec4{
			vp.At(3, 0) + vp.At(i, 0),
			vp.At(3, 1) + vp.At(i, 1),
			vp.At(3, 2) + vp.At(i, 2),
			vp.At(3, 3) + vp.At(i, 3),
		}
		f[2*i+1] = mgl32.Vec4{
			vp.At(3, 0) - vp.At(i, 0),
			vp.At(3, 1) - vp.At(i, 1),
			vp.At(3, 2) - vp.At(i, 2),
			vp.At(3, 3) - vp.At(i, 3),
		}
	}
	for i := range f {
		l := math32.Sqrt(f[i][0]*f[i][0] + f[i][1]*f[i][1] + f[i][2]*f[i][2])
		if l > 0 {
			f[i] = f[i].Mul(1 / l)
		}
	}
	return f
}

// IntersectsAABB rejects a box only when it lies fully behind one plane, which makes
// the test conservative near frustum corners.
func (f Frustum) IntersectsAABB(b AABB) bool {
	for _, plane := range f {
		// Most inside corner along the plane normal.
		var p mgl32.Vec3
		for k := 0; k < 3; k++ {
			if plane[k] > 0 {
				p[k] = b.Max[k]
			} else {
				p[k] = b.Min[k]
			}
		}
		if plane[0]*p[0]+plane[1]*p[1]+plane[2]*p[2]+plane[3] < 0 {
			return false
		}
	}
	return true
}

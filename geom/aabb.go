package geom

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis aligned bounding box. Zero volume boxes are legal.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// NewAABB builds the box spanned by two arbitrary corners.
func NewAABB(a, b mgl32.Vec3) AABB {
	return AABB{
		Min: mgl32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])},
		Max: mgl32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])},
	}
}

// EmptyAABB returns an inverted box that acts as the identity for Merge and Extend.
func EmptyAABB() AABB {
	inf := math32.Inf(1)
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// Valid reports whether the box holds finite values with Min <= Max componentwise.
func (b AABB) Valid() bool {
	for i := 0; i < 3; i++ {
		if !finite(b.Min[i]) || !finite(b.Max[i]) {
			return false
		}
		if b.Min[i] > b.Max[i] {
			return false
		}
	}
	return true
}

func (b AABB) Merge(o AABB) AABB {
	return AABB{
		Min: mgl32.Vec3{min(b.Min[0], o.Min[0]), min(b.Min[1], o.Min[1]), min(b.Min[2], o.Min[2])},
		Max: mgl32.Vec3{max(b.Max[0], o.Max[0]), max(b.Max[1], o.Max[1]), max(b.Max[2], o.Max[2])},
	}
}

func (b AABB) Extend(p mgl32.Vec3) AABB {
	return AABB{
		Min: mgl32.Vec3{min(b.Min[0], p[0]), min(b.Min[1], p[1]), min(b.Min[2], p[2])},
		Max: mgl32.Vec3{max(b.Max[0], p[0]), max(b.Max[1], p[1]), max(b.Max[2], p[2])},
	}
}

// Intersects is inclusive: touching boxes overlap.
func (b AABB) Intersects(o AABB) bool {
	return b.Min[0] <= o.Max[0] && b.Max[0] >= o.Min[0] &&
		b.Min[1] <= o.Max[1] && b.Max[1] >= o.Min[1] &&
		b.Min[2] <= o.Max[2] && b.Max[2] >= o.Min[2]
}

func (b AABB) Contains(o AABB) bool {
	return b.Min[0] <= o.Min[0] && b.Max[0] >= o.Max[0] &&
		b.Min[1] <= o.Min[1] && b.Max[1] >= o.Max[1] &&
		b.Min[2] <= o.Min[2] && b.Max[2] >= o.Max[2]
}

func (b AABB) ContainsPoint(p mgl32.Vec3) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) Extents() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

func (b AABB) HalfExtents() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

func (b AABB) Volume() float32 {
	e := b.Extents()
	return e[0] * e[1] * e[2]
}

// Expand grows the box by margin on every side.
func (b AABB) Expand(margin float32) AABB {
	m := mgl32.Vec3{margin, margin, margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

func (b AABB) Translate(v mgl32.Vec3) AABB {
	return AABB{Min: b.Min.Add(v), Max: b.Max.Add(v)}
}

// LongestAxis returns the axis of largest extent. Ties resolve to X, then Y, then Z.
func (b AABB) LongestAxis() int {
	e := b.Extents()
	axis := 0
	if e[1] > e[axis] {
		axis = 1
	}
	if e[2] > e[axis] {
		axis = 2
	}
	return axis
}

// ClosestPoint clamps p into the box.
func (b AABB) ClosestPoint(p mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		mgl32.Clamp(p[0], b.Min[0], b.Max[0]),
		mgl32.Clamp(p[1], b.Min[1], b.Max[1]),
		mgl32.Clamp(p[2], b.Min[2], b.Max[2]),
	}
}

func (b AABB) IntersectsSphere(s BoundingSphere) bool {
	d := b.ClosestPoint(s.Center).Sub(s.Center)
	return d.LenSqr() <= s.Radius*s.Radius
}

// Transform returns the box enclosing b after the affine matrix m is applied.
func (b AABB) Transform(m mgl32.Mat4) AABB {
	// Arvo's method: accumulate the extreme contribution of each matrix entry.
	out := AABB{
		Min: mgl32.Vec3{m.At(0, 3), m.At(1, 3), m.At(2, 3)},
		Max: mgl32.Vec3{m.At(0, 3), m.At(1, 3), m.At(2, 3)},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			e := m.At(i, j) * b.Min[j]
			f := m.At(i, j) * b.Max[j]
			if e < f {
				out.Min[i] += e
				out.Max[i] += f
			} else {
				out.Min[i] += f
				out.Max[i] += e
			}
		}
	}
	return out
}

// RayIntersect runs the slab test and returns the entry distance along the ray.
// A ray starting inside the box hits at t = 0.
func (b AABB) RayIntersect(r Ray, maxLength float32) (float32, bool) {
	tMin := float32(0)
	tMax := maxLength
	for i := 0; i < 3; i++ {
		if math32.Abs(r.Direction[i]) < 1e-9 {
			if r.Origin[i] < b.Min[i] || r.Origin[i] > b.Max[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / r.Direction[i]
		t1 := (b.Min[i] - r.Origin[i]) * inv
		t2 := (b.Max[i] - r.Origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = max(tMin, t1)
		tMax = min(tMax, t2)
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}

func (b AABB) String() string {
	return fmt.Sprintf("AABB{Min: %v, Max: %v}", b.Min, b.Max)
}

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}

package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// TriangleSidedness selects which faces of a triangle generate contacts and ray hits.
// Counterclockwise means the face whose vertices wind counterclockwise when seen from
// outside is solid, i.e. the side (B-A)x(C-A) points to.
type TriangleSidedness int

const (
	DoubleSided TriangleSidedness = iota
	Counterclockwise
	Clockwise
)

func (s TriangleSidedness) String() string {
	switch s {
	case Counterclockwise:
		return "counterclockwise"
	case Clockwise:
		return "clockwise"
	default:
		return "double_sided"
	}
}

// VoronoiRegion names the triangle feature closest to a point or responsible for a contact.
type VoronoiRegion int

const (
	RegionA VoronoiRegion = iota
	RegionB
	RegionC
	RegionAB
	RegionAC
	RegionBC
	RegionABC
)

func (r VoronoiRegion) IsVertex() bool { return r <= RegionC }
func (r VoronoiRegion) IsEdge() bool   { return r >= RegionAB && r <= RegionBC }

func (r VoronoiRegion) String() string {
	return [...]string{"A", "B", "C", "AB", "AC", "BC", "ABC"}[r]
}

// Triangle is both a shape (support mapping, ray test) and the scratch container the
// mesh manifold loads candidate triangles into.
type Triangle struct {
	A, B, C   mgl32.Vec3
	Sidedness TriangleSidedness
}

func (t *Triangle) Kind() ShapeKind { return KindTriangle }

// Normal returns the unit normal of the counterclockwise face. Degenerate triangles
// fall back to +Y.
func (t *Triangle) Normal() mgl32.Vec3 {
	n := t.B.Sub(t.A).Cross(t.C.Sub(t.A))
	l := n.Len()
	if l < 1e-12 {
		return mgl32.Vec3{0, 1, 0}
	}
	return n.Mul(1 / l)
}

// FrontNormal returns the normal of the solid face, or the counterclockwise normal
// for double sided triangles.
func (t *Triangle) FrontNormal() mgl32.Vec3 {
	if t.Sidedness == Clockwise {
		return t.Normal().Mul(-1)
	}
	return t.Normal()
}

func (t *Triangle) Center() mgl32.Vec3 {
	return t.A.Add(t.B).Add(t.C).Mul(1.0 / 3.0)
}

func (t *Triangle) LocalSupport(dir mgl32.Vec3) mgl32.Vec3 {
	da, db, dc := t.A.Dot(dir), t.B.Dot(dir), t.C.Dot(dir)
	if da >= db && da >= dc {
		return t.A
	}
	if db >= dc {
		return t.B
	}
	return t.C
}

func (t *Triangle) LocalBounds() AABB {
	return NewAABB(t.A, t.A).Extend(t.B).Extend(t.C)
}

func (t *Triangle) Vertex(i int) mgl32.Vec3 {
	switch i {
	case 0:
		return t.A
	case 1:
		return t.B
	default:
		return t.C
	}
}

// RayCast is the Moller-Trumbore test honoring sidedness.
func (t *Triangle) RayCast(r Ray, maxLength float32) (RayHit, bool) {
	e1 := t.B.Sub(t.A)
	e2 := t.C.Sub(t.A)
	p := r.Direction.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < 1e-12 {
		return RayHit{}, false
	}
	// det > 0 means the ray enters the counterclockwise face.
	switch t.Sidedness {
	case Counterclockwise:
		if det < 0 {
			return RayHit{}, false
		}
	case Clockwise:
		if det > 0 {
			return RayHit{}, false
		}
	}
	inv := 1 / det
	s := r.Origin.Sub(t.A)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return RayHit{}, false
	}
	q := s.Cross(e1)
	v := r.Direction.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return RayHit{}, false
	}
	tt := e2.Dot(q) * inv
	if tt < 0 || tt > maxLength {
		return RayHit{}, false
	}
	n := t.Normal()
	if n.Dot(r.Direction) > 0 {
		n = n.Mul(-1)
	}
	return RayHit{T: tt, Position: r.At(tt), Normal: n}, true
}

// ClosestPointOnTriangle returns the point of triangle abc closest to p and the
// feature that point lies on.
func ClosestPointOnTriangle(p, a, b, c mgl32.Vec3) (mgl32.Vec3, VoronoiRegion) {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)
	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a, RegionA
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b, RegionB
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.Add(ab.Mul(v)), RegionAB
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c, RegionC
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return a.Add(ac.Mul(w)), RegionAC
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Mul(w)), RegionBC
	}

	denom := va + vb + vc
	if math32.Abs(denom) < 1e-20 {
		return a, RegionA
	}
	denom = 1 / denom
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Mul(v)).Add(ac.Mul(w)), RegionABC
}

// ClosestPointOnSegment returns the point of segment ab closest to p and its parameter.
func ClosestPointOnSegment(p, a, b mgl32.Vec3) (mgl32.Vec3, float32) {
	ab := b.Sub(a)
	l := ab.LenSqr()
	if l < 1e-20 {
		return a, 0
	}
	t := mgl32.Clamp(p.Sub(a).Dot(ab)/l, 0, 1)
	return a.Add(ab.Mul(t)), t
}

// ClosestPointsSegmentSegment returns the closest points between segments p1q1 and p2q2.
func ClosestPointsSegmentSegment(p1, q1, p2, q2 mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.Dot(d1)
	e := d2.Dot(d2)
	f := d2.Dot(r)

	const eps = 1e-12
	var s, t float32
	switch {
	case a <= eps && e <= eps:
		return p1, p2
	case a <= eps:
		t = mgl32.Clamp(f/e, 0, 1)
	default:
		c := d1.Dot(r)
		if e <= eps {
			s = mgl32.Clamp(-c/a, 0, 1)
		} else {
			b := d1.Dot(d2)
			denom := a*e - b*b
			if denom != 0 {
				s = mgl32.Clamp((b*f-c*e)/denom, 0, 1)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = mgl32.Clamp(-c/a, 0, 1)
			} else if t > 1 {
				t = 1
				s = mgl32.Clamp((b-c)/a, 0, 1)
			}
		}
	}
	return p1.Add(d1.Mul(s)), p2.Add(d2.Mul(t))
}

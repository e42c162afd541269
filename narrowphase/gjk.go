package narrowphase

import (
	"github.com/chewxy/math32"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/gekko3d/gekkophys/parallel"
	"github.com/go-gl/mathgl/mgl32"
)

// supportFunc returns the point of a convex set furthest along dir.
type supportFunc func(dir mgl32.Vec3) mgl32.Vec3

// minkowskiPoint is a vertex of A - B together with the support points that produced it,
// so the closest feature can be mapped back onto both shapes.
type minkowskiPoint struct {
	v, a, b mgl32.Vec3
}

func minkowskiSupport(sa, sb supportFunc, dir mgl32.Vec3) minkowskiPoint {
	a := sa(dir)
	b := sb(dir.Mul(-1))
	return minkowskiPoint{v: a.Sub(b), a: a, b: b}
}

// simplex keeps the most recent point last.
type simplex struct {
	pts [4]minkowskiPoint
	n   int
}

func (s *simplex) set(pts ...minkowskiPoint) {
	s.n = copy(s.pts[:], pts)
}

const gjkMaxIterations = 32

// gjkIntersect reports whether the origin lies in A - B. On success the simplex holds the
// points found so far; it may be degenerate when the shapes only touch.
func gjkIntersect(sa, sb supportFunc, initial mgl32.Vec3, s *simplex) bool {
	dir := initial
	if dir.LenSqr() < 1e-8 {
		dir = mgl32.Vec3{1, 0, 0}
	}
	s.set(minkowskiSupport(sa, sb, dir))
	dir = s.pts[0].v.Mul(-1)
	if dir.LenSqr() < 1e-16 {
		return true
	}
	for i := 0; i < gjkMaxIterations; i++ {
		p := minkowskiSupport(sa, sb, dir)
		if p.v.Dot(dir) <= 0 {
			return false
		}
		s.pts[s.n] = p
		s.n++
		if s.doSimplex(&dir) {
			return true
		}
	}
	return false
}

func (s *simplex) doSimplex(dir *mgl32.Vec3) bool {
	switch s.n {
	case 2:
		return s.line(dir)
	case 3:
		return s.triangle(dir)
	case 4:
		return s.tetrahedron(dir)
	}
	return false
}

func (s *simplex) line(dir *mgl32.Vec3) bool {
	a, b := s.pts[1], s.pts[0]
	ab := b.v.Sub(a.v)
	ao := a.v.Mul(-1)
	if ab.LenSqr() < 1e-8 {
		if ao.LenSqr() < 1e-8 {
			return true
		}
		s.set(a)
		*dir = ao
		return false
	}
	if ab.Dot(ao) <= 0 {
		s.set(a)
		*dir = ao
		return false
	}
	perp := ab.Cross(ao).Cross(ab)
	if perp.LenSqr() < 1e-8 {
		return true
	}
	*dir = perp
	return false
}

func (s *simplex) triangle(dir *mgl32.Vec3) bool {
	a, b, c := s.pts[2], s.pts[1], s.pts[0]
	ab := b.v.Sub(a.v)
	ac := c.v.Sub(a.v)
	ao := a.v.Mul(-1)
	abc := ab.Cross(ac)

	if abc.LenSqr() < 1e-10 {
		s.set(b, a)
		return s.line(dir)
	}
	if ab.Cross(abc).Dot(ao) > 0 {
		s.set(b, a)
		*dir = ab.Cross(ao).Cross(ab)
		return false
	}
	if abc.Cross(ac).Dot(ao) > 0 {
		s.set(c, a)
		*dir = ac.Cross(ao).Cross(ac)
		return false
	}
	switch d := abc.Dot(ao); {
	case d > 0:
		*dir = abc
	case d < 0:
		s.set(b, c, a)
		*dir = abc.Mul(-1)
	default:
		// Origin in the triangle's plane and inside it.
		return true
	}
	return false
}

func (s *simplex) tetrahedron(dir *mgl32.Vec3) bool {
	a, b, c, d := s.pts[3], s.pts[2], s.pts[1], s.pts[0]
	ab := b.v.Sub(a.v)
	ac := c.v.Sub(a.v)
	ad := d.v.Sub(a.v)
	ao := a.v.Mul(-1)

	abc := ab.Cross(ac)
	if abc.Dot(ad) > 0 {
		abc = abc.Mul(-1)
	}
	acd := ac.Cross(ad)
	if acd.Dot(ab) > 0 {
		acd = acd.Mul(-1)
	}
	adb := ad.Cross(ab)
	if adb.Dot(ac) > 0 {
		adb = adb.Mul(-1)
	}
	if abc.LenSqr() < 1e-10 || acd.LenSqr() < 1e-10 || adb.LenSqr() < 1e-10 {
		s.set(c, b, a)
		return s.triangle(dir)
	}
	switch {
	case abc.Dot(ao) > 0:
		s.set(c, b, a)
		return s.triangle(dir)
	case acd.Dot(ao) > 0:
		s.set(d, c, a)
		return s.triangle(dir)
	case adb.Dot(ao) > 0:
		s.set(b, d, a)
		return s.triangle(dir)
	}
	return true
}

var searchAxes = [6]mgl32.Vec3{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}}

// complete grows a degenerate simplex into a tetrahedron with volume. It fails when
// A - B is flat around the origin, i.e. the shapes merely touch.
func (s *simplex) complete(sa, sb supportFunc) bool {
	const eps = 1e-6
	if s.n == 1 {
		for _, d := range searchAxes {
			p := minkowskiSupport(sa, sb, d)
			if p.v.Sub(s.pts[0].v).LenSqr() > eps {
				s.pts[1] = p
				s.n = 2
				break
			}
		}
		if s.n == 1 {
			return false
		}
	}
	if s.n == 2 {
		line := s.pts[1].v.Sub(s.pts[0].v)
		axis := leastAlignedAxis(line)
		base := line.Cross(axis)
		lineDir := line.Normalize()
		for _, d := range [2]mgl32.Vec3{base, base.Mul(-1)} {
			p := minkowskiSupport(sa, sb, d)
			off := p.v.Sub(s.pts[0].v)
			if off.Sub(lineDir.Mul(off.Dot(lineDir))).LenSqr() > eps {
				s.pts[2] = p
				s.n = 3
				break
			}
		}
		if s.n == 2 {
			return false
		}
	}
	if s.n == 3 {
		n := s.pts[1].v.Sub(s.pts[0].v).Cross(s.pts[2].v.Sub(s.pts[0].v))
		if n.LenSqr() < 1e-12 {
			return false
		}
		n = n.Normalize()
		for _, d := range [2]mgl32.Vec3{n, n.Mul(-1)} {
			p := minkowskiSupport(sa, sb, d)
			if math32.Abs(p.v.Sub(s.pts[0].v).Dot(n)) > 1e-4 {
				s.pts[3] = p
				s.n = 4
				break
			}
		}
	}
	return s.n == 4
}

func leastAlignedAxis(v mgl32.Vec3) mgl32.Vec3 {
	ax, ay, az := math32.Abs(v[0]), math32.Abs(v[1]), math32.Abs(v[2])
	switch {
	case ax <= ay && ax <= az:
		return mgl32.Vec3{1, 0, 0}
	case ay <= az:
		return mgl32.Vec3{0, 1, 0}
	}
	return mgl32.Vec3{0, 0, 1}
}

type epaFace struct {
	i       [3]int
	normal  mgl32.Vec3
	dist    float32
	removed bool
}

type polytope struct {
	verts []minkowskiPoint
	faces []epaFace
	edges [][2]int
}

var polytopes = parallel.NewLockingPool(nil, func(p *polytope) {
	p.verts = p.verts[:0]
	p.faces = p.faces[:0]
	p.edges = p.edges[:0]
})

func (p *polytope) addFace(a, b, c int) {
	va, vb, vc := p.verts[a].v, p.verts[b].v, p.verts[c].v
	n := vb.Sub(va).Cross(vc.Sub(va))
	l := n.Len()
	if l < 1e-12 {
		return
	}
	n = n.Mul(1 / l)
	p.faces = append(p.faces, epaFace{i: [3]int{a, b, c}, normal: n, dist: n.Dot(va)})
}

// addHorizonEdge records a boundary edge of the visible region, cancelling an edge
// already recorded in the opposite direction.
func (p *polytope) addHorizonEdge(a, b int) {
	for k, e := range p.edges {
		if e[0] == b && e[1] == a {
			p.edges[k] = p.edges[len(p.edges)-1]
			p.edges = p.edges[:len(p.edges)-1]
			return
		}
	}
	p.edges = append(p.edges, [2]int{a, b})
}

const (
	epaMaxIterations = 64
	epaTolerance     = 1e-4
)

// penetration is the result of an expanding polytope run: normal points from A toward B
// and depth is the translation along it separating the shapes. PointA and PointB are
// the deepest points of each shape.
type penetration struct {
	normal         mgl32.Vec3
	depth          float32
	pointA, pointB mgl32.Vec3
}

// epa expands the GJK tetrahedron until the face closest to the origin is on the
// boundary of A - B.
func epa(sa, sb supportFunc, s *simplex) (penetration, bool) {
	if s.n != 4 && !s.complete(sa, sb) {
		return penetration{}, false
	}
	p := polytopes.Take()
	defer polytopes.GiveBack(p)

	p.verts = append(p.verts, s.pts[:4]...)
	for _, f := range [4][4]int{{0, 1, 2, 3}, {0, 3, 1, 2}, {0, 2, 3, 1}, {1, 3, 2, 0}} {
		a, b, c, opposite := f[0], f[1], f[2], f[3]
		n := p.verts[b].v.Sub(p.verts[a].v).Cross(p.verts[c].v.Sub(p.verts[a].v))
		if n.Dot(p.verts[opposite].v.Sub(p.verts[a].v)) > 0 {
			b, c = c, b
		}
		p.addFace(a, b, c)
	}
	if len(p.faces) < 4 {
		return penetration{}, false
	}

	var closest epaFace
	for iter := 0; ; iter++ {
		found := false
		for _, f := range p.faces {
			if !f.removed && (!found || f.dist < closest.dist) {
				closest, found = f, true
			}
		}
		if !found {
			return penetration{}, false
		}
		if iter == epaMaxIterations {
			break
		}
		sp := minkowskiSupport(sa, sb, closest.normal)
		if sp.v.Dot(closest.normal)-closest.dist < epaTolerance {
			break
		}

		p.verts = append(p.verts, sp)
		added := len(p.verts) - 1
		p.edges = p.edges[:0]
		visible := 0
		for k := range p.faces {
			f := &p.faces[k]
			if f.removed || f.normal.Dot(sp.v.Sub(p.verts[f.i[0]].v)) <= 0 {
				continue
			}
			f.removed = true
			visible++
			p.addHorizonEdge(f.i[0], f.i[1])
			p.addHorizonEdge(f.i[1], f.i[2])
			p.addHorizonEdge(f.i[2], f.i[0])
		}
		if visible == 0 {
			break
		}
		for _, e := range p.edges {
			p.addFace(e[0], e[1], added)
		}
		live := p.faces[:0]
		for _, f := range p.faces {
			if !f.removed {
				live = append(live, f)
			}
		}
		p.faces = live
	}

	a, b, c := p.verts[closest.i[0]], p.verts[closest.i[1]], p.verts[closest.i[2]]
	u, v, w := barycentric(closest.normal.Mul(closest.dist), a.v, b.v, c.v)
	return penetration{
		normal: closest.normal,
		depth:  closest.dist,
		pointA: a.a.Mul(u).Add(b.a.Mul(v)).Add(c.a.Mul(w)),
		pointB: a.b.Mul(u).Add(b.b.Mul(v)).Add(c.b.Mul(w)),
	}, true
}

// barycentric returns the weights of p with respect to triangle abc.
func barycentric(p, a, b, c mgl32.Vec3) (float32, float32, float32) {
	v0 := b.Sub(a)
	v1 := c.Sub(a)
	v2 := p.Sub(a)
	d00 := v0.Dot(v0)
	d01 := v0.Dot(v1)
	d11 := v1.Dot(v1)
	d20 := v2.Dot(v0)
	d21 := v2.Dot(v1)
	denom := d00*d11 - d01*d01
	if math32.Abs(denom) < 1e-12 {
		return 1, 0, 0
	}
	v := (d11*d20 - d01*d21) / denom
	w := (d00*d21 - d01*d20) / denom
	return 1 - v - w, v, w
}

// shapeSupport maps a local support function through a rigid transform.
func shapeSupport(s geom.Shape, t geom.RigidTransform) supportFunc {
	return func(dir mgl32.Vec3) mgl32.Vec3 {
		return t.TransformPoint(s.LocalSupport(t.InverseTransformDirection(dir)))
	}
}

// inflated grows a support function by a sphere of radius margin.
func inflated(sf supportFunc, margin float32) supportFunc {
	if margin == 0 {
		return sf
	}
	return func(dir mgl32.Vec3) mgl32.Vec3 {
		return sf(dir).Add(geom.SafeNormalize(dir, mgl32.Vec3{1, 0, 0}).Mul(margin))
	}
}

// marginPenetration runs GJK and EPA with B inflated by margin and returns the result
// for the uninflated shapes, so depth may be negative down to -margin.
func marginPenetration(sa, sb supportFunc, initial mgl32.Vec3, margin float32) (penetration, bool) {
	sbi := inflated(sb, margin)
	var s simplex
	if !gjkIntersect(sa, sbi, initial, &s) {
		return penetration{}, false
	}
	pen, ok := epa(sa, sbi, &s)
	if !ok {
		return penetration{}, false
	}
	pen.depth -= margin
	// The inflated surface lies margin toward A from the real one.
	pen.pointB = pen.pointB.Add(pen.normal.Mul(margin))
	return pen, true
}

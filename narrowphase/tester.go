package narrowphase

import (
	"github.com/chewxy/math32"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/gekko3d/gekkophys/parallel"
	"github.com/go-gl/mathgl/mgl32"
)

// TrianglePairTester generates contacts between one convex shape and one triangle. The
// triangle is given in the convex's local frame, so the convex sits at the origin with
// identity orientation. Contact normals point from the triangle toward the convex.
//
// A manifold keeps one tester per overlapped triangle across ticks and evicts the ones
// that were not marked updated during a tick.
type TrianglePairTester interface {
	Initialize(shape geom.Shape, margin float32)
	GenerateContactCandidates(tri *geom.Triangle, out []ContactData) []ContactData
	// GetRegion names the triangle feature responsible for a contact produced by the
	// last GenerateContactCandidates call.
	GetRegion(tri *geom.Triangle, c *ContactData) geom.VoronoiRegion
	// ShouldCorrectContactNormal reports that the last contacts came from a deep
	// configuration whose face region contacts should use the face normal.
	ShouldCorrectContactNormal() bool
	Updated() bool
	SetUpdated(updated bool)
	// CleanUp returns the tester to its pool.
	CleanUp()
}

// regionEpsilon is the slack on extremity comparisons when classifying contacts.
const regionEpsilon = 0.01

type testerState struct {
	margin  float32
	updated bool
	deep    bool
}

func (s *testerState) Updated() bool                    { return s.updated }
func (s *testerState) SetUpdated(updated bool)          { s.updated = updated }
func (s *testerState) ShouldCorrectContactNormal() bool { return s.deep }

func (s *testerState) GetRegion(tri *geom.Triangle, c *ContactData) geom.VoronoiRegion {
	return contactRegion(tri, c.Normal)
}

// contactRegion classifies a contact normal by the triangle feature furthest along it.
// A normal within regionEpsilon of the face normal always maps to the face.
func contactRegion(tri *geom.Triangle, normal mgl32.Vec3) geom.VoronoiRegion {
	if math32.Abs(tri.Normal().Dot(normal)) > 1-regionEpsilon {
		return geom.RegionABC
	}
	da, db, dc := tri.A.Dot(normal), tri.B.Dot(normal), tri.C.Dot(normal)
	m := max(da, db, dc)
	longest := max(tri.B.Sub(tri.A).Len(), tri.C.Sub(tri.B).Len(), tri.A.Sub(tri.C).Len())
	eps := regionEpsilon * max(longest, 1e-3)
	a, b, c := da >= m-eps, db >= m-eps, dc >= m-eps
	switch {
	case a && b && c:
		return geom.RegionABC
	case a && b:
		return geom.RegionAB
	case a && c:
		return geom.RegionAC
	case b && c:
		return geom.RegionBC
	case a:
		return geom.RegionA
	case b:
		return geom.RegionB
	}
	return geom.RegionC
}

// facing returns the triangle normal on the side of the origin. It reports false when
// a one sided triangle shows its back to the origin.
func facing(tri *geom.Triangle) (mgl32.Vec3, bool) {
	n := tri.FrontNormal()
	side := -n.Dot(tri.A)
	if tri.Sidedness == geom.DoubleSided {
		if side < 0 {
			n = n.Mul(-1)
		}
		return n, true
	}
	return n, side >= 0
}

var (
	sphereTesters  = parallel.NewLockingPool(nil, func(t *sphereTester) { *t = sphereTester{} })
	capsuleTesters = parallel.NewLockingPool(nil, func(t *capsuleTester) { *t = capsuleTester{} })
	gjkTesters     = parallel.NewLockingPool(nil, func(t *gjkTester) { *t = gjkTester{} })
)

// newTester takes a tester suited to the shape from its pool.
func newTester(shape geom.Shape, margin float32) TrianglePairTester {
	var t TrianglePairTester
	switch shape.Kind() {
	case geom.KindSphere:
		t = sphereTesters.Take()
	case geom.KindCapsule:
		t = capsuleTesters.Take()
	default:
		t = gjkTesters.Take()
	}
	t.Initialize(shape, margin)
	return t
}

type sphereTester struct {
	testerState
	radius float32
}

func (t *sphereTester) Initialize(shape geom.Shape, margin float32) {
	t.radius = shape.(*geom.Sphere).Radius
	t.margin = margin
}

func (t *sphereTester) CleanUp() { sphereTesters.GiveBack(t) }

func (t *sphereTester) GenerateContactCandidates(tri *geom.Triangle, out []ContactData) []ContactData {
	t.deep = false
	fn, ok := facing(tri)
	if !ok {
		return out
	}
	q, _ := geom.ClosestPointOnTriangle(mgl32.Vec3{}, tri.A, tri.B, tri.C)
	dist := q.Len()
	if dist > t.radius+t.margin {
		return out
	}
	n := fn
	if dist > 1e-7 {
		n = q.Mul(-1 / dist)
	} else {
		t.deep = true
	}
	return append(out, ContactData{Position: q, Normal: n, PenetrationDepth: t.radius - dist})
}

type capsuleTester struct {
	testerState
	capsule  *geom.Capsule
	fallback gjkTester
}

func (t *capsuleTester) Initialize(shape geom.Shape, margin float32) {
	t.capsule = shape.(*geom.Capsule)
	t.margin = margin
	t.fallback.Initialize(shape, margin)
}

func (t *capsuleTester) CleanUp() { capsuleTesters.GiveBack(t) }

// GenerateContactCandidates reports up to one contact per segment endpoint plus one
// for an interior closest point. A segment piercing the triangle goes through GJK.
func (t *capsuleTester) GenerateContactCandidates(tri *geom.Triangle, out []ContactData) []ContactData {
	t.deep = false
	fn, ok := facing(tri)
	if !ok {
		return out
	}
	p0, p1 := t.capsule.Segment()
	if segmentPiercesTriangle(p0, p1, tri) {
		out = t.fallback.GenerateContactCandidates(tri, out)
		t.deep = t.fallback.deep
		return out
	}
	r := t.capsule.Radius
	oneSided := tri.Sidedness != geom.DoubleSided
	add := func(s, q mgl32.Vec3, id int) {
		d := s.Sub(q)
		dist := d.Len()
		if dist > r+t.margin || dist < 1e-7 {
			return
		}
		n := d.Mul(1 / dist)
		if oneSided && n.Dot(fn) < 0 {
			return
		}
		out = append(out, ContactData{Position: q, Normal: n, PenetrationDepth: r - dist, ID: id})
	}
	for i, p := range [2]mgl32.Vec3{p0, p1} {
		q, _ := geom.ClosestPointOnTriangle(p, tri.A, tri.B, tri.C)
		add(p, q, i+1)
	}

	// The closest approach may fall between the endpoints, against a triangle edge.
	bestDist := math32.Inf(1)
	var bestS, bestQ mgl32.Vec3
	for i := 0; i < 3; i++ {
		s, q := geom.ClosestPointsSegmentSegment(p0, p1, tri.Vertex(i), tri.Vertex((i+1)%3))
		if d := s.Sub(q).LenSqr(); d < bestDist {
			bestDist, bestS, bestQ = d, s, q
		}
	}
	const endEps = 1e-4
	if bestS.Sub(p0).LenSqr() > endEps && bestS.Sub(p1).LenSqr() > endEps {
		for _, p := range [2]mgl32.Vec3{p0, p1} {
			q, _ := geom.ClosestPointOnTriangle(p, tri.A, tri.B, tri.C)
			if p.Sub(q).LenSqr() <= bestDist+1e-6 {
				return out
			}
		}
		add(bestS, bestQ, 0)
	}
	return out
}

// segmentPiercesTriangle reports whether segment p0p1 crosses the interior of tri.
func segmentPiercesTriangle(p0, p1 mgl32.Vec3, tri *geom.Triangle) bool {
	n := tri.Normal()
	d0 := p0.Sub(tri.A).Dot(n)
	d1 := p1.Sub(tri.A).Dot(n)
	if d0*d1 > 0 || d0 == d1 {
		return false
	}
	x := p0.Add(p1.Sub(p0).Mul(d0 / (d0 - d1)))
	u, v, w := barycentric(x, tri.A, tri.B, tri.C)
	return u >= 0 && v >= 0 && w >= 0
}

// gjkTester handles any convex shape with GJK and EPA against the triangle grown by
// the margin.
type gjkTester struct {
	testerState
	shape geom.Shape
}

func (t *gjkTester) Initialize(shape geom.Shape, margin float32) {
	t.shape = shape
	t.margin = margin
}

func (t *gjkTester) CleanUp() { gjkTesters.GiveBack(t) }

func (t *gjkTester) GenerateContactCandidates(tri *geom.Triangle, out []ContactData) []ContactData {
	t.deep = false
	fn, ok := facing(tri)
	if !ok {
		return out
	}
	pen, ok := marginPenetration(t.shape.LocalSupport, tri.LocalSupport, tri.Center(), t.margin)
	if !ok {
		return out
	}
	n := pen.normal.Mul(-1)
	depth, pos := pen.depth, pen.pointB
	if n.Dot(fn) < 0 {
		// The shortest way out is through the back of the triangle. Push along the
		// face normal instead.
		s := t.shape.LocalSupport(fn.Mul(-1))
		depth = tri.A.Sub(s).Dot(fn)
		n = fn
		pos = s.Add(fn.Mul(depth))
	}
	if depth < -t.margin {
		return out
	}
	t.deep = depth > 0
	return append(out, ContactData{Position: pos, Normal: n, PenetrationDepth: depth})
}

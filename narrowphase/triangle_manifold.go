package narrowphase

import (
	"fmt"
	"slices"

	"github.com/chewxy/math32"
	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
)

// TriangleManifold maintains up to MaximumContacts contacts between a convex and a
// triangle mesh or terrain. Contacts persist across ticks: they are refreshed from the
// new transforms, then merged with the contacts generated against every triangle the
// convex currently overlaps.
//
// When the mesh asks for improved boundary handling, contacts on triangle edges and
// vertices that a neighboring face already claims are blocked. This removes the bumps a
// convex otherwise feels sliding over the seam between two coplanar triangles.
type TriangleManifold struct {
	settings Settings
	convex   *collidables.Convex
	mesh     collidables.TriangleMesh
	contacts []Contact
	testers  map[collidables.TriangleIndices]TrianglePairTester
	reducer  ContactReducer

	overlaps        []int
	raw             []ContactData
	candidates      []triangleCandidate
	accepted        []triangleCandidate
	blocked         []triangleCandidate
	fresh           []ContactData
	confirmed       []bool
	blockedEdges    map[Edge]struct{}
	blockedVertices map[int]struct{}
}

type triangleCandidate struct {
	ContactData
	region  geom.VoronoiRegion
	indices collidables.TriangleIndices
	// face is the world normal of the triangle on the convex's side.
	face mgl32.Vec3
}

func NewTriangleManifold(settings Settings) *TriangleManifold {
	return &TriangleManifold{
		settings:        settings,
		testers:         make(map[collidables.TriangleIndices]TrianglePairTester),
		blockedEdges:    make(map[Edge]struct{}),
		blockedVertices: make(map[int]struct{}),
	}
}

// Initialize binds the manifold to its pair. It panics unless a is a convex and b a
// triangle mesh; NewPairHandler only calls it with that order.
func (m *TriangleManifold) Initialize(a, b collidables.Collidable) {
	convex, okA := a.(*collidables.Convex)
	mesh, okB := b.(collidables.TriangleMesh)
	if !okA || !okB {
		panic(fmt.Sprintf("narrowphase: triangle manifold needs a convex and a mesh, got %s and %s", a.Kind(), b.Kind()))
	}
	m.convex = convex
	m.mesh = mesh
}

func (m *TriangleManifold) CollidableA() collidables.Collidable { return m.convex }
func (m *TriangleManifold) CollidableB() collidables.Collidable { return m.mesh }

// Contacts returns the current manifold. Normals point from the mesh toward the convex.
// The slice is reused by the next Update.
func (m *TriangleManifold) Contacts() []Contact { return m.contacts }

// CleanUp returns every tester to its pool and forgets the pair.
func (m *TriangleManifold) CleanUp() {
	for key, t := range m.testers {
		t.CleanUp()
		delete(m.testers, key)
	}
	m.contacts = m.contacts[:0]
	m.convex = nil
	m.mesh = nil
}

func (m *TriangleManifold) Update(dt float32) {
	ct := m.convex.Transform()
	mt := meshTransform(m.mesh)

	m.refresh(ct, mt)
	m.generate(ct)
	accepted := m.candidates
	if m.mesh.ImprovedBoundaryHandling() {
		accepted = m.filterBoundaries()
	}
	m.merge(accepted, ct, mt)
	m.evictTesters()
}

// refresh moves every contact with the objects and drops the ones that slid apart or
// separated past the margin.
func (m *TriangleManifold) refresh(ct geom.RigidTransform, mt geom.AffineTransform) {
	limit := m.settings.ContactInvalidationLength * m.settings.ContactInvalidationLength
	for i := len(m.contacts) - 1; i >= 0; i-- {
		if !refreshContact(&m.contacts[i], ct, mt, limit, m.settings.CollisionMargin) {
			m.contacts = slices.Delete(m.contacts, i, i+1)
		}
	}
}

func (m *TriangleManifold) generate(ct geom.RigidTransform) {
	m.overlaps = m.mesh.FindOverlappingTriangles(m.convex.BoundingBox(), m.overlaps[:0])
	slices.Sort(m.overlaps)
	m.candidates = m.candidates[:0]
	sides := m.mesh.Sidedness()
	for _, i := range m.overlaps {
		ti, a, b, c := m.mesh.Triangle(i)
		tri := geom.Triangle{
			A:         ct.InverseTransformPoint(a),
			B:         ct.InverseTransformPoint(b),
			C:         ct.InverseTransformPoint(c),
			Sidedness: sides,
		}
		tester, ok := m.testers[ti]
		if !ok {
			tester = newTester(m.convex.Shape, m.settings.CollisionMargin)
			m.testers[ti] = tester
		}
		tester.SetUpdated(true)
		m.raw = tester.GenerateContactCandidates(&tri, m.raw[:0])
		if len(m.raw) == 0 {
			continue
		}
		face, _ := facing(&tri)
		worldFace := ct.TransformDirection(face)
		for k := range m.raw {
			raw := &m.raw[k]
			region := tester.GetRegion(&tri, raw)
			n := raw.Normal
			if region == geom.RegionABC && tester.ShouldCorrectContactNormal() {
				n = face
			}
			m.candidates = append(m.candidates, triangleCandidate{
				ContactData: ContactData{
					Position:         ct.TransformPoint(raw.Position),
					Normal:           ct.TransformDirection(n),
					PenetrationDepth: raw.PenetrationDepth,
					ID:               contactID(ti, raw.ID),
				},
				region:  region,
				indices: ti,
				face:    worldFace,
			})
		}
	}
}

// filterBoundaries accepts face contacts first, then edge and vertex contacts whose
// feature no accepted contact has claimed yet. Blocked contacts come back with the
// face normal only when no face contact exists.
func (m *TriangleManifold) filterBoundaries() []triangleCandidate {
	clear(m.blockedEdges)
	clear(m.blockedVertices)
	m.accepted = m.accepted[:0]
	m.blocked = m.blocked[:0]

	for _, c := range m.candidates {
		if c.region != geom.RegionABC {
			continue
		}
		m.accepted = append(m.accepted, c)
		ti := c.indices
		m.blockEdge(NewEdge(ti.A, ti.B))
		m.blockEdge(NewEdge(ti.B, ti.C))
		m.blockEdge(NewEdge(ti.C, ti.A))
	}
	guaranteed := len(m.accepted) > 0

	for _, c := range m.candidates {
		switch {
		case c.region == geom.RegionABC:
		case c.region.IsEdge():
			e := edgeOf(c.indices, c.region)
			if _, ok := m.blockedEdges[e]; ok {
				m.blocked = append(m.blocked, c)
				continue
			}
			m.accepted = append(m.accepted, c)
			m.blockEdge(e)
		default:
			v := vertexOf(c.indices, c.region)
			if _, ok := m.blockedVertices[v]; ok {
				m.blocked = append(m.blocked, c)
				continue
			}
			m.accepted = append(m.accepted, c)
			m.blockedVertices[v] = struct{}{}
		}
	}

	if !guaranteed {
		for _, c := range m.blocked {
			c.PenetrationDepth *= max(0, c.face.Dot(c.Normal))
			c.Normal = c.face
			m.accepted = append(m.accepted, c)
		}
	}
	m.correctWedge()
	return m.accepted
}

func (m *TriangleManifold) blockEdge(e Edge) {
	m.blockedEdges[e] = struct{}{}
	m.blockedVertices[e.A] = struct{}{}
	m.blockedVertices[e.B] = struct{}{}
}

// correctWedge handles a convex wedged between triangles meeting at a crease. When the
// only contacts are two or more edge contacts with coplanar normals, some of them
// opposing, each normal is replaced by its triangle's face normal.
func (m *TriangleManifold) correctWedge() {
	if len(m.accepted) < 2 {
		return
	}
	for _, c := range m.accepted {
		if !c.region.IsEdge() {
			return
		}
	}
	n0 := m.accepted[0].Normal
	var plane mgl32.Vec3
	for _, c := range m.accepted[1:] {
		if p := n0.Cross(c.Normal); p.LenSqr() > 1e-8 {
			plane = p.Normalize()
			break
		}
	}
	opposing := false
	for i, c := range m.accepted {
		if math32.Abs(c.Normal.Dot(plane)) > regionEpsilon {
			return
		}
		for _, o := range m.accepted[i+1:] {
			if c.Normal.Dot(o.Normal) < 0 {
				opposing = true
			}
		}
	}
	if !opposing {
		return
	}
	for i := range m.accepted {
		m.accepted[i].Normal = m.accepted[i].face
	}
}

// merge folds this tick's contacts into the manifold. A candidate updates the existing
// contact with its ID, or one close enough in position and normal; the deeper of two
// such duplicates wins. Contacts nothing confirmed are dropped and the rest is reduced
// to MaximumContacts.
func (m *TriangleManifold) merge(accepted []triangleCandidate, ct geom.RigidTransform, mt geom.AffineTransform) {
	sep := m.settings.separationSquared()
	m.confirmed = slices.Grow(m.confirmed[:0], len(m.contacts))[:len(m.contacts)]
	clear(m.confirmed)
	m.fresh = m.fresh[:0]

	for _, c := range accepted {
		if i := m.findByID(c.ID); i >= 0 {
			m.contacts[i] = anchorContact(c.ContactData, ct, mt)
			m.confirmed[i] = true
			continue
		}
		if i := m.findNear(c.ContactData, sep); i >= 0 {
			if !m.confirmed[i] || c.PenetrationDepth > m.contacts[i].PenetrationDepth {
				id := m.contacts[i].ID
				m.contacts[i] = anchorContact(c.ContactData, ct, mt)
				m.contacts[i].ID = id
			}
			m.confirmed[i] = true
			continue
		}
		if j := m.findFresh(c.ContactData, sep); j >= 0 {
			if c.PenetrationDepth > m.fresh[j].PenetrationDepth {
				m.fresh[j] = c.ContactData
			}
			continue
		}
		m.fresh = append(m.fresh, c.ContactData)
	}

	for i := len(m.contacts) - 1; i >= 0; i-- {
		if !m.confirmed[i] {
			m.contacts = slices.Delete(m.contacts, i, i+1)
		}
	}
	toRemove, toAdd := m.reducer.ReduceContacts(m.contacts, m.fresh)
	for _, i := range toRemove {
		m.contacts = slices.Delete(m.contacts, i, i+1)
	}
	for _, c := range toAdd {
		m.contacts = append(m.contacts, anchorContact(c, ct, mt))
	}
}

func (m *TriangleManifold) findByID(id int) int {
	for i := range m.contacts {
		if m.contacts[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *TriangleManifold) findNear(c ContactData, sep float32) int {
	for i := range m.contacts {
		if near(m.contacts[i].ContactData, c, sep, m.settings.NonconvexNormalDotMinimum) {
			return i
		}
	}
	return -1
}

func (m *TriangleManifold) findFresh(c ContactData, sep float32) int {
	for i := range m.fresh {
		if near(m.fresh[i], c, sep, m.settings.NonconvexNormalDotMinimum) {
			return i
		}
	}
	return -1
}

func (m *TriangleManifold) evictTesters() {
	for key, t := range m.testers {
		if !t.Updated() {
			t.CleanUp()
			delete(m.testers, key)
			continue
		}
		t.SetUpdated(false)
	}
}

func near(a, b ContactData, sepSquared, normalDot float32) bool {
	return a.Position.Sub(b.Position).LenSqr() < sepSquared && a.Normal.Dot(b.Normal) >= normalDot
}

// meshTransform is the frame the mesh's contact anchors are stored in.
func meshTransform(mesh collidables.TriangleMesh) geom.AffineTransform {
	switch mesh := mesh.(type) {
	case *collidables.InstancedMesh:
		return mesh.Transform()
	case *collidables.Terrain:
		return mesh.Transform()
	}
	return geom.IdentityAffine()
}

// contactID combines the triangle and the tester's feature id.
func contactID(ti collidables.TriangleIndices, feature int) int {
	h := (ti.A * 73856093) ^ (ti.B * 19349663) ^ (ti.C * 83492791)
	return h<<2 | feature&3
}

func edgeOf(ti collidables.TriangleIndices, r geom.VoronoiRegion) Edge {
	switch r {
	case geom.RegionAB:
		return NewEdge(ti.A, ti.B)
	case geom.RegionAC:
		return NewEdge(ti.A, ti.C)
	}
	return NewEdge(ti.B, ti.C)
}

func vertexOf(ti collidables.TriangleIndices, r geom.VoronoiRegion) int {
	switch r {
	case geom.RegionA:
		return ti.A
	case geom.RegionB:
		return ti.B
	}
	return ti.C
}

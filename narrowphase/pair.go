package narrowphase

import (
	"fmt"

	"github.com/gekko3d/gekkophys/collidables"
	"github.com/go-gl/mathgl/mgl32"
)

// PairHandler owns the contact manifold of one pair of collidables.
type PairHandler interface {
	Initialize(a, b collidables.Collidable)
	// Update regenerates the manifold from the current placements.
	Update(dt float32)
	// Contacts have normals pointing from CollidableB toward CollidableA.
	Contacts() []Contact
	CollidableA() collidables.Collidable
	CollidableB() collidables.Collidable
	// CleanUp releases pooled state. The handler must not be used afterwards.
	CleanUp()
}

// NewPairHandler picks the handler for a pair by kind. Convex against mesh pairs are
// ordered so the convex comes first whatever the argument order. Two meshes never
// collide.
func NewPairHandler(a, b collidables.Collidable, settings Settings) (PairHandler, error) {
	var h PairHandler
	switch {
	case a.Kind() == collidables.KindConvex && b.Kind() == collidables.KindConvex:
		h = &ConvexManifold{settings: settings}
	case a.Kind() == collidables.KindConvex:
		h = NewTriangleManifold(settings)
	case b.Kind() == collidables.KindConvex:
		h = NewTriangleManifold(settings)
		a, b = b, a
	default:
		return nil, fmt.Errorf("%w: %s against %s", ErrUnsupportedPair, a.Kind(), b.Kind())
	}
	h.Initialize(a, b)
	return h, nil
}

// ConvexManifold holds the contacts between two convex collidables. Contacts are
// regenerated every update and reduced to MaximumContacts.
type ConvexManifold struct {
	settings Settings
	a, b     *collidables.Convex
	contacts []Contact
	scratch  []ContactData
	reducer  ContactReducer
}

func (m *ConvexManifold) Initialize(a, b collidables.Collidable) {
	ca, okA := a.(*collidables.Convex)
	cb, okB := b.(*collidables.Convex)
	if !okA || !okB {
		panic(fmt.Sprintf("narrowphase: convex manifold needs two convexes, got %s and %s", a.Kind(), b.Kind()))
	}
	m.a, m.b = ca, cb
}

func (m *ConvexManifold) CollidableA() collidables.Collidable { return m.a }
func (m *ConvexManifold) CollidableB() collidables.Collidable { return m.b }
func (m *ConvexManifold) Contacts() []Contact                 { return m.contacts }

func (m *ConvexManifold) CleanUp() {
	m.contacts = m.contacts[:0]
	m.a, m.b = nil, nil
}

func (m *ConvexManifold) Update(dt float32) {
	ta, tb := m.a.Transform(), m.b.Transform()
	m.scratch = collideConvex(m.a, m.b, m.settings.CollisionMargin, m.scratch[:0])
	m.contacts = m.contacts[:0]
	_, keep := m.reducer.ReduceContacts(nil, m.scratch)
	for _, c := range keep {
		m.contacts = append(m.contacts, anchorContact(c, ta, tb))
	}
}

// frame is a placement contact anchors can be expressed in.
type frame interface {
	TransformPoint(p mgl32.Vec3) mgl32.Vec3
	InverseTransformPoint(p mgl32.Vec3) mgl32.Vec3
}

// anchorContact records where the contact sits on both objects.
func anchorContact(c ContactData, a, b frame) Contact {
	return Contact{
		ContactData: c,
		Supplement: ContactSupplementData{
			BasePenetrationDepth: c.PenetrationDepth,
			LocalOffsetA:         a.InverseTransformPoint(c.Position),
			LocalOffsetB:         b.InverseTransformPoint(c.Position),
		},
	}
}

// refreshContact re-derives depth and position from the anchors. It reports false
// when the anchors drifted apart tangentially by more than sqrt(limitSquared) or the
// contact separated beyond margin.
func refreshContact(c *Contact, a, b frame, limitSquared, margin float32) bool {
	pa := a.TransformPoint(c.Supplement.LocalOffsetA)
	pb := b.TransformPoint(c.Supplement.LocalOffsetB)
	ds := pb.Sub(pa)
	along := ds.Dot(c.Normal)
	c.PenetrationDepth = c.Supplement.BasePenetrationDepth + along
	c.Position = pb
	lateral := ds.Sub(c.Normal.Mul(along))
	return lateral.LenSqr() <= limitSquared && c.PenetrationDepth >= -margin
}

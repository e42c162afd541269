package character

import (
	"github.com/gekko3d/gekkophys/broadphase"
	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/gekko3d/gekkophys/narrowphase"
	"github.com/go-gl/mathgl/mgl32"
)

// World is the part of the broad phase the character searches.
type World interface {
	GetEntries(box geom.AABB, out []broadphase.Entry) []broadphase.Entry
	RayCastNearest(r geom.Ray, maxLength float32, exact func(broadphase.Entry) (float32, bool)) (broadphase.Entry, float32, bool)
}

// QueryManager answers what a shape would touch at a hypothetical placement without
// disturbing the persistent manifolds of the narrow phase. A QueryManager belongs to a
// single character and is not safe for concurrent use.
type QueryManager struct {
	world       World
	settings    narrowphase.Settings
	categorizer *ContactCategorizer
	self        collidables.Collidable
	down        mgl32.Vec3

	probe    *collidables.Convex
	entries  []broadphase.Entry
	pairs    []narrowphase.PairContact
	contacts []CharacterContact
}

// NewQueryManager creates the queries of the character whose collidable is self. self
// is never reported.
func NewQueryManager(world World, settings narrowphase.Settings, categorizer *ContactCategorizer, self collidables.Collidable, down mgl32.Vec3) *QueryManager {
	probe := collidables.NewConvex(&geom.Sphere{Radius: 1}, collidables.NewBody(mgl32.Vec3{}, 1), settings.CollisionMargin)
	return &QueryManager{
		world:       world,
		settings:    settings,
		categorizer: categorizer,
		self:        self,
		down:        down,
		probe:       probe,
	}
}

// QueryContacts places shape at position, collides it with every collidable whose box it
// overlaps and categorizes the result into out, which is reset first.
func (q *QueryManager) QueryContacts(shape geom.Shape, position mgl32.Vec3, out *ContactCategories) {
	out.Reset()
	q.contacts = q.appendContacts(shape, position, q.contacts[:0])
	q.categorizer.Categorize(q.contacts, q.down, position, out)
}

func (q *QueryManager) appendContacts(shape geom.Shape, position mgl32.Vec3, out []CharacterContact) []CharacterContact {
	q.probe.Shape = shape
	q.probe.Body.Position = position
	q.probe.UpdateBoundingBox()

	q.entries = q.world.GetEntries(q.probe.BoundingBox(), q.entries[:0])
	for _, e := range q.entries {
		other, ok := e.(collidables.Collidable)
		if !ok || other == q.self {
			continue
		}
		h, err := narrowphase.NewPairHandler(q.probe, other, q.settings)
		if err != nil {
			continue
		}
		h.Update(0)
		q.pairs = narrowphase.AppendOriented(q.pairs[:0], h, q.probe)
		h.CleanUp()
		for _, p := range q.pairs {
			out = append(out, CharacterContact{ContactData: p.ContactData, Collidable: p.Other})
		}
	}
	clear(q.entries)
	return out
}

// RayCast finds the nearest collidable other than the character hit within maxLength.
func (q *QueryManager) RayCast(r geom.Ray, maxLength float32) (geom.RayHit, collidables.Collidable, bool) {
	var (
		best     geom.RayHit
		bestHit  collidables.Collidable
		haveBest bool
	)
	_, _, ok := q.world.RayCastNearest(r, maxLength, func(e broadphase.Entry) (float32, bool) {
		c, ok := e.(collidables.Collidable)
		if !ok || c == q.self {
			return 0, false
		}
		hit, ok := c.RayCast(r, maxLength)
		if !ok {
			return 0, false
		}
		if !haveBest || hit.T < best.T {
			best, bestHit, haveBest = hit, c, true
		}
		return hit.T, true
	})
	if !ok || !haveBest {
		return geom.RayHit{}, nil, false
	}
	return best, bestHit, true
}

// Obstructed reports whether anything lies on the segment from a to b.
func (q *QueryManager) Obstructed(a, b mgl32.Vec3) bool {
	d := b.Sub(a)
	l := d.Len()
	if l < 1e-6 {
		return false
	}
	_, _, hit := q.RayCast(geom.Ray{Origin: a, Direction: d.Mul(1 / l)}, l)
	return hit
}

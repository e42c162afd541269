package character

import (
	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
)

// SupportData is the single contact the character stands on. Normal points from the
// support toward the character. Depth is measured along the down direction and is
// negative while the character hovers above the support.
type SupportData struct {
	Position      mgl32.Vec3
	Normal        mgl32.Vec3
	Depth         float32
	SupportObject collidables.Collidable
}

// SupportFinder turns the contacts of the character into support information once per
// tick. When the character walks off an edge it keeps probing below with rays so a
// following step down can find the ground.
type SupportFinder struct {
	queries     *QueryManager
	categorizer *ContactCategorizer
	down        mgl32.Vec3
	// reach is how far below the feet the fallback rays look.
	reach float32

	contacts ContactCategories

	supportData         SupportData
	verticalSupportData SupportData
	hasSupport          bool
	hasTraction         bool
	hadTraction         bool

	ray         SupportData
	rayHit      bool
	rayTraction bool
}

func NewSupportFinder(queries *QueryManager, categorizer *ContactCategorizer, down mgl32.Vec3, reach float32) *SupportFinder {
	return &SupportFinder{queries: queries, categorizer: categorizer, down: down, reach: reach}
}

func (s *SupportFinder) HasSupport() bool                     { return s.hasSupport }
func (s *SupportFinder) HasTraction() bool                    { return s.hasTraction }
func (s *SupportFinder) HadTraction() bool                    { return s.hadTraction }
func (s *SupportFinder) SupportData() SupportData             { return s.supportData }
func (s *SupportFinder) VerticalSupportData() SupportData     { return s.verticalSupportData }
func (s *SupportFinder) Supports() []CharacterContact         { return s.contacts.Support }
func (s *SupportFinder) TractionContacts() []CharacterContact { return s.contacts.Traction }
func (s *SupportFinder) SideContacts() []CharacterContact     { return s.contacts.Side }
func (s *SupportFinder) HeadContacts() []CharacterContact     { return s.contacts.Head }

// Contacts exposes every bucket of the current tick.
func (s *SupportFinder) Contacts() *ContactCategories { return &s.contacts }

// SupportRay returns the ground found by the fallback rays this tick.
func (s *SupportFinder) SupportRay() (SupportData, bool) { return s.ray, s.rayHit }

// ClearTraction forgets the traction of the previous tick, e.g. after a jump, so no
// step down follows.
func (s *SupportFinder) ClearTraction() {
	s.hadTraction = false
	s.hasTraction = false
}

// UpdateSupports categorizes contacts seen from a cylinder of the given height and
// radius centered on position.
func (s *SupportFinder) UpdateSupports(contacts []CharacterContact, position mgl32.Vec3, height, radius float32, movement mgl32.Vec3) {
	s.hadTraction = s.hasTraction
	s.contacts.Reset()
	s.categorizer.Categorize(contacts, s.down, position, &s.contacts)

	s.rayHit, s.rayTraction = false, false
	if len(s.contacts.Support) == 0 && s.hadTraction {
		s.castSupportRays(position, height, radius, movement)
	}

	switch {
	case len(s.contacts.Traction) > 0:
		s.supportData = s.aggregate(s.contacts.Traction)
	case len(s.contacts.Support) > 0:
		s.supportData = s.aggregate(s.contacts.Support)
	case s.rayHit:
		s.supportData = s.ray
	default:
		s.supportData = SupportData{}
	}
	switch {
	case len(s.contacts.Traction) > 0:
		s.verticalSupportData = s.supportData
	case s.rayTraction:
		s.verticalSupportData = s.ray
	default:
		s.verticalSupportData = SupportData{}
	}
	s.hasSupport = len(s.contacts.Support) > 0 || s.rayHit
	s.hasTraction = len(s.contacts.Traction) > 0 || s.rayTraction
}

// aggregate averages position and normal over the bucket and takes depth and object from
// the contact deepest along down.
func (s *SupportFinder) aggregate(bucket []CharacterContact) SupportData {
	var position, normal mgl32.Vec3
	deepest := -1
	var depth float32
	for i, c := range bucket {
		position = position.Add(c.Position)
		normal = normal.Add(c.Normal)
		d := c.PenetrationDepth * c.Normal.Dot(s.down)
		if deepest < 0 || d > depth {
			deepest, depth = i, d
		}
	}
	inv := 1 / float32(len(bucket))
	return SupportData{
		Position:      position.Mul(inv),
		Normal:        geom.SafeNormalize(normal.Mul(-1), s.down.Mul(-1)),
		Depth:         depth,
		SupportObject: bucket[deepest].Collidable,
	}
}

// castSupportRays looks for ground straight below, then ahead along the movement and to
// both sides of it. The earliest hit that passes the support slope wins. A ray whose
// origin cannot be reached from the center without hitting something is skipped.
func (s *SupportFinder) castSupportRays(position mgl32.Vec3, height, radius float32, movement mgl32.Vec3) {
	halfHeight := height / 2
	length := halfHeight + s.reach
	origins := [4]mgl32.Vec3{position}
	count := 1
	if flat := movement.Sub(s.down.Mul(movement.Dot(s.down))); flat.LenSqr() > 1e-8 {
		forward := flat.Normalize().Mul(radius)
		side := forward.Cross(s.down)
		origins[1] = position.Add(forward)
		origins[2] = position.Add(side)
		origins[3] = position.Sub(side)
		count = 4
	}

	for _, origin := range origins[:count] {
		if origin != position && s.queries.Obstructed(position, origin) {
			continue
		}
		hit, c, ok := s.queries.RayCast(geom.Ray{Origin: origin, Direction: s.down}, length)
		if !ok {
			continue
		}
		if hit.Normal.Dot(s.down) > 0 {
			hit.Normal = hit.Normal.Mul(-1)
		}
		outward := hit.Normal.Mul(-1)
		if !s.categorizer.HasSupport(outward, s.down) {
			continue
		}
		if s.rayHit && hit.T >= halfHeight-s.ray.Depth {
			continue
		}
		s.ray = SupportData{Position: hit.Position, Normal: hit.Normal, Depth: halfHeight - hit.T, SupportObject: c}
		s.rayHit = true
		s.rayTraction = s.categorizer.HasTraction(outward, s.down)
	}
}

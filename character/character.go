package character

import (
	"cmp"
	"slices"
	"sync"

	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/gekko3d/gekkophys/logging"
	"github.com/gekko3d/gekkophys/narrowphase"
	"github.com/go-gl/mathgl/mgl32"
)

// ContactSource hands out the persistent contacts of a collidable, normals pointing
// toward it. *narrowphase.NarrowPhase implements it.
type ContactSource interface {
	ContactsOf(c collidables.Collidable, out []narrowphase.PairContact) []narrowphase.PairContact
}

type Option func(*Character)

func WithLogger(l logging.Logger) Option {
	return func(c *Character) { c.logger = logging.OrNop(l) }
}

// Character is an upright cylinder driven by a movement direction. Update computes the
// next state from the current contacts without touching the body, so characters can be
// updated in parallel; Commit applies it.
type Character struct {
	mu       sync.Mutex
	settings Settings
	down     mgl32.Vec3
	logger   logging.Logger

	Body       *collidables.Body
	collidable *collidables.Convex
	shape      *geom.Cylinder

	Queries *QueryManager
	Support *SupportFinder
	Steps   *StepManager
	Stance  *StanceManager

	movement mgl32.Vec3
	jump     bool

	pairs    []narrowphase.PairContact
	contacts []CharacterContact
	others   []*Character

	next    state
	pending bool
	// pushed is the velocity change other characters caused during this tick. It is
	// added at Commit so it does not depend on which character updated first.
	pushed mgl32.Vec3
}

type state struct {
	position mgl32.Vec3
	velocity mgl32.Vec3
}

// NewCharacter creates a standing character centered on position. world is searched by
// step and stance probes and must also index the character's collidable.
func NewCharacter(position mgl32.Vec3, settings Settings, world World, narrow narrowphase.Settings, opts ...Option) (*Character, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := narrow.Validate(); err != nil {
		return nil, err
	}
	categorizer, err := NewContactCategorizer(radians(settings.MaximumTractionSlope), radians(settings.MaximumSupportSlope), settings.HeadThreshold)
	if err != nil {
		return nil, err
	}
	down := mgl32.Vec3{0, -1, 0}

	body := collidables.NewBody(position, settings.Mass)
	body.GravityScale = 0
	shape := &geom.Cylinder{Radius: settings.Radius, HalfHeight: settings.StandingHeight / 2}
	c := &Character{
		settings: settings,
		down:     down,
		logger:   logging.NewNopLogger(),
		Body:     body,
		shape:    shape,
	}
	c.collidable = collidables.NewConvex(shape, body, narrow.CollisionMargin)
	c.collidable.Owner = c

	c.Queries = NewQueryManager(world, narrow, categorizer, c.collidable, down)
	c.Support = NewSupportFinder(c.Queries, categorizer, down, settings.MaximumStepHeight)
	c.Steps = NewStepManager(settings, c.Queries, down)
	c.Stance = NewStanceManager(settings, c.Queries, down)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Character) Collidable() *collidables.Convex { return c.collidable }
func (c *Character) Settings() Settings               { return c.settings }
func (c *Character) InstanceID() uint64               { return c.Body.InstanceID() }

func (c *Character) Position() mgl32.Vec3 { return c.Body.Position }

// Height is the height of the current stance.
func (c *Character) Height() float32 { return c.settings.Height(c.Stance.CurrentStance()) }

// SetMovementDirection sets the horizontal direction to walk in. Vectors longer than one
// are normalized.
func (c *Character) SetMovementDirection(dir mgl32.Vec2) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := mgl32.Vec3{dir[0], 0, dir[1]}
	if v.LenSqr() > 1 {
		v = v.Normalize()
	}
	c.movement = v
}

// Jump makes the character jump on its next update if it has traction then.
func (c *Character) Jump() {
	c.mu.Lock()
	c.jump = true
	c.mu.Unlock()
}

// SetDesiredStance reports false and keeps the previous wish when s is not a Stance.
func (c *Character) SetDesiredStance(s Stance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Stance.SetDesiredStance(s)
}

// Update computes the next placement and velocity of the character. The characters it
// touches are locked for the duration in ascending instance id order.
func (c *Character) Update(dt float32, source ContactSource, gravity mgl32.Vec3) {
	c.pairs = source.ContactsOf(c.collidable, c.pairs[:0])
	c.others = c.others[:0]
	for _, p := range c.pairs {
		if o := characterOf(p.Other); o != nil {
			c.others = append(c.others, o)
		}
	}
	unlock := lockCharacters(append(c.others, c))
	defer unlock()

	c.contacts = c.contacts[:0]
	for _, p := range c.pairs {
		c.contacts = append(c.contacts, CharacterContact{ContactData: p.ContactData, Collidable: p.Other})
	}
	c.next = c.step(dt, gravity)
	c.pending = true
}

func (c *Character) step(dt float32, gravity mgl32.Vec3) state {
	s := state{position: c.Body.Position, velocity: c.Body.LinearVelocity}
	up := c.down.Mul(-1)
	radius := c.settings.Radius
	height := c.Height()
	c.Support.UpdateSupports(c.contacts, s.position, height, radius, c.movement)

	// Contacts describe the placement before any teleport of this update.
	teleported := false
	if desired, current := c.Stance.DesiredStance(), c.Stance.CurrentStance(); desired != current {
		if p, ok := c.Stance.CheckTransition(desired, s.position, c.Support.HasSupport(), c.Support.Contacts()); ok {
			c.logger.Debugf("character %d: stance %s -> %s", c.InstanceID(), current, desired)
			s.position, teleported = p, true
			height = c.Height()
		}
	}
	shape := c.Stance.Shape(c.Stance.CurrentStance())
	if !teleported {
		if p, ok := c.Steps.TryToStepUp(shape, s.position, height, radius, c.movement, c.Support); ok {
			c.logger.Debugf("character %d: step up %.3f", c.InstanceID(), p.Sub(s.position).Dot(up))
			s.position, teleported = p, true
		} else if p, ok := c.Steps.TryToStepDown(shape, s.position, c.Support); ok {
			c.logger.Debugf("character %d: step down %.3f", c.InstanceID(), s.position.Sub(p).Dot(up))
			s.position, teleported = p, true
		}
	}

	target := c.movement.Mul(c.settings.Speed(c.Stance.CurrentStance()))
	switch {
	case c.Support.HasTraction() && c.jump:
		s.velocity = flatten(target, up).Add(up.Mul(c.settings.JumpSpeed))
		c.Support.ClearTraction()
	case c.Support.HasTraction():
		support := c.Support.VerticalSupportData()
		s.velocity = flatten(target, support.Normal)
		if !teleported {
			// Keep the feet just inside the support.
			s.position = s.position.Add(up.Mul(support.Depth - c.settings.AllowedPenetration/2))
		}
	default:
		s.velocity = s.velocity.Add(gravity.Mul(dt))
		if c.movement.LenSqr() > 0 {
			horizontal := flatten(s.velocity, up)
			want := c.movement.Mul(c.settings.AirSpeed)
			change := want.Sub(horizontal)
			if limit := c.settings.AirAcceleration * dt; change.Len() > limit {
				change = change.Normalize().Mul(limit)
			}
			s.velocity = s.velocity.Add(change)
		}
	}
	c.jump = false

	if !teleported {
		s = c.resolveObstacles(s, c.Support.SideContacts(), true)
		s = c.resolveObstacles(s, c.Support.HeadContacts(), false)
	}
	s.position = s.position.Add(s.velocity.Mul(dt))
	return s
}

// resolveObstacles removes the velocity pointing into walls or ceilings and pushes the
// character out of anything deeper than the allowed penetration. Dynamic bodies in the
// way receive the removed momentum.
func (c *Character) resolveObstacles(s state, contacts []CharacterContact, side bool) state {
	allowed := c.settings.AllowedPenetration
	for _, contact := range contacts {
		if side && c.Support.categorizer.HasSupport(contact.Normal, c.down) {
			continue
		}
		n := contact.Normal
		if approach := s.velocity.Dot(n); approach > 0 {
			s.velocity = s.velocity.Sub(n.Mul(approach))
			c.push(contact, n.Mul(approach))
		}
		if contact.PenetrationDepth > allowed {
			s.position = s.position.Sub(n.Mul(contact.PenetrationDepth - allowed))
		}
	}
	return s
}

func (c *Character) push(contact CharacterContact, relative mgl32.Vec3) {
	other, ok := contact.Collidable.(*collidables.Convex)
	if !ok || other.IsStatic() {
		return
	}
	b := other.Body
	impulse := relative.Mul(1 / (c.Body.InverseMass + b.InverseMass))
	if o := characterOf(other); o != nil {
		// Update holds o.mu.
		o.pushed = o.pushed.Add(impulse.Mul(b.InverseMass))
		return
	}
	b.Lock()
	b.ApplyImpulse(impulse, contact.Position.Sub(b.Position))
	b.Unlock()
}

// Commit applies the state computed by Update plus any push received from other
// characters, and refreshes the bounding box. It must not run concurrently with any
// Update.
func (c *Character) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		c.Body.Position = c.next.position
		c.Body.LinearVelocity = c.next.velocity
		c.shape.HalfHeight = c.Height() / 2
		c.collidable.UpdateBoundingBox()
		c.pending = false
	}
	c.Body.LinearVelocity = c.Body.LinearVelocity.Add(c.pushed)
	c.pushed = mgl32.Vec3{}
}

// flatten removes the component of v along n.
func flatten(v, n mgl32.Vec3) mgl32.Vec3 {
	return v.Sub(n.Mul(v.Dot(n)))
}

func characterOf(c collidables.Collidable) *Character {
	convex, ok := c.(*collidables.Convex)
	if !ok {
		return nil
	}
	ch, _ := convex.Owner.(*Character)
	return ch
}

// lockOrder sorts characters by instance id and drops duplicates.
func lockOrder(cs []*Character) []*Character {
	slices.SortFunc(cs, func(a, b *Character) int { return cmp.Compare(a.InstanceID(), b.InstanceID()) })
	return slices.Compact(cs)
}

// lockCharacters locks cs in ascending instance id order and returns the function that
// unlocks them in reverse.
func lockCharacters(cs []*Character) func() {
	cs = lockOrder(cs)
	for _, ch := range cs {
		ch.mu.Lock()
	}
	return func() {
		for i := len(cs) - 1; i >= 0; i-- {
			cs[i].mu.Unlock()
		}
	}
}

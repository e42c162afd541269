// Package gekkophys ties the collision core together: a Space owns the broad phase, the
// narrow phase, the dynamic bodies and the characters, and advances them with a fixed
// time step.
package gekkophys

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/gekko3d/gekkophys/broadphase"
	"github.com/gekko3d/gekkophys/character"
	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/gekko3d/gekkophys/logging"
	"github.com/gekko3d/gekkophys/narrowphase"
	"github.com/gekko3d/gekkophys/parallel"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var (
	ErrDuplicateCollidable = errors.New("gekkophys: collidable already in space")
	ErrUnknownCollidable   = errors.New("gekkophys: collidable not in space")
)

type Option func(*Space)

// WithScheduler replaces the task pool sized from Config.Threads.
func WithScheduler(s parallel.Scheduler) Option {
	return func(sp *Space) { sp.scheduler = s }
}

func WithLogger(l logging.Logger) Option {
	return func(sp *Space) { sp.logger = logging.OrNop(l) }
}

// Space is a simulated world. Its methods are not safe for concurrent use; the work of
// a step is spread over the scheduler internally.
type Space struct {
	config    Config
	scheduler parallel.Scheduler
	logger    logging.Logger
	clock     *Clock

	broad  *broadphase.Hierarchy
	narrow *narrowphase.NarrowPhase

	collidables map[uuid.UUID]collidables.Collidable
	dynamic     []*collidables.Convex
	characters  []*character.Character
	unstable    []bool
}

func NewSpace(config Config, opts ...Option) (*Space, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Space{
		config:      config,
		logger:      logging.NewNopLogger(),
		clock:       NewClock(config.TimeStep),
		collidables: make(map[uuid.UUID]collidables.Collidable),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scheduler == nil {
		if config.Threads == 1 {
			s.scheduler = parallel.InlineScheduler{}
		} else {
			s.scheduler = parallel.NewTaskPool(config.Threads)
		}
	}
	s.logger.Debugf("space: %d scheduler threads, dt %.4f", s.scheduler.ThreadCount(), config.TimeStep.Dt)

	var err error
	s.broad, err = broadphase.NewHierarchy(config.BroadPhase,
		broadphase.WithScheduler(s.scheduler),
		broadphase.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.narrow, err = narrowphase.New(config.NarrowPhase,
		narrowphase.WithScheduler(s.scheduler),
		narrowphase.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Space) Config() Config                        { return s.config }
func (s *Space) BroadPhase() *broadphase.Hierarchy     { return s.broad }
func (s *Space) NarrowPhase() *narrowphase.NarrowPhase { return s.narrow }
func (s *Space) Clock() *Clock                         { return s.clock }
func (s *Space) Characters() []*character.Character    { return s.characters }

// Add inserts a collidable. Dynamic convex bodies are integrated by Step.
func (s *Space) Add(c collidables.Collidable) error {
	if _, ok := s.collidables[c.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCollidable, c.ID())
	}
	c.UpdateBoundingBox()
	if err := s.broad.Add(c); err != nil {
		return fmt.Errorf("add %s %s: %w", c.Kind(), c.ID(), err)
	}
	s.collidables[c.ID()] = c
	if convex, ok := c.(*collidables.Convex); ok && !convex.IsStatic() && characterOf(convex) == nil {
		s.dynamic = append(s.dynamic, convex)
	}
	return nil
}

// AddConvex creates a convex collidable from shape and adds it. A non-positive mass
// makes it static.
func (s *Space) AddConvex(shape geom.Shape, position mgl32.Vec3, mass float32) (*collidables.Convex, error) {
	c := collidables.NewConvex(shape, collidables.NewBody(position, mass), s.config.NarrowPhase.CollisionMargin)
	if err := s.Add(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Remove drops a collidable, or the character owning it, along with every contact pair
// it is part of.
func (s *Space) Remove(id uuid.UUID) error {
	c, ok := s.collidables[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollidable, id)
	}
	s.broad.Remove(c)
	s.narrow.RemoveCollidable(c)
	delete(s.collidables, id)
	if convex, ok := c.(*collidables.Convex); ok {
		s.dynamic = slices.DeleteFunc(s.dynamic, func(d *collidables.Convex) bool { return d == convex })
		if ch := characterOf(convex); ch != nil {
			s.characters = slices.DeleteFunc(s.characters, func(o *character.Character) bool { return o == ch })
		}
	}
	return nil
}

func (s *Space) Collidable(id uuid.UUID) (collidables.Collidable, bool) {
	c, ok := s.collidables[id]
	return c, ok
}

// Count is the number of collidables in the space, characters included.
func (s *Space) Count() int { return len(s.collidables) }

// AddCharacter creates a standing character centered on position using the character
// settings of the config.
func (s *Space) AddCharacter(position mgl32.Vec3) (*character.Character, error) {
	return s.AddCharacterWith(position, s.config.Character)
}

func (s *Space) AddCharacterWith(position mgl32.Vec3, settings character.Settings) (*character.Character, error) {
	ch, err := character.NewCharacter(position, settings, s.broad, s.config.NarrowPhase, character.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	if err := s.Add(ch.Collidable()); err != nil {
		return nil, err
	}
	s.characters = append(s.characters, ch)
	return ch, nil
}

// Update advances the space by frameDt seconds of wall time in fixed steps and returns
// the number of steps taken.
func (s *Space) Update(frameDt float32) (int, error) {
	steps := s.clock.Advance(frameDt)
	var errs []error
	for i := 0; i < steps; i++ {
		if err := s.Step(); err != nil {
			errs = append(errs, err)
		}
	}
	return steps, errors.Join(errs...)
}

// Step runs one fixed step: integrate dynamic bodies, refit the broad phase, collect
// and refresh pairs, then update and commit the characters.
func (s *Space) Step() error {
	dt := s.config.TimeStep.Dt
	s.integrate(dt)

	if s.scheduler.ThreadCount() > 1 {
		s.broad.RefitParallel()
	} else {
		s.broad.Refit()
	}
	s.narrow.BeginTick()
	if s.scheduler.ThreadCount() > 1 {
		s.broad.FindOverlappingPairsParallel(s.narrow)
	} else {
		s.broad.FindOverlappingPairs(s.narrow)
	}
	err := s.narrow.Update(dt)
	if err != nil {
		s.logger.Warnf("space: %v", err)
	}
	s.wakeTouched()

	gravity := s.config.Gravity
	parallel.For(s.scheduler, len(s.characters), func(i int) {
		s.characters[i].Update(dt, s.narrow, gravity)
	})
	for _, ch := range s.characters {
		ch.Commit()
	}
	return err
}

func (s *Space) integrate(dt float32) {
	if cap(s.unstable) < len(s.dynamic) {
		s.unstable = make([]bool, len(s.dynamic))
	}
	s.unstable = s.unstable[:len(s.dynamic)]
	var failed atomic.Int32
	parallel.For(s.scheduler, len(s.dynamic), func(i int) {
		c := s.dynamic[i]
		ok := c.Body.Integrate(dt, s.config.Gravity)
		s.unstable[i] = !ok
		if !ok {
			failed.Add(1)
		}
		c.Body.UpdateSleep(dt, s.config.SleepThreshold, s.config.SleepTime)
		c.UpdateBoundingBox()
	})
	if failed.Load() == 0 {
		return
	}
	for i, bad := range s.unstable {
		if bad {
			s.logger.Warnf("space: body %s produced a non-finite displacement, velocity reset", s.dynamic[i].ID())
		}
	}
}

// wakeTouched wakes sleeping bodies that touch an awake moving one.
func (s *Space) wakeTouched() {
	for _, p := range s.narrow.Pairs() {
		a, okA := p.Handler.CollidableA().(*collidables.Convex)
		b, okB := p.Handler.CollidableB().(*collidables.Convex)
		if !okA || !okB || len(p.Handler.Contacts()) == 0 {
			continue
		}
		switch {
		case a.Body.Sleeping && moving(b):
			a.Body.Wake()
		case b.Body.Sleeping && moving(a):
			b.Body.Wake()
		}
	}
}

func moving(c *collidables.Convex) bool {
	return !c.IsStatic() && !c.Body.Sleeping && c.Body.LinearVelocity.LenSqr() > 0
}

// RayCast returns the nearest hit along r within maxLength.
func (s *Space) RayCast(r geom.Ray, maxLength float32) (geom.RayHit, collidables.Collidable, bool) {
	var best geom.RayHit
	found := false
	e, _, ok := s.broad.RayCastNearest(r, maxLength, func(e broadphase.Entry) (float32, bool) {
		c, ok := e.(collidables.Collidable)
		if !ok {
			return 0, false
		}
		hit, ok := c.RayCast(r, maxLength)
		if !ok || (found && hit.T >= best.T) {
			return 0, false
		}
		best, found = hit, true
		return hit.T, true
	})
	if !ok {
		return geom.RayHit{}, nil, false
	}
	return best, e.(collidables.Collidable), true
}

// Overlapping appends the collidables whose boxes overlap box.
func (s *Space) Overlapping(box geom.AABB, out []collidables.Collidable) []collidables.Collidable {
	for _, e := range s.broad.GetEntries(box, nil) {
		if c, ok := e.(collidables.Collidable); ok {
			out = append(out, c)
		}
	}
	return out
}

func characterOf(c *collidables.Convex) *character.Character {
	ch, _ := c.Owner.(*character.Character)
	return ch
}

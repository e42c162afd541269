package gekkophys

import (
	"testing"

	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSpace(t *testing.T, modify func(*Config)) *Space {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Threads = 1
	if modify != nil {
		modify(&cfg)
	}
	s, err := NewSpace(cfg)
	require.NoError(t, err)
	return s
}

func addGround(t *testing.T, s *Space) *collidables.Convex {
	t.Helper()
	g, err := s.AddConvex(&geom.Box{HalfExtents: mgl32.Vec3{20, 0.5, 20}}, mgl32.Vec3{0, -0.5, 0}, 0)
	require.NoError(t, err)
	return g
}

func TestNewSpaceRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeStep.MaxStepsPerFrame = 0
	_, err := NewSpace(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSpaceAddRemove(t *testing.T) {
	s := newTestSpace(t, nil)
	ground := addGround(t, s)
	ball, err := s.AddConvex(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{0, 0.49, 0}, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Add(ball), ErrDuplicateCollidable)
	assert.ErrorIs(t, s.Remove(uuid.New()), ErrUnknownCollidable)

	require.NoError(t, s.Step())
	assert.Equal(t, 1, s.NarrowPhase().PairCount())

	require.NoError(t, s.Remove(ball.ID()))
	assert.Zero(t, s.NarrowPhase().PairCount())
	assert.Equal(t, 1, s.Count())
	_, ok := s.Collidable(ground.ID())
	assert.True(t, ok)
	assert.False(t, s.BroadPhase().Contains(ball))
}

func TestSpaceIntegratesDynamicBodies(t *testing.T) {
	s := newTestSpace(t, func(c *Config) { c.TimeStep.Dt = 0.125 })
	ball, err := s.AddConvex(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{0, 100, 0}, 1)
	require.NoError(t, err)

	steps, err := s.Update(1)
	require.NoError(t, err)
	assert.Equal(t, 4, steps, "capped by max steps per frame")
	assert.InDelta(t, -9.81*0.5, ball.Body.LinearVelocity.Y(), 1e-4)
	assert.Less(t, ball.Body.Position.Y(), float32(100))
	assert.InDelta(t, ball.Body.Position.Y()-0.5, ball.BoundingBox().Min.Y(), float64(ball.Margin)+1e-4)
}

func TestSpaceSleepAndWake(t *testing.T) {
	s := newTestSpace(t, func(c *Config) {
		c.Gravity = mgl32.Vec3{}
		c.SleepTime = 0.1
	})
	resting, err := s.AddConvex(&geom.Box{HalfExtents: mgl32.Vec3{0.5, 0.5, 0.5}}, mgl32.Vec3{}, 1)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Step())
	}
	require.True(t, resting.Body.Sleeping)

	mover, err := s.AddConvex(&geom.Box{HalfExtents: mgl32.Vec3{0.5, 0.5, 0.5}}, mgl32.Vec3{0.99, 0, 0}, 1)
	require.NoError(t, err)
	mover.Body.LinearVelocity = mgl32.Vec3{-1, 0, 0}
	require.NoError(t, s.Step())
	assert.False(t, resting.Body.Sleeping)
}

func TestSpaceRayCast(t *testing.T) {
	s := newTestSpace(t, nil)
	ground := addGround(t, s)
	box, err := s.AddConvex(&geom.Box{HalfExtents: mgl32.Vec3{1, 1, 1}}, mgl32.Vec3{5, 1, 0}, 0)
	require.NoError(t, err)
	require.NoError(t, s.Step())

	tests := []struct {
		name string
		ray  geom.Ray
		want collidables.Collidable
		t    float32
	}{
		{"ground", geom.Ray{Origin: mgl32.Vec3{0, 10, 0}, Direction: mgl32.Vec3{0, -1, 0}}, ground, 10},
		{"box in front of ground", geom.Ray{Origin: mgl32.Vec3{5, 10, 0}, Direction: mgl32.Vec3{0, -1, 0}}, box, 8},
		{"side of box", geom.Ray{Origin: mgl32.Vec3{0, 1, 0}, Direction: mgl32.Vec3{1, 0, 0}}, box, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, c, ok := s.RayCast(tt.ray, 50)
			require.True(t, ok)
			assert.Same(t, tt.want, c)
			assert.InDelta(t, tt.t, hit.T, 1e-4)
		})
	}

	_, _, ok := s.RayCast(geom.Ray{Origin: mgl32.Vec3{0, 10, 0}, Direction: mgl32.Vec3{0, 1, 0}}, 50)
	assert.False(t, ok)
}

func TestSpaceCharacterStandsAndWalks(t *testing.T) {
	for _, threads := range []int{1, 4} {
		s := newTestSpace(t, func(c *Config) { c.Threads = threads })
		addGround(t, s)
		a, err := s.AddCharacter(mgl32.Vec3{0, 0.845, 0})
		require.NoError(t, err)
		b, err := s.AddCharacter(mgl32.Vec3{5, 0.845, 0})
		require.NoError(t, err)
		a.SetMovementDirection(mgl32.Vec2{0, 1})

		for i := 0; i < 60; i++ {
			require.NoError(t, s.Step())
		}
		speed := s.Config().Character.StandingSpeed
		assert.InDelta(t, speed, a.Position().Z(), 0.2, "threads %d", threads)
		assert.InDelta(t, 0.845, a.Position().Y(), 0.01)
		assert.InDelta(t, 5, b.Position().X(), 1e-4)
		assert.True(t, b.Support.HasTraction())

		require.NoError(t, s.Remove(a.Collidable().ID()))
		assert.Len(t, s.Characters(), 1)
	}
}

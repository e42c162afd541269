// Package narrowphase generates contact manifolds for the pairs the broad phase reports:
// convex against convex, and convex against triangle meshes and terrain.
package narrowphase

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedPair = errors.New("narrowphase: unsupported collidable pair")
	ErrInvalidSettings = errors.New("narrowphase: invalid settings")
)

// MaximumContacts is the manifold size after reduction.
const MaximumContacts = 4

type Settings struct {
	// CollisionMargin is the speculative distance at which contacts with negative depth
	// are already generated.
	CollisionMargin float32 `yaml:"collision_margin"`
	// ContactMinimumSeparationDistance merges new contacts closer than this to an
	// existing one with a similar normal.
	ContactMinimumSeparationDistance float32 `yaml:"contact_minimum_separation_distance"`
	// NonconvexNormalDotMinimum is the normal agreement required to merge two contacts.
	NonconvexNormalDotMinimum float32 `yaml:"nonconvex_normal_dot_minimum"`
	// ContactInvalidationLength drops a refreshed contact whose anchors slid apart
	// tangentially by more than this.
	ContactInvalidationLength float32 `yaml:"contact_invalidation_length"`
}

func DefaultSettings() Settings {
	return Settings{
		CollisionMargin:                  0.04,
		ContactMinimumSeparationDistance: 0.03,
		NonconvexNormalDotMinimum:        0.99,
		ContactInvalidationLength:        0.1,
	}
}

func (s Settings) Validate() error {
	if s.CollisionMargin < 0 {
		return fmt.Errorf("%w: collision margin must not be negative", ErrInvalidSettings)
	}
	if s.ContactMinimumSeparationDistance < 0 {
		return fmt.Errorf("%w: contact minimum separation distance must not be negative", ErrInvalidSettings)
	}
	if s.NonconvexNormalDotMinimum < -1 || s.NonconvexNormalDotMinimum > 1 {
		return fmt.Errorf("%w: nonconvex normal dot minimum must be in [-1, 1], got %g", ErrInvalidSettings, s.NonconvexNormalDotMinimum)
	}
	if s.ContactInvalidationLength <= 0 {
		return fmt.Errorf("%w: contact invalidation length must be positive", ErrInvalidSettings)
	}
	return nil
}

func (s Settings) separationSquared() float32 {
	return s.ContactMinimumSeparationDistance * s.ContactMinimumSeparationDistance
}

// Package character implements a cylinder character controller on top of the collision
// core: contact categorization, support finding, step up and step down, stance changes
// and a kinematic motion step.
package character

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

var ErrInvalidSettings = errors.New("character: invalid settings")

// maxIterations bounds every step and stance search.
const maxIterations = 5

// Stance is ordered from tallest to shortest.
type Stance int

const (
	Standing Stance = iota
	Crouching
	Prone
)

func (s Stance) Valid() bool { return s >= Standing && s <= Prone }

func (s Stance) String() string {
	switch s {
	case Standing:
		return "standing"
	case Crouching:
		return "crouching"
	case Prone:
		return "prone"
	}
	return fmt.Sprintf("Stance(%d)", int(s))
}

// Settings configures a character. Slopes are in degrees and are converted into
// thresholds once, when the character is created.
type Settings struct {
	StandingHeight  float32 `yaml:"standing_height"`
	CrouchingHeight float32 `yaml:"crouching_height"`
	ProneHeight     float32 `yaml:"prone_height"`
	Radius          float32 `yaml:"radius"`
	Mass            float32 `yaml:"mass"`

	StandingSpeed   float32 `yaml:"standing_speed"`
	CrouchingSpeed  float32 `yaml:"crouching_speed"`
	ProneSpeed      float32 `yaml:"prone_speed"`
	AirSpeed        float32 `yaml:"air_speed"`
	AirAcceleration float32 `yaml:"air_acceleration"`
	JumpSpeed       float32 `yaml:"jump_speed"`

	MaximumTractionSlope float32 `yaml:"maximum_traction_slope"`
	MaximumSupportSlope  float32 `yaml:"maximum_support_slope"`
	// HeadThreshold is the cosine below which a contact counts as a head contact.
	HeadThreshold float32 `yaml:"head_threshold"`

	MaximumStepHeight     float32 `yaml:"maximum_step_height"`
	MinimumUpStepHeight   float32 `yaml:"minimum_up_step_height"`
	MinimumDownStepHeight float32 `yaml:"minimum_down_step_height"`
	// AllowedPenetration is the depth a probe may sink into the world and still be
	// accepted.
	AllowedPenetration float32 `yaml:"allowed_penetration"`
}

func DefaultSettings() Settings {
	return Settings{
		StandingHeight:  1.7,
		CrouchingHeight: 1.19,
		ProneHeight:     0.4,
		Radius:          0.6,
		Mass:            10,

		StandingSpeed:   8,
		CrouchingSpeed:  3,
		ProneSpeed:      1.5,
		AirSpeed:        1,
		AirAcceleration: 10,
		JumpSpeed:       4.5,

		MaximumTractionSlope: 45,
		MaximumSupportSlope:  80,
		HeadThreshold:        -0.01,

		MaximumStepHeight:     0.5,
		MinimumUpStepHeight:   0.02,
		MinimumDownStepHeight: 0.02,
		AllowedPenetration:    0.01,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.Radius <= 0:
		return fmt.Errorf("%w: radius must be positive, got %g", ErrInvalidSettings, s.Radius)
	case s.ProneHeight <= 0:
		return fmt.Errorf("%w: prone height must be positive, got %g", ErrInvalidSettings, s.ProneHeight)
	case s.CrouchingHeight <= s.ProneHeight:
		return fmt.Errorf("%w: crouching height %g must exceed prone height %g", ErrInvalidSettings, s.CrouchingHeight, s.ProneHeight)
	case s.StandingHeight <= s.CrouchingHeight:
		return fmt.Errorf("%w: standing height %g must exceed crouching height %g", ErrInvalidSettings, s.StandingHeight, s.CrouchingHeight)
	case s.Mass <= 0:
		return fmt.Errorf("%w: mass must be positive, got %g", ErrInvalidSettings, s.Mass)
	case s.StandingSpeed < 0 || s.CrouchingSpeed < 0 || s.ProneSpeed < 0 || s.AirSpeed < 0 ||
		s.AirAcceleration < 0 || s.JumpSpeed < 0:
		return fmt.Errorf("%w: speeds must not be negative", ErrInvalidSettings)
	case s.MaximumStepHeight <= 0:
		return fmt.Errorf("%w: maximum step height must be positive, got %g", ErrInvalidSettings, s.MaximumStepHeight)
	case s.MinimumUpStepHeight < 0 || s.MinimumUpStepHeight >= s.MaximumStepHeight:
		return fmt.Errorf("%w: minimum up step height must be in [0, %g)", ErrInvalidSettings, s.MaximumStepHeight)
	case s.MinimumDownStepHeight < 0 || s.MinimumDownStepHeight >= s.MaximumStepHeight:
		return fmt.Errorf("%w: minimum down step height must be in [0, %g)", ErrInvalidSettings, s.MaximumStepHeight)
	case s.AllowedPenetration < 0:
		return fmt.Errorf("%w: allowed penetration must not be negative", ErrInvalidSettings)
	}
	_, err := NewContactCategorizer(radians(s.MaximumTractionSlope), radians(s.MaximumSupportSlope), s.HeadThreshold)
	return err
}

// Height returns the cylinder height of a stance.
func (s Settings) Height(stance Stance) float32 {
	switch stance {
	case Crouching:
		return s.CrouchingHeight
	case Prone:
		return s.ProneHeight
	}
	return s.StandingHeight
}

// Speed returns the ground speed of a stance.
func (s Settings) Speed(stance Stance) float32 {
	switch stance {
	case Crouching:
		return s.CrouchingSpeed
	case Prone:
		return s.ProneSpeed
	}
	return s.StandingSpeed
}

func radians(deg float32) float32 {
	return deg * math32.Pi / 180
}

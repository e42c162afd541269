package gekkophys

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chewxy/math32"
	"github.com/gekko3d/gekkophys/broadphase"
	"github.com/gekko3d/gekkophys/character"
	"github.com/gekko3d/gekkophys/narrowphase"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("gekkophys: invalid config")

// TimeStep drives the fixed step clock of a Space.
type TimeStep struct {
	// Dt is the simulated duration of one step in seconds.
	Dt float32 `yaml:"dt"`
	// MaxStepsPerFrame caps the steps one Update may run. Time beyond the cap is dropped.
	MaxStepsPerFrame int `yaml:"max_steps_per_frame"`
}

// Config holds everything a Space needs. Zero values are not usable; start from
// DefaultConfig.
type Config struct {
	Gravity  mgl32.Vec3 `yaml:"gravity"`
	TimeStep TimeStep   `yaml:"time_step"`
	// Threads sizes the task pool. One runs everything on the calling goroutine and zero
	// uses GOMAXPROCS.
	Threads int `yaml:"threads"`

	// Dynamic bodies slower than SleepThreshold for SleepTime seconds stop simulating.
	SleepThreshold float32 `yaml:"sleep_threshold"`
	SleepTime      float32 `yaml:"sleep_time"`

	BroadPhase  broadphase.Settings  `yaml:"broad_phase"`
	NarrowPhase narrowphase.Settings `yaml:"narrow_phase"`
	Character   character.Settings   `yaml:"character"`
}

func DefaultConfig() Config {
	return Config{
		Gravity: mgl32.Vec3{0, -9.81, 0},
		TimeStep: TimeStep{
			Dt:               1.0 / 60,
			MaxStepsPerFrame: 4,
		},
		Threads:        0,
		SleepThreshold: 0.05,
		SleepTime:      1.0,
		BroadPhase:     broadphase.DefaultSettings(),
		NarrowPhase:    narrowphase.DefaultSettings(),
		Character:      character.DefaultSettings(),
	}
}

// LoadConfig reads a YAML config from path. Keys missing from the file keep their
// default values; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// DecodeConfig is LoadConfig on a reader.
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for i, g := range c.Gravity {
		if math32.IsNaN(g) || math32.IsInf(g, 0) {
			return fmt.Errorf("%w: gravity component %d is not finite", ErrInvalidConfig, i)
		}
	}
	if c.TimeStep.Dt <= 0 || c.TimeStep.Dt > 1 {
		return fmt.Errorf("%w: time step must be in (0, 1], got %g", ErrInvalidConfig, c.TimeStep.Dt)
	}
	if c.TimeStep.MaxStepsPerFrame < 1 {
		return fmt.Errorf("%w: max steps per frame must be at least 1, got %d", ErrInvalidConfig, c.TimeStep.MaxStepsPerFrame)
	}
	if c.Threads < 0 {
		return fmt.Errorf("%w: threads must not be negative, got %d", ErrInvalidConfig, c.Threads)
	}
	if c.SleepThreshold < 0 || c.SleepTime < 0 {
		return fmt.Errorf("%w: sleep threshold and time must not be negative", ErrInvalidConfig)
	}
	if err := c.BroadPhase.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.NarrowPhase.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Character.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

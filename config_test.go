package gekkophys

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gekko3d/gekkophys/character"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gravity: [0, -5, 0]
threads: 2
character:
  radius: 0.4
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{0, -5, 0}, cfg.Gravity)
	assert.Equal(t, 2, cfg.Threads)
	assert.Equal(t, float32(0.4), cfg.Character.Radius)

	def := DefaultConfig()
	assert.Equal(t, def.TimeStep, cfg.TimeStep)
	assert.Equal(t, def.BroadPhase, cfg.BroadPhase)
	assert.Equal(t, def.Character.StandingHeight, cfg.Character.StandingHeight)
}

func TestDecodeConfigEmpty(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestDecodeConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		invalid bool
	}{
		{"unknown key", "gravty: [0, -9, 0]", false},
		{"short gravity", "gravity: [0, -9]", false},
		{"zero time step", "time_step: {dt: 0}", true},
		{"negative threads", "threads: -1", true},
		{"bad broad phase", "broad_phase: {maximum_entities_in_leaves: 0}", true},
		{"bad character", "character: {radius: 0}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(strings.NewReader(tt.doc))
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestConfigValidateWrapsSettingsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Character.MaximumTractionSlope = 85
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, character.ErrInvalidSettings)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

package gekkophys

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestClockAdvance(t *testing.T) {
	c := NewClock(TimeStep{Dt: 0.25, MaxStepsPerFrame: 4})

	tests := []struct {
		name    string
		frameDt float32
		steps   int
	}{
		{"partial frame", 0.125, 0},
		{"completes a step", 0.125, 1},
		{"two steps with remainder", 0.625, 2},
		{"remainder carries", 0.125, 1},
		{"negative ignored", -1, 0},
		{"nan ignored", math32.NaN(), 0},
		{"backlog capped", 10, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.steps, c.Advance(tt.frameDt))
			assert.GreaterOrEqual(t, c.Alpha(), float32(0))
			assert.Less(t, c.Alpha(), float32(1))
		})
	}
	assert.Equal(t, uint64(8), c.Ticks())
}

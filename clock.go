package gekkophys

import "github.com/chewxy/math32"

// Clock turns variable frame durations into a whole number of fixed steps.
type Clock struct {
	step        TimeStep
	accumulator float32
	ticks       uint64
}

func NewClock(step TimeStep) *Clock {
	return &Clock{step: step}
}

// Advance adds frameDt seconds and returns how many steps are due. Non-finite or
// negative durations add nothing. When more than MaxStepsPerFrame steps are due the
// rest of the backlog is dropped.
func (c *Clock) Advance(frameDt float32) int {
	if math32.IsNaN(frameDt) || math32.IsInf(frameDt, 0) || frameDt <= 0 {
		return 0
	}
	c.accumulator += frameDt
	steps := int(c.accumulator / c.step.Dt)
	if steps > c.step.MaxStepsPerFrame {
		steps = c.step.MaxStepsPerFrame
		c.accumulator = math32.Mod(c.accumulator, c.step.Dt)
	} else {
		c.accumulator -= float32(steps) * c.step.Dt
	}
	if c.accumulator < 0 {
		c.accumulator = 0
	}
	c.ticks += uint64(steps)
	return steps
}

func (c *Clock) Dt() float32 { return c.step.Dt }

// Ticks is the number of steps handed out so far.
func (c *Clock) Ticks() uint64 { return c.ticks }

// Alpha is how far the accumulated time is into the next step, in [0, 1).
func (c *Clock) Alpha() float32 { return c.accumulator / c.step.Dt }

package character

import (
	"fmt"

	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
)

// probeState classifies one hypothetical placement during a step or stance search.
type probeState int

const (
	probeAccepted probeState = iota
	probeTooDeep
	probeObstructed
	probeNoHit
	probeHeadObstructed
	probeRejected
)

func (p probeState) String() string {
	switch p {
	case probeAccepted:
		return "accepted"
	case probeTooDeep:
		return "too_deep"
	case probeObstructed:
		return "obstructed"
	case probeNoHit:
		return "no_hit"
	case probeHeadObstructed:
		return "head_obstructed"
	case probeRejected:
		return "rejected"
	}
	return fmt.Sprintf("probeState(%d)", int(p))
}

// stepSearchEpsilon ends a search once the bracket is this narrow.
const stepSearchEpsilon = 1e-4

// upStepForwardFraction is how far, in radii, a step up probe moves into the step.
const upStepForwardFraction = 0.5

// StepManager teleports the character up onto steps and down off ledges when a probe at
// the new placement finds firm footing.
type StepManager struct {
	settings Settings
	queries  *QueryManager
	down     mgl32.Vec3
	probe    ContactCategories
}

func NewStepManager(settings Settings, queries *QueryManager, down mgl32.Vec3) *StepManager {
	return &StepManager{settings: settings, queries: queries, down: down}
}

// classify probes shape at position. depth is the deepest traction contact measured
// along down, used to hint the next offset.
func (m *StepManager) classify(shape geom.Shape, position mgl32.Vec3) (probeState, float32) {
	m.queries.QueryContacts(shape, position, &m.probe)
	allowed := m.settings.AllowedPenetration
	for _, c := range m.probe.Head {
		if c.PenetrationDepth > allowed {
			return probeHeadObstructed, 0
		}
	}
	for _, c := range m.probe.Side {
		if c.PenetrationDepth > allowed && !m.isSupport(c) {
			return probeObstructed, 0
		}
	}
	if len(m.probe.Support) == 0 {
		return probeNoHit, 0
	}
	if len(m.probe.Traction) == 0 {
		return probeRejected, 0
	}
	var depth float32
	for i, c := range m.probe.Traction {
		d := c.PenetrationDepth * c.Normal.Dot(m.down)
		if i == 0 || d > depth {
			depth = d
		}
	}
	if depth > allowed {
		return probeTooDeep, depth
	}
	return probeAccepted, depth
}

// isSupport reports whether a side contact is a steep support rather than a wall.
func (m *StepManager) isSupport(c CharacterContact) bool {
	for _, s := range m.probe.Support {
		if s.ID == c.ID && s.Collidable == c.Collidable && s.Position == c.Position {
			return true
		}
	}
	return false
}

// TryToStepDown moves a character that lost its footing down onto ground found by the
// support rays. It reports false when no placement within the step limits is accepted.
func (m *StepManager) TryToStepDown(shape geom.Shape, position mgl32.Vec3, support *SupportFinder) (mgl32.Vec3, bool) {
	if len(support.Supports()) > 0 || !support.HadTraction() {
		return position, false
	}
	ray, ok := support.SupportRay()
	if !ok {
		return position, false
	}
	drop := -ray.Depth
	if drop < m.settings.MinimumDownStepHeight || drop > m.settings.MaximumStepHeight {
		return position, false
	}

	allowed := m.settings.AllowedPenetration
	lo, hi := float32(0), m.settings.MaximumStepHeight
	offset := min(drop+allowed/2, hi)
	for i := 0; i < maxIterations && hi-lo > stepSearchEpsilon; i++ {
		state, depth := m.classify(shape, position.Add(m.down.Mul(offset)))
		switch state {
		case probeAccepted:
			if offset < m.settings.MinimumDownStepHeight || offset > m.settings.MaximumStepHeight {
				return position, false
			}
			return position.Add(m.down.Mul(offset)), true
		case probeTooDeep:
			hi = offset
			offset = nextOffset(offset-(depth-allowed/2), lo, hi)
		case probeNoHit:
			lo = offset
			offset = (lo + hi) / 2
		case probeObstructed, probeHeadObstructed:
			hi = offset
			offset = (lo + hi) / 2
		case probeRejected:
			return position, false
		}
	}
	return position, false
}

// TryToStepUp lifts a character with traction onto a step it is pushing against while
// moving. The first side contact that blocks the movement and sits below the maximum
// step height is tried.
func (m *StepManager) TryToStepUp(shape geom.Shape, position mgl32.Vec3, height, radius float32, movement mgl32.Vec3, support *SupportFinder) (mgl32.Vec3, bool) {
	if !support.HasTraction() {
		return position, false
	}
	flatMove := movement.Sub(m.down.Mul(movement.Dot(m.down)))
	if flatMove.LenSqr() < 1e-8 {
		return position, false
	}
	feet := position.Add(m.down.Mul(height / 2))
	for _, c := range support.SideContacts() {
		if c.PenetrationDepth < 0 {
			continue
		}
		normal := c.Normal.Sub(m.down.Mul(c.Normal.Dot(m.down)))
		if normal.LenSqr() < 1e-8 || normal.Dot(flatMove) <= 0 {
			continue
		}
		if above := feet.Sub(c.Position).Dot(m.down); above > m.settings.MaximumStepHeight {
			continue
		}
		forward := normal.Normalize().Mul(radius * upStepForwardFraction)
		if p, ok := m.searchUp(shape, position.Add(forward)); ok {
			return p, true
		}
	}
	return position, false
}

// searchUp walks down from the maximum step height to the lowest accepted lift.
func (m *StepManager) searchUp(shape geom.Shape, base mgl32.Vec3) (mgl32.Vec3, bool) {
	up := m.down.Mul(-1)
	allowed := m.settings.AllowedPenetration
	lo, hi := float32(0), m.settings.MaximumStepHeight
	lift := hi
	for i := 0; i < maxIterations && hi-lo > stepSearchEpsilon; i++ {
		state, depth := m.classify(shape, base.Add(up.Mul(lift)))
		switch state {
		case probeAccepted:
			if lift < m.settings.MinimumUpStepHeight || lift > m.settings.MaximumStepHeight {
				return base, false
			}
			return base.Add(up.Mul(lift)), true
		case probeTooDeep:
			lo = lift
			lift = nextOffset(lift+depth-allowed/2, lo, hi)
		case probeNoHit, probeObstructed, probeHeadObstructed:
			hi = lift
			lift = (lo + hi) / 2
		case probeRejected:
			return base, false
		}
	}
	return base, false
}

// nextOffset keeps a hinted offset inside the open bracket, bisecting otherwise.
func nextOffset(hint, lo, hi float32) float32 {
	if hint > lo && hint < hi {
		return hint
	}
	return (lo + hi) / 2
}

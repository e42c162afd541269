package character

import (
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
)

// StanceManager owns the current stance. A character only grows into a taller stance
// when the taller cylinder fits.
type StanceManager struct {
	settings Settings
	queries  *QueryManager
	down     mgl32.Vec3

	current Stance
	desired Stance
	shapes  [3]geom.Cylinder
	probe   ContactCategories
}

func NewStanceManager(settings Settings, queries *QueryManager, down mgl32.Vec3) *StanceManager {
	m := &StanceManager{settings: settings, queries: queries, down: down}
	for s := Standing; s <= Prone; s++ {
		m.shapes[s] = geom.Cylinder{Radius: settings.Radius, HalfHeight: settings.Height(s) / 2}
	}
	return m
}

func (m *StanceManager) CurrentStance() Stance { return m.current }
func (m *StanceManager) DesiredStance() Stance { return m.desired }

// SetDesiredStance ignores values that are not a Stance and reports whether s was
// taken.
func (m *StanceManager) SetDesiredStance(s Stance) bool {
	if !s.Valid() {
		return false
	}
	m.desired = s
	return true
}

// Shape returns the cylinder of a stance, or nil for an invalid one. It must not be
// modified.
func (m *StanceManager) Shape(s Stance) *geom.Cylinder {
	if !s.Valid() {
		return nil
	}
	return &m.shapes[s]
}

// CheckTransition tests whether the character at position can take the target stance
// and returns where its center would be. existing are the contacts of the current
// stance. CurrentStance changes only when it returns true.
func (m *StanceManager) CheckTransition(target Stance, position mgl32.Vec3, hasSupport bool, existing *ContactCategories) (mgl32.Vec3, bool) {
	if target == m.current {
		return position, true
	}
	if !target.Valid() {
		return position, false
	}
	grow := (m.settings.Height(target) - m.settings.Height(m.current)) / 2
	if grow < 0 {
		// Shrinking always fits. Keep the feet in place when standing on something.
		if hasSupport {
			position = position.Add(m.down.Mul(-grow))
		}
		m.current = target
		return position, true
	}

	shape := &m.shapes[target]
	if hasSupport {
		candidate := position.Sub(m.down.Mul(grow))
		m.queries.QueryContacts(shape, candidate, &m.probe)
		if m.obstructive(existing) {
			return position, false
		}
		m.current = target
		return candidate, true
	}

	if candidate, ok := m.fitUnsupported(shape, position, grow); ok {
		m.current = target
		return candidate, true
	}
	return position, false
}

// fitUnsupported grows a character without footing around its center, shifting it up or
// down by at most grow until neither the feet nor the head sink deeper than allowed.
func (m *StanceManager) fitUnsupported(shape geom.Shape, position mgl32.Vec3, grow float32) (mgl32.Vec3, bool) {
	allowed := m.settings.AllowedPenetration
	up := m.down.Mul(-1)
	var shift float32
	for i := 0; i < maxIterations; i++ {
		candidate := position.Add(up.Mul(shift))
		m.queries.QueryContacts(shape, candidate, &m.probe)
		for _, c := range m.probe.Side {
			if c.PenetrationDepth > allowed {
				return position, false
			}
		}
		feet := deepest(m.probe.Support, m.down)
		head := deepest(m.probe.Head, up)
		switch {
		case feet <= allowed && head <= allowed:
			return candidate, true
		case feet > allowed && head > allowed:
			return position, false
		case feet > allowed:
			shift += feet - allowed/2
		default:
			shift -= head - allowed/2
		}
		if shift > grow || shift < -grow {
			return position, false
		}
	}
	return position, false
}

// obstructive reports whether a probe contact sinks deeper than allowed with no contact
// of the current stance already as deep in the same direction.
func (m *StanceManager) obstructive(existing *ContactCategories) bool {
	allowed := m.settings.AllowedPenetration
	for _, bucket := range [3][]CharacterContact{m.probe.Support, m.probe.Side, m.probe.Head} {
		for _, c := range bucket {
			if c.PenetrationDepth <= allowed {
				continue
			}
			if !alreadyAsDeep(c, existing) {
				return true
			}
		}
	}
	return false
}

// sameDirection is the cosine above which two contact normals count as the same
// direction.
const sameDirection = 0.99

func alreadyAsDeep(c CharacterContact, existing *ContactCategories) bool {
	if existing == nil {
		return false
	}
	for _, bucket := range [3][]CharacterContact{existing.Support, existing.Side, existing.Head} {
		for _, e := range bucket {
			if e.Normal.Dot(c.Normal) >= sameDirection && e.PenetrationDepth >= c.PenetrationDepth {
				return true
			}
		}
	}
	return false
}

// deepest returns the largest depth of the bucket measured along dir, or zero.
func deepest(bucket []CharacterContact, dir mgl32.Vec3) float32 {
	var depth float32
	for _, c := range bucket {
		depth = max(depth, c.PenetrationDepth*c.Normal.Dot(dir))
	}
	return depth
}

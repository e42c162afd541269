package narrowphase

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ContactData is one contact point. Normal points from the second object of the pair
// toward the first; for mesh pairs that is from the triangle toward the convex.
type ContactData struct {
	Position         mgl32.Vec3
	Normal           mgl32.Vec3
	PenetrationDepth float32
	// ID correlates the same contact feature across ticks.
	ID int
}

// ContactSupplementData anchors a contact on both objects so it can be refreshed from
// the new transforms without regenerating it.
type ContactSupplementData struct {
	BasePenetrationDepth float32
	LocalOffsetA         mgl32.Vec3
	LocalOffsetB         mgl32.Vec3
}

// Contact is a contact owned by a manifold.
type Contact struct {
	ContactData
	Supplement ContactSupplementData
}

// Edge is an unordered pair of mesh vertex indices.
type Edge struct {
	A, B int
}

// NewEdge stores the smaller index first so both orders compare equal.
func NewEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// Flipped returns the contact as seen from the other object of the pair.
func (c ContactData) Flipped() ContactData {
	c.Normal = c.Normal.Mul(-1)
	return c
}

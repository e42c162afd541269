package character

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/narrowphase"
	"github.com/go-gl/mathgl/mgl32"
)

// CharacterContact is a contact of the character with the object that produced it.
// After categorization Normal points from the character toward Collidable.
type CharacterContact struct {
	narrowphase.ContactData
	Collidable collidables.Collidable
}

// ContactCategories holds the buckets filled by Categorize. Non-traction supports are
// listed in Side as well.
type ContactCategories struct {
	Traction []CharacterContact
	Support  []CharacterContact
	Side     []CharacterContact
	Head     []CharacterContact
}

func (c *ContactCategories) Reset() {
	c.Traction = c.Traction[:0]
	c.Support = c.Support[:0]
	c.Side = c.Side[:0]
	c.Head = c.Head[:0]
}

// Len returns the number of distinct contacts in the buckets.
func (c *ContactCategories) Len() int {
	return len(c.Support) + len(c.Head) + len(c.Side) - (len(c.Support) - len(c.Traction))
}

// ContactCategorizer sorts contacts by how their normal lines up with the down direction.
type ContactCategorizer struct {
	tractionThreshold float32
	supportThreshold  float32
	headThreshold     float32
}

// NewContactCategorizer takes the steepest slopes, in radians, that still give traction
// and support, and the cosine under which a contact is a head contact.
func NewContactCategorizer(maximumTractionSlope, maximumSupportSlope, headThreshold float32) (*ContactCategorizer, error) {
	for _, slope := range [2]float32{maximumTractionSlope, maximumSupportSlope} {
		if !(slope >= 0 && slope <= math32.Pi/2) {
			return nil, fmt.Errorf("%w: slope %g rad is outside [0, pi/2]", ErrInvalidSettings, slope)
		}
	}
	c := &ContactCategorizer{
		tractionThreshold: math32.Cos(maximumTractionSlope),
		supportThreshold:  math32.Cos(maximumSupportSlope),
		headThreshold:     headThreshold,
	}
	if c.tractionThreshold < c.supportThreshold {
		return nil, fmt.Errorf("%w: traction slope %g rad is steeper than support slope %g rad",
			ErrInvalidSettings, maximumTractionSlope, maximumSupportSlope)
	}
	if !(headThreshold >= -1 && headThreshold < 0) {
		return nil, fmt.Errorf("%w: head threshold must be in [-1, 0), got %g", ErrInvalidSettings, headThreshold)
	}
	return c, nil
}

func (c *ContactCategorizer) TractionThreshold() float32 { return c.tractionThreshold }
func (c *ContactCategorizer) SupportThreshold() float32  { return c.supportThreshold }
func (c *ContactCategorizer) HeadThreshold() float32     { return c.headThreshold }

// Categorize appends every contact to out. Normals are first turned to point away from
// bodyPosition.
func (c *ContactCategorizer) Categorize(contacts []CharacterContact, down, bodyPosition mgl32.Vec3, out *ContactCategories) {
	for _, contact := range contacts {
		if contact.Normal.Dot(contact.Position.Sub(bodyPosition)) < 0 {
			contact.Normal = contact.Normal.Mul(-1)
		}
		d := contact.Normal.Dot(down)
		switch {
		case d > c.supportThreshold:
			out.Support = append(out.Support, contact)
			if d > c.tractionThreshold {
				out.Traction = append(out.Traction, contact)
			} else {
				out.Side = append(out.Side, contact)
			}
		case d < c.headThreshold:
			out.Head = append(out.Head, contact)
		default:
			out.Side = append(out.Side, contact)
		}
	}
}

// HasTraction reports whether a single outward normal gives traction.
func (c *ContactCategorizer) HasTraction(outward, down mgl32.Vec3) bool {
	return outward.Dot(down) > c.tractionThreshold
}

func (c *ContactCategorizer) HasSupport(outward, down mgl32.Vec3) bool {
	return outward.Dot(down) > c.supportThreshold
}

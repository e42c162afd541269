package geom

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type ShapeKind int

const (
	KindSphere ShapeKind = iota
	KindCapsule
	KindCylinder
	KindBox
	KindTriangle
)

func (k ShapeKind) String() string {
	switch k {
	case KindSphere:
		return "sphere"
	case KindCapsule:
		return "capsule"
	case KindCylinder:
		return "cylinder"
	case KindBox:
		return "box"
	case KindTriangle:
		return "triangle"
	}
	return fmt.Sprintf("ShapeKind(%d)", int(k))
}

// Shape is a convex shape described in its own local frame.
type Shape interface {
	Kind() ShapeKind
	// LocalSupport returns the point of the shape furthest along dir.
	LocalSupport(dir mgl32.Vec3) mgl32.Vec3
	LocalBounds() AABB
	// RayCast tests a ray already expressed in the shape's local frame.
	RayCast(r Ray, maxLength float32) (RayHit, bool)
}

// WorldBounds computes the tight box of a shape placed by a rigid transform using six
// support queries.
func WorldBounds(s Shape, t RigidTransform) AABB {
	var out AABB
	for i := 0; i < 3; i++ {
		var axis mgl32.Vec3
		axis[i] = 1
		local := t.InverseTransformDirection(axis)
		hi := t.TransformPoint(s.LocalSupport(local))
		lo := t.TransformPoint(s.LocalSupport(local.Mul(-1)))
		out.Max[i] = hi[i]
		out.Min[i] = lo[i]
	}
	return out
}

// RayCastShape transforms a world ray into the shape frame and returns a world space hit.
func RayCastShape(s Shape, t RigidTransform, r Ray, maxLength float32) (RayHit, bool) {
	local := Ray{
		Origin:    t.InverseTransformPoint(r.Origin),
		Direction: t.InverseTransformDirection(r.Direction),
	}
	hit, ok := s.RayCast(local, maxLength)
	if !ok {
		return RayHit{}, false
	}
	hit.Position = r.At(hit.T)
	hit.Normal = t.TransformDirection(hit.Normal)
	return hit, true
}

type Sphere struct {
	Radius float32
}

func (s *Sphere) Kind() ShapeKind { return KindSphere }

func (s *Sphere) LocalSupport(dir mgl32.Vec3) mgl32.Vec3 {
	return SafeNormalize(dir, mgl32.Vec3{1, 0, 0}).Mul(s.Radius)
}

func (s *Sphere) LocalBounds() AABB {
	r := mgl32.Vec3{s.Radius, s.Radius, s.Radius}
	return AABB{Min: r.Mul(-1), Max: r}
}

func (s *Sphere) RayCast(r Ray, maxLength float32) (RayHit, bool) {
	return raySphere(r, mgl32.Vec3{}, s.Radius, maxLength)
}

// Capsule is a segment along local Y from -HalfLength to +HalfLength swept by Radius.
type Capsule struct {
	Radius     float32
	HalfLength float32
}

func (c *Capsule) Kind() ShapeKind { return KindCapsule }

func (c *Capsule) LocalSupport(dir mgl32.Vec3) mgl32.Vec3 {
	p := mgl32.Vec3{0, c.HalfLength, 0}
	if dir[1] < 0 {
		p[1] = -c.HalfLength
	}
	return p.Add(SafeNormalize(dir, mgl32.Vec3{1, 0, 0}).Mul(c.Radius))
}

func (c *Capsule) LocalBounds() AABB {
	return AABB{
		Min: mgl32.Vec3{-c.Radius, -c.HalfLength - c.Radius, -c.Radius},
		Max: mgl32.Vec3{c.Radius, c.HalfLength + c.Radius, c.Radius},
	}
}

// Segment returns the core segment endpoints.
func (c *Capsule) Segment() (mgl32.Vec3, mgl32.Vec3) {
	return mgl32.Vec3{0, -c.HalfLength, 0}, mgl32.Vec3{0, c.HalfLength, 0}
}

func (c *Capsule) RayCast(r Ray, maxLength float32) (RayHit, bool) {
	best, found := rayCylinderSide(r, c.Radius, c.HalfLength, maxLength)
	for _, y := range [2]float32{-c.HalfLength, c.HalfLength} {
		if hit, ok := raySphere(r, mgl32.Vec3{0, y, 0}, c.Radius, maxLength); ok && (!found || hit.T < best.T) {
			best, found = hit, true
		}
	}
	return best, found
}

// Cylinder is upright along local Y with total height 2*HalfHeight.
type Cylinder struct {
	Radius     float32
	HalfHeight float32
}

func (c *Cylinder) Kind() ShapeKind { return KindCylinder }

func (c *Cylinder) Height() float32 { return 2 * c.HalfHeight }

func (c *Cylinder) LocalSupport(dir mgl32.Vec3) mgl32.Vec3 {
	p := mgl32.Vec3{0, c.HalfHeight, 0}
	if dir[1] < 0 {
		p[1] = -c.HalfHeight
	}
	radial := mgl32.Vec3{dir[0], 0, dir[2]}
	l := radial.Len()
	if l > 1e-9 {
		p = p.Add(radial.Mul(c.Radius / l))
	}
	return p
}

func (c *Cylinder) LocalBounds() AABB {
	return AABB{
		Min: mgl32.Vec3{-c.Radius, -c.HalfHeight, -c.Radius},
		Max: mgl32.Vec3{c.Radius, c.HalfHeight, c.Radius},
	}
}

func (c *Cylinder) RayCast(r Ray, maxLength float32) (RayHit, bool) {
	if inside := r.Origin[1] >= -c.HalfHeight && r.Origin[1] <= c.HalfHeight &&
		r.Origin[0]*r.Origin[0]+r.Origin[2]*r.Origin[2] <= c.Radius*c.Radius; inside {
		return RayHit{T: 0, Position: r.Origin, Normal: SafeNormalize(r.Direction.Mul(-1), mgl32.Vec3{0, 1, 0})}, true
	}
	best, found := rayCylinderSide(r, c.Radius, c.HalfHeight, maxLength)
	if math32.Abs(r.Direction[1]) > 1e-9 {
		for _, y := range [2]float32{-c.HalfHeight, c.HalfHeight} {
			t := (y - r.Origin[1]) / r.Direction[1]
			if t < 0 || t > maxLength || (found && t >= best.T) {
				continue
			}
			p := r.At(t)
			if p[0]*p[0]+p[2]*p[2] > c.Radius*c.Radius {
				continue
			}
			n := mgl32.Vec3{0, 1, 0}
			if y < 0 {
				n[1] = -1
			}
			best, found = RayHit{T: t, Position: p, Normal: n}, true
		}
	}
	return best, found
}

// Box is centered on its origin.
type Box struct {
	HalfExtents mgl32.Vec3
}

func (b *Box) Kind() ShapeKind { return KindBox }

func (b *Box) LocalSupport(dir mgl32.Vec3) mgl32.Vec3 {
	var p mgl32.Vec3
	for i := 0; i < 3; i++ {
		if dir[i] < 0 {
			p[i] = -b.HalfExtents[i]
		} else {
			p[i] = b.HalfExtents[i]
		}
	}
	return p
}

func (b *Box) LocalBounds() AABB {
	return AABB{Min: b.HalfExtents.Mul(-1), Max: b.HalfExtents}
}

func (b *Box) RayCast(r Ray, maxLength float32) (RayHit, bool) {
	box := b.LocalBounds()
	t, ok := box.RayIntersect(r, maxLength)
	if !ok {
		return RayHit{}, false
	}
	p := r.At(t)
	if t == 0 {
		return RayHit{T: 0, Position: p, Normal: SafeNormalize(r.Direction.Mul(-1), mgl32.Vec3{0, 1, 0})}, true
	}
	// Face whose slab the hit point sits on.
	axis := 0
	best := float32(-1)
	for i := 0; i < 3; i++ {
		if b.HalfExtents[i] <= 0 {
			continue
		}
		if d := math32.Abs(p[i]) / b.HalfExtents[i]; d > best {
			best = d
			axis = i
		}
	}
	var n mgl32.Vec3
	n[axis] = 1
	if p[axis] < 0 {
		n[axis] = -1
	}
	return RayHit{T: t, Position: p, Normal: n}, true
}

func raySphere(r Ray, center mgl32.Vec3, radius, maxLength float32) (RayHit, bool) {
	m := r.Origin.Sub(center)
	a := r.Direction.LenSqr()
	if a < 1e-20 {
		return RayHit{}, false
	}
	b := m.Dot(r.Direction)
	c := m.LenSqr() - radius*radius
	if c <= 0 {
		return RayHit{T: 0, Position: r.Origin, Normal: SafeNormalize(r.Direction.Mul(-1), mgl32.Vec3{0, 1, 0})}, true
	}
	if b > 0 {
		return RayHit{}, false
	}
	disc := b*b - a*c
	if disc < 0 {
		return RayHit{}, false
	}
	t := (-b - math32.Sqrt(disc)) / a
	if t < 0 || t > maxLength {
		return RayHit{}, false
	}
	p := r.At(t)
	return RayHit{T: t, Position: p, Normal: SafeNormalize(p.Sub(center), mgl32.Vec3{0, 1, 0})}, true
}

// rayCylinderSide intersects the lateral surface of a Y aligned cylinder.
func rayCylinderSide(r Ray, radius, halfHeight, maxLength float32) (RayHit, bool) {
	a := r.Direction[0]*r.Direction[0] + r.Direction[2]*r.Direction[2]
	if a < 1e-12 {
		return RayHit{}, false
	}
	b := r.Origin[0]*r.Direction[0] + r.Origin[2]*r.Direction[2]
	c := r.Origin[0]*r.Origin[0] + r.Origin[2]*r.Origin[2] - radius*radius
	disc := b*b - a*c
	if disc < 0 {
		return RayHit{}, false
	}
	t := (-b - math32.Sqrt(disc)) / a
	if t < 0 || t > maxLength {
		return RayHit{}, false
	}
	p := r.At(t)
	if p[1] < -halfHeight || p[1] > halfHeight {
		return RayHit{}, false
	}
	return RayHit{T: t, Position: p, Normal: SafeNormalize(mgl32.Vec3{p[0], 0, p[2]}, mgl32.Vec3{1, 0, 0})}, true
}

// SafeNormalize normalizes v or returns fallback when v is too short to carry a direction.
func SafeNormalize(v, fallback mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l < 1e-12 {
		return fallback
	}
	return v.Mul(1 / l)
}

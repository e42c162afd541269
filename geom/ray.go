package geom

import "github.com/go-gl/mathgl/mgl32"

// Ray is a half line. Distances along the ray are measured in multiples of Direction,
// so callers pass a unit Direction when they want world units.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

func (r Ray) At(t float32) mgl32.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// RayHit is the result of an exact ray test.
type RayHit struct {
	T        float32
	Position mgl32.Vec3
	Normal   mgl32.Vec3
}

// BoundingSphere is used by sphere queries against the broad phase.
type BoundingSphere struct {
	Center mgl32.Vec3
	Radius float32
}

func (s BoundingSphere) BoundingBox() AABB {
	r := mgl32.Vec3{s.Radius, s.Radius, s.Radius}
	return AABB{Min: s.Center.Sub(r), Max: s.Center.Add(r)}
}

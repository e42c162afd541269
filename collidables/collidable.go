package collidables

import (
	"fmt"

	"github.com/gekko3d/gekkophys/broadphase"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Kind is the closed set of collidable variants. Pair dispatch switches on it.
type Kind int

const (
	KindConvex Kind = iota
	KindStaticMesh
	KindInstancedMesh
	KindTerrain
)

func (k Kind) String() string {
	switch k {
	case KindConvex:
		return "convex"
	case KindStaticMesh:
		return "static_mesh"
	case KindInstancedMesh:
		return "instanced_mesh"
	case KindTerrain:
		return "terrain"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Collidable is implemented only by the types in this package.
type Collidable interface {
	broadphase.Entry
	Kind() Kind
	ID() uuid.UUID
	InstanceID() uint64
	IsStatic() bool
	// UpdateBoundingBox recomputes the cached box from the current placement.
	UpdateBoundingBox()
	RayCast(r geom.Ray, maxLength float32) (geom.RayHit, bool)
	collidable()
}

// Convex places a convex shape with a body.
type Convex struct {
	Shape geom.Shape
	Body  *Body
	// Margin grows the bounding box so pairs are found slightly before touching.
	Margin float32
	// Owner lets higher layers find their object, e.g. the character a probe belongs to.
	Owner any

	box geom.AABB
}

func NewConvex(shape geom.Shape, body *Body, margin float32) *Convex {
	c := &Convex{Shape: shape, Body: body, Margin: margin}
	c.UpdateBoundingBox()
	return c
}

func (c *Convex) collidable() {}

func (c *Convex) Kind() Kind             { return KindConvex }
func (c *Convex) ID() uuid.UUID          { return c.Body.ID }
func (c *Convex) InstanceID() uint64     { return c.Body.InstanceID() }
func (c *Convex) IsStatic() bool         { return c.Body.IsStatic() }
func (c *Convex) BoundingBox() geom.AABB { return c.box }

func (c *Convex) Transform() geom.RigidTransform { return c.Body.Transform() }

func (c *Convex) UpdateBoundingBox() {
	c.box = geom.WorldBounds(c.Shape, c.Body.Transform()).Expand(c.Margin)
}

func (c *Convex) RayCast(r geom.Ray, maxLength float32) (geom.RayHit, bool) {
	return geom.RayCastShape(c.Shape, c.Body.Transform(), r, maxLength)
}

// TriangleIndices identifies a mesh triangle by its vertex indices. Field order is
// significant: the same triangle is always reported with the same order.
type TriangleIndices struct {
	A, B, C int
}

// TriangleMesh is a collidable made of triangles: static meshes, instanced meshes and
// terrain. All methods are safe for concurrent use.
type TriangleMesh interface {
	Collidable
	// FindOverlappingTriangles appends the indices of triangles whose bounds intersect
	// the world space box.
	FindOverlappingTriangles(box geom.AABB, out []int) []int
	// Triangle returns the vertex indices and world space vertices of triangle i.
	Triangle(i int) (TriangleIndices, mgl32.Vec3, mgl32.Vec3, mgl32.Vec3)
	Sidedness() geom.TriangleSidedness
	ImprovedBoundaryHandling() bool
}

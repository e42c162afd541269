package collidables

import (
	"errors"
	"fmt"

	"github.com/gekko3d/gekkophys/broadphase"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/gekko3d/gekkophys/parallel"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var ErrInvalidMesh = errors.New("collidables: invalid mesh")

type meshTriangle struct {
	index int
	box   geom.AABB
}

func (t *meshTriangle) BoundingBox() geom.AABB { return t.box }

// entryBuffers backs concurrent triangle queries issued by narrow phase tasks.
var entryBuffers = parallel.NewLockingPool(nil, func(b *[]broadphase.Entry) {
	clear(*b)
	*b = (*b)[:0]
})

// MeshShape is indexed triangle geometry with its own bounding volume hierarchy over the
// triangles. It is immutable once built and may be shared by many instances.
type MeshShape struct {
	vertices []mgl32.Vec3
	indices  []int
	tree     *broadphase.Hierarchy
}

// NewMeshShape validates the geometry and builds the triangle tree.
func NewMeshShape(vertices []mgl32.Vec3, indices []int) (*MeshShape, error) {
	if len(indices) == 0 || len(indices)%3 != 0 {
		return nil, fmt.Errorf("%w: index count %d is not a positive multiple of 3", ErrInvalidMesh, len(indices))
	}
	for _, i := range indices {
		if i < 0 || i >= len(vertices) {
			return nil, fmt.Errorf("%w: index %d out of range for %d vertices", ErrInvalidMesh, i, len(vertices))
		}
	}
	m := &MeshShape{
		vertices: vertices,
		indices:  indices,
	}
	tree, err := broadphase.NewHierarchy(broadphase.DefaultSettings())
	if err != nil {
		return nil, err
	}
	entries := make([]broadphase.Entry, m.TriangleCount())
	for i := range entries {
		_, a, b, c := m.triangle(i)
		entries[i] = &meshTriangle{index: i, box: geom.NewAABB(a, a).Extend(b).Extend(c)}
	}
	if err := tree.Build(entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMesh, err)
	}
	m.tree = tree
	return m, nil
}

func (m *MeshShape) TriangleCount() int { return len(m.indices) / 3 }

// Bounds is the local box of the whole mesh.
func (m *MeshShape) Bounds() geom.AABB {
	b, _ := m.tree.Bounds()
	return b
}

func (m *MeshShape) triangle(i int) (TriangleIndices, mgl32.Vec3, mgl32.Vec3, mgl32.Vec3) {
	ti := TriangleIndices{A: m.indices[3*i], B: m.indices[3*i+1], C: m.indices[3*i+2]}
	return ti, m.vertices[ti.A], m.vertices[ti.B], m.vertices[ti.C]
}

func (m *MeshShape) overlapping(localBox geom.AABB, out []int) []int {
	buf := entryBuffers.Take()
	*buf = m.tree.GetEntries(localBox, *buf)
	for _, e := range *buf {
		out = append(out, e.(*meshTriangle).index)
	}
	entryBuffers.GiveBack(buf)
	return out
}

// rayCast finds the nearest triangle hit of a ray in the mesh's own frame.
func (m *MeshShape) rayCast(r geom.Ray, maxLength float32, sides geom.TriangleSidedness) (geom.RayHit, bool) {
	test := func(e broadphase.Entry) (geom.RayHit, bool) {
		_, a, b, c := m.triangle(e.(*meshTriangle).index)
		tri := geom.Triangle{A: a, B: b, C: c, Sidedness: sides}
		return tri.RayCast(r, maxLength)
	}
	e, _, ok := m.tree.RayCastNearest(r, maxLength, func(e broadphase.Entry) (float32, bool) {
		hit, ok := test(e)
		return hit.T, ok
	})
	if !ok {
		return geom.RayHit{}, false
	}
	return test(e)
}

// StaticMesh is a triangle mesh baked into world space. It never moves.
type StaticMesh struct {
	id         uuid.UUID
	instanceID uint64
	shape      *MeshShape
	mirrored   bool

	// Sides is given in the winding of the source vertices.
	Sides             geom.TriangleSidedness
	ImproveBoundaries bool
}

// NewStaticMesh transforms the vertices into world space and indexes them.
func NewStaticMesh(vertices []mgl32.Vec3, indices []int, transform geom.AffineTransform) (*StaticMesh, error) {
	world := make([]mgl32.Vec3, len(vertices))
	for i, v := range vertices {
		world[i] = transform.TransformPoint(v)
	}
	shape, err := NewMeshShape(world, indices)
	if err != nil {
		return nil, err
	}
	return &StaticMesh{
		id:                uuid.New(),
		instanceID:        nextInstanceID(),
		shape:             shape,
		mirrored:          transform.Matrix.Det() < 0,
		Sides:             geom.DoubleSided,
		ImproveBoundaries: true,
	}, nil
}

func (m *StaticMesh) collidable() {}

func (m *StaticMesh) Kind() Kind                     { return KindStaticMesh }
func (m *StaticMesh) ID() uuid.UUID                  { return m.id }
func (m *StaticMesh) InstanceID() uint64             { return m.instanceID }
func (m *StaticMesh) IsStatic() bool                 { return true }
func (m *StaticMesh) BoundingBox() geom.AABB         { return m.shape.Bounds() }
func (m *StaticMesh) UpdateBoundingBox()             {}
func (m *StaticMesh) ImprovedBoundaryHandling() bool { return m.ImproveBoundaries }
func (m *StaticMesh) Shape() *MeshShape              { return m.shape }

func (m *StaticMesh) Sidedness() geom.TriangleSidedness {
	return windingSides(m.Sides, m.mirrored)
}

func (m *StaticMesh) FindOverlappingTriangles(box geom.AABB, out []int) []int {
	return m.shape.overlapping(box, out)
}

func (m *StaticMesh) Triangle(i int) (TriangleIndices, mgl32.Vec3, mgl32.Vec3, mgl32.Vec3) {
	return m.shape.triangle(i)
}

func (m *StaticMesh) RayCast(r geom.Ray, maxLength float32) (geom.RayHit, bool) {
	return m.shape.rayCast(r, maxLength, m.Sidedness())
}

// InstancedMesh places a shared MeshShape with an affine transform. Queries run in the
// shape's frame.
type InstancedMesh struct {
	id         uuid.UUID
	instanceID uint64
	shape      *MeshShape
	transform  geom.AffineTransform
	box        geom.AABB

	Sides             geom.TriangleSidedness
	ImproveBoundaries bool
}

func NewInstancedMesh(shape *MeshShape, transform geom.AffineTransform) *InstancedMesh {
	m := &InstancedMesh{
		id:                uuid.New(),
		instanceID:        nextInstanceID(),
		shape:             shape,
		Sides:             geom.DoubleSided,
		ImproveBoundaries: true,
	}
	m.SetTransform(transform)
	return m
}

func (m *InstancedMesh) collidable() {}

func (m *InstancedMesh) Kind() Kind             { return KindInstancedMesh }
func (m *InstancedMesh) ID() uuid.UUID          { return m.id }
func (m *InstancedMesh) InstanceID() uint64     { return m.instanceID }
func (m *InstancedMesh) IsStatic() bool         { return true }
func (m *InstancedMesh) BoundingBox() geom.AABB { return m.box }

func (m *InstancedMesh) Transform() geom.AffineTransform { return m.transform }

// SetTransform moves the instance. UpdateBoundingBox picks the change up.
func (m *InstancedMesh) SetTransform(t geom.AffineTransform) {
	m.transform = t
	m.UpdateBoundingBox()
}

func (m *InstancedMesh) UpdateBoundingBox() {
	m.box = m.shape.Bounds().Transform(m.transform.Matrix)
}

func (m *InstancedMesh) Sidedness() geom.TriangleSidedness {
	return windingSides(m.Sides, m.transform.Matrix.Det() < 0)
}

func (m *InstancedMesh) ImprovedBoundaryHandling() bool { return m.ImproveBoundaries }

func (m *InstancedMesh) FindOverlappingTriangles(box geom.AABB, out []int) []int {
	return m.shape.overlapping(box.Transform(m.transform.Inverse()), out)
}

func (m *InstancedMesh) Triangle(i int) (TriangleIndices, mgl32.Vec3, mgl32.Vec3, mgl32.Vec3) {
	ti, a, b, c := m.shape.triangle(i)
	return ti, m.transform.TransformPoint(a), m.transform.TransformPoint(b), m.transform.TransformPoint(c)
}

// RayCast runs against the local tree. The affine map keeps the ray parameter, so the
// local hit distance is the world one.
func (m *InstancedMesh) RayCast(r geom.Ray, maxLength float32) (geom.RayHit, bool) {
	origin := m.transform.InverseTransformPoint(r.Origin)
	local := geom.Ray{
		Origin:    origin,
		Direction: m.transform.InverseTransformPoint(r.Origin.Add(r.Direction)).Sub(origin),
	}
	hit, ok := m.shape.rayCast(local, maxLength, m.Sides)
	if !ok {
		return geom.RayHit{}, false
	}
	hit.Position = r.At(hit.T)
	hit.Normal = normalToWorld(m.transform, hit.Normal)
	if hit.Normal.Dot(r.Direction) > 0 {
		hit.Normal = hit.Normal.Mul(-1)
	}
	return hit, true
}

// windingSides swaps the solid face when a mirroring transform reversed the winding.
func windingSides(s geom.TriangleSidedness, mirrored bool) geom.TriangleSidedness {
	if !mirrored {
		return s
	}
	switch s {
	case geom.Counterclockwise:
		return geom.Clockwise
	case geom.Clockwise:
		return geom.Counterclockwise
	}
	return s
}

// normalToWorld maps a local normal with the inverse transpose of the transform.
func normalToWorld(t geom.AffineTransform, n mgl32.Vec3) mgl32.Vec3 {
	inv := t.Inverse().Mat3()
	return geom.SafeNormalize(inv.Transpose().Mul3x1(n), mgl32.Vec3{0, 1, 0})
}

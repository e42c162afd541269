package collidables

import (
	"image"
	"image/color"
	"slices"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quadMesh(t *testing.T, transform geom.AffineTransform) *StaticMesh {
	t.Helper()
	vertices := []mgl32.Vec3{{-1, 0, -1}, {1, 0, -1}, {1, 0, 1}, {-1, 0, 1}}
	// Counterclockwise seen from +Y.
	indices := []int{0, 3, 1, 1, 3, 2}
	m, err := NewStaticMesh(vertices, indices, transform)
	require.NoError(t, err)
	return m
}

func TestBodyIntegrate(t *testing.T) {
	b := NewBody(mgl32.Vec3{}, 2)
	b.LinearVelocity = mgl32.Vec3{1, 0, 0}
	require.True(t, b.Integrate(0.5, mgl32.Vec3{0, -10, 0}))
	assert.InDelta(t, 0.5, b.Position.X(), 1e-6)
	assert.InDelta(t, -2.5, b.Position.Y(), 1e-6)

	b.LinearVelocity = mgl32.Vec3{math32.NaN(), 0, 0}
	assert.False(t, b.Integrate(0.1, mgl32.Vec3{}))
	assert.Equal(t, mgl32.Vec3{}, b.LinearVelocity)

	static := NewBody(mgl32.Vec3{}, 0)
	assert.True(t, static.IsStatic())
	static.ApplyImpulse(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{})
	assert.Equal(t, mgl32.Vec3{}, static.LinearVelocity)
	assert.NotEqual(t, b.InstanceID(), static.InstanceID())
}

func TestBodySleep(t *testing.T) {
	b := NewBody(mgl32.Vec3{}, 1)
	b.LinearVelocity = mgl32.Vec3{0.01, 0, 0}
	for i := 0; i < 10; i++ {
		b.UpdateSleep(0.2, 0.05, 1)
	}
	assert.True(t, b.Sleeping)
	b.ApplyImpulse(mgl32.Vec3{0, 1, 0}, mgl32.Vec3{})
	assert.False(t, b.Sleeping)
	assert.InDelta(t, 1, b.LinearVelocity.Y(), 1e-6)
}

func TestConvexBoundingBox(t *testing.T) {
	body := NewBody(mgl32.Vec3{0, 5, 0}, 1)
	c := NewConvex(&geom.Sphere{Radius: 1}, body, 0.1)
	assert.InDelta(t, 3.9, c.BoundingBox().Min.Y(), 1e-5)
	assert.InDelta(t, 6.1, c.BoundingBox().Max.Y(), 1e-5)

	body.Position = mgl32.Vec3{10, 0, 0}
	c.UpdateBoundingBox()
	assert.InDelta(t, 8.9, c.BoundingBox().Min.X(), 1e-5)

	hit, ok := c.RayCast(geom.Ray{Origin: mgl32.Vec3{0, 0, 0}, Direction: mgl32.Vec3{1, 0, 0}}, 100)
	require.True(t, ok)
	assert.InDelta(t, 9, hit.T, 1e-4)
}

func TestNewMeshShapeValidation(t *testing.T) {
	_, err := NewMeshShape([]mgl32.Vec3{{}, {}, {}}, []int{0, 1})
	assert.ErrorIs(t, err, ErrInvalidMesh)
	_, err = NewMeshShape([]mgl32.Vec3{{}, {}, {}}, []int{0, 1, 3})
	assert.ErrorIs(t, err, ErrInvalidMesh)
	_, err = NewTerrain([]float32{0, 0, 0}, 2, 2, geom.IdentityAffine())
	assert.ErrorIs(t, err, ErrInvalidMesh)
}

func TestStaticMeshQueries(t *testing.T) {
	m := quadMesh(t, geom.NewAffineTransform(mgl32.Translate3D(0, 2, 0)))
	assert.InDelta(t, 2, m.BoundingBox().Min.Y(), 1e-6)

	got := m.FindOverlappingTriangles(geom.AABB{Min: mgl32.Vec3{0.5, 1.9, 0.5}, Max: mgl32.Vec3{0.9, 2.1, 0.9}}, nil)
	slices.Sort(got)
	assert.Equal(t, []int{0, 1}, got)
	got = m.FindOverlappingTriangles(geom.AABB{Min: mgl32.Vec3{0.5, 2.5, 0.5}, Max: mgl32.Vec3{0.9, 3, 0.9}}, nil)
	assert.Empty(t, got)

	ti, a, _, _ := m.Triangle(1)
	assert.Equal(t, TriangleIndices{A: 1, B: 3, C: 2}, ti)
	assert.Equal(t, mgl32.Vec3{1, 2, -1}, a)

	hit, ok := m.RayCast(geom.Ray{Origin: mgl32.Vec3{0.2, 10, 0.3}, Direction: mgl32.Vec3{0, -1, 0}}, 100)
	require.True(t, ok)
	assert.InDelta(t, 8, hit.T, 1e-5)
	assert.InDelta(t, 1, hit.Normal.Y(), 1e-5)

	_, ok = m.RayCast(geom.Ray{Origin: mgl32.Vec3{5, 10, 0}, Direction: mgl32.Vec3{0, -1, 0}}, 100)
	assert.False(t, ok)
}

func TestInstancedMesh(t *testing.T) {
	shape := quadMesh(t, geom.IdentityAffine()).Shape()
	m := NewInstancedMesh(shape, geom.NewAffineTransform(mgl32.Translate3D(10, 0, 0).Mul4(mgl32.Scale3D(2, 1, 2))))
	box := m.BoundingBox()
	assert.InDelta(t, 8, box.Min.X(), 1e-5)
	assert.InDelta(t, 12, box.Max.X(), 1e-5)

	got := m.FindOverlappingTriangles(geom.AABB{Min: mgl32.Vec3{8, -0.1, -2}, Max: mgl32.Vec3{8.5, 0.1, -1.5}}, nil)
	assert.Len(t, got, 2)
	got = m.FindOverlappingTriangles(geom.AABB{Min: mgl32.Vec3{2, -0.1, -2}, Max: mgl32.Vec3{3, 0.1, 2}}, nil)
	assert.Empty(t, got)

	_, a, _, _ := m.Triangle(0)
	assert.Equal(t, mgl32.Vec3{8, 0, -2}, a)

	hit, ok := m.RayCast(geom.Ray{Origin: mgl32.Vec3{11, 3, 1}, Direction: mgl32.Vec3{0, -1, 0}}, 10)
	require.True(t, ok)
	assert.InDelta(t, 3, hit.T, 1e-5)
	assert.InDelta(t, 0, hit.Position.Y(), 1e-5)
	assert.InDelta(t, 1, hit.Normal.Y(), 1e-5)

	mirrored := NewInstancedMesh(shape, geom.NewAffineTransform(mgl32.Scale3D(-1, 1, 1)))
	mirrored.Sides = geom.Counterclockwise
	assert.Equal(t, geom.Clockwise, mirrored.Sidedness())
}

func flatTerrain(t *testing.T, w, d int, h float32) *Terrain {
	t.Helper()
	heights := make([]float32, w*d)
	for i := range heights {
		heights[i] = h
	}
	terrain, err := NewTerrain(heights, w, d, geom.IdentityAffine())
	require.NoError(t, err)
	return terrain
}

func TestTerrainTriangles(t *testing.T) {
	terrain := flatTerrain(t, 4, 4, 0)
	for i := 0; i < 3*3*2; i++ {
		_, a, b, c := terrain.Triangle(i)
		tri := geom.Triangle{A: a, B: b, C: c}
		assert.InDelta(t, 1, tri.Normal().Y(), 1e-6, "triangle %d must face up", i)
	}

	got := terrain.FindOverlappingTriangles(geom.AABB{Min: mgl32.Vec3{1.2, -0.5, 1.2}, Max: mgl32.Vec3{1.8, 0.5, 1.8}}, nil)
	assert.Equal(t, []int{8, 9}, got)

	got = terrain.FindOverlappingTriangles(geom.AABB{Min: mgl32.Vec3{1.2, 0.5, 1.2}, Max: mgl32.Vec3{1.8, 1, 1.8}}, nil)
	assert.Empty(t, got, "box above the surface")

	got = terrain.FindOverlappingTriangles(geom.AABB{Min: mgl32.Vec3{-5, -1, -5}, Max: mgl32.Vec3{-4, 1, -4}}, nil)
	assert.Empty(t, got)
}

func TestTerrainRayCast(t *testing.T) {
	heights := []float32{
		0, 0, 0, 0,
		0, 1, 1, 0,
		0, 1, 1, 0,
		0, 0, 0, 0,
	}
	terrain, err := NewTerrain(heights, 4, 4, geom.NewAffineTransform(mgl32.Translate3D(-1.5, 0, -1.5)))
	require.NoError(t, err)

	hit, ok := terrain.RayCast(geom.Ray{Origin: mgl32.Vec3{0, 5, 0}, Direction: mgl32.Vec3{0, -1, 0}}, 10)
	require.True(t, ok)
	assert.InDelta(t, 4, hit.T, 1e-5)
	assert.InDelta(t, 1, hit.Normal.Y(), 1e-5)

	// A horizontal ray meeting the slope up to the raised block.
	hit, ok = terrain.RayCast(geom.Ray{Origin: mgl32.Vec3{-3, 0.5, 0.2}, Direction: mgl32.Vec3{1, 0, 0}}, 10)
	require.True(t, ok)
	assert.Less(t, hit.Position.X(), float32(-0.4))
	assert.Greater(t, hit.Position.X(), float32(-1.1))

	// The solid side faces up, so rays from below pass through.
	_, ok = terrain.RayCast(geom.Ray{Origin: mgl32.Vec3{0, -5, 0}, Direction: mgl32.Vec3{0, 1, 0}}, 10)
	assert.False(t, ok)
}

func TestTerrainFromImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.SetGray(2, 1, color.Gray{Y: 255})
	terrain, err := TerrainFromImage(img, geom.IdentityAffine())
	require.NoError(t, err)
	w, d := terrain.Size()
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, d)
	assert.InDelta(t, 1, terrain.Height(2, 1), 1e-3)
	assert.InDelta(t, 0, terrain.Height(0, 0), 1e-6)
	assert.InDelta(t, 1, terrain.BoundingBox().Max.Y(), 1e-3)
}

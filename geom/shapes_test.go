package geom

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClosestPointOnTriangleRegions(t *testing.T) {
	a := mgl32.Vec3{0, 0, 0}
	b := mgl32.Vec3{1, 0, 0}
	c := mgl32.Vec3{0, 0, 1}

	tests := []struct {
		name   string
		p      mgl32.Vec3
		want   mgl32.Vec3
		region VoronoiRegion
	}{
		{"vertex A", mgl32.Vec3{-1, 1, -1}, a, RegionA},
		{"vertex B", mgl32.Vec3{2, 1, -0.5}, b, RegionB},
		{"vertex C", mgl32.Vec3{-0.5, 1, 2}, c, RegionC},
		{"edge AB", mgl32.Vec3{0.5, 1, -1}, mgl32.Vec3{0.5, 0, 0}, RegionAB},
		{"edge AC", mgl32.Vec3{-1, 1, 0.5}, mgl32.Vec3{0, 0, 0.5}, RegionAC},
		{"edge BC", mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0.5, 0, 0.5}, RegionBC},
		{"face", mgl32.Vec3{0.25, 3, 0.25}, mgl32.Vec3{0.25, 0, 0.25}, RegionABC},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, region := ClosestPointOnTriangle(tc.p, a, b, c)
			assert.Equal(t, tc.region, region)
			assert.True(t, p.ApproxEqualThreshold(tc.want, 1e-5), "got %v want %v", p, tc.want)
		})
	}
}

func TestTriangleRayCastSidedness(t *testing.T) {
	// Counterclockwise normal of this triangle is +Y.
	tri := &Triangle{A: mgl32.Vec3{0, 0, 0}, B: mgl32.Vec3{0, 0, 1}, C: mgl32.Vec3{1, 0, 0}}
	require.InDelta(t, 1.0, tri.Normal()[1], 1e-6)

	down := Ray{Origin: mgl32.Vec3{0.2, 1, 0.2}, Direction: mgl32.Vec3{0, -1, 0}}
	up := Ray{Origin: mgl32.Vec3{0.2, -1, 0.2}, Direction: mgl32.Vec3{0, 1, 0}}

	tri.Sidedness = Counterclockwise
	hit, ok := tri.RayCast(down, 10)
	require.True(t, ok)
	assert.InDelta(t, 1.0, hit.T, 1e-5)
	assert.InDelta(t, 1.0, hit.Normal[1], 1e-5)
	_, ok = tri.RayCast(up, 10)
	assert.False(t, ok, "back face must not be hit")

	tri.Sidedness = Clockwise
	_, ok = tri.RayCast(down, 10)
	assert.False(t, ok)
	hit, ok = tri.RayCast(up, 10)
	require.True(t, ok)
	assert.InDelta(t, -1.0, hit.Normal[1], 1e-5)

	tri.Sidedness = DoubleSided
	_, ok = tri.RayCast(up, 10)
	assert.True(t, ok)
}

func TestShapeRayCasts(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		ray   Ray
		t     float32
		n     mgl32.Vec3
	}{
		{"sphere", &Sphere{Radius: 1}, Ray{Origin: mgl32.Vec3{0, 5, 0}, Direction: mgl32.Vec3{0, -1, 0}}, 4, mgl32.Vec3{0, 1, 0}},
		{"box", &Box{HalfExtents: mgl32.Vec3{1, 2, 1}}, Ray{Origin: mgl32.Vec3{5, 0, 0}, Direction: mgl32.Vec3{-1, 0, 0}}, 4, mgl32.Vec3{1, 0, 0}},
		{"cylinder side", &Cylinder{Radius: 0.5, HalfHeight: 1}, Ray{Origin: mgl32.Vec3{0, 0, -3}, Direction: mgl32.Vec3{0, 0, 1}}, 2.5, mgl32.Vec3{0, 0, -1}},
		{"cylinder cap", &Cylinder{Radius: 0.5, HalfHeight: 1}, Ray{Origin: mgl32.Vec3{0.1, 3, 0}, Direction: mgl32.Vec3{0, -1, 0}}, 2, mgl32.Vec3{0, 1, 0}},
		{"capsule cap", &Capsule{Radius: 0.5, HalfLength: 1}, Ray{Origin: mgl32.Vec3{0, 3, 0}, Direction: mgl32.Vec3{0, -1, 0}}, 1.5, mgl32.Vec3{0, 1, 0}},
		{"capsule side", &Capsule{Radius: 0.5, HalfLength: 1}, Ray{Origin: mgl32.Vec3{2, 0.5, 0}, Direction: mgl32.Vec3{-1, 0, 0}}, 1.5, mgl32.Vec3{1, 0, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hit, ok := tc.shape.RayCast(tc.ray, 100)
			require.True(t, ok)
			assert.InDelta(t, tc.t, hit.T, 1e-4)
			assert.True(t, hit.Normal.ApproxEqualThreshold(tc.n, 1e-4), "normal %v", hit.Normal)
		})
	}
}

func TestWorldBounds(t *testing.T) {
	cyl := &Cylinder{Radius: 0.6, HalfHeight: 0.85}
	tr := RigidTransform{Position: mgl32.Vec3{1, 2, 3}, Orientation: mgl32.QuatIdent()}
	box := WorldBounds(cyl, tr)
	assert.True(t, box.Min.ApproxEqualThreshold(mgl32.Vec3{0.4, 1.15, 2.4}, 1e-5), "%v", box)
	assert.True(t, box.Max.ApproxEqualThreshold(mgl32.Vec3{1.6, 2.85, 3.6}, 1e-5), "%v", box)

	// A box rotated 90 degrees about Z swaps its X and Y extents.
	b := &Box{HalfExtents: mgl32.Vec3{2, 1, 1}}
	tr = RigidTransform{Orientation: mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1})}
	box = WorldBounds(b, tr)
	assert.InDelta(t, 1.0, box.Max[0], 1e-4)
	assert.InDelta(t, 2.0, box.Max[1], 1e-4)
}

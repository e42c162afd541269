package geom

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestAABBValid(t *testing.T) {
	tests := []struct {
		name string
		box  AABB
		want bool
	}{
		{"unit", AABB{Max: mgl32.Vec3{1, 1, 1}}, true},
		{"zero volume", AABB{}, true},
		{"inverted", AABB{Min: mgl32.Vec3{1, 0, 0}}, false},
		{"nan", AABB{Min: mgl32.Vec3{math32.NaN(), 0, 0}, Max: mgl32.Vec3{1, 1, 1}}, false},
		{"inf", AABB{Max: mgl32.Vec3{math32.Inf(1), 1, 1}}, false},
		{"empty", EmptyAABB(), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.box.Valid())
		})
	}
}

func TestAABBMergeAndIntersect(t *testing.T) {
	a := AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{1, 1, 1}}
	b := AABB{Min: mgl32.Vec3{1, 0, 0}, Max: mgl32.Vec3{2, 1, 1}}
	c := AABB{Min: mgl32.Vec3{3, 3, 3}, Max: mgl32.Vec3{4, 4, 4}}

	assert.True(t, a.Intersects(b), "touching boxes overlap")
	assert.False(t, a.Intersects(c))

	m := a.Merge(c)
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, m.Min)
	assert.Equal(t, mgl32.Vec3{4, 4, 4}, m.Max)
	assert.True(t, m.Contains(a))
	assert.True(t, m.Contains(c))
	assert.Equal(t, a, EmptyAABB().Merge(a))
	assert.InDelta(t, 64.0, m.Volume(), 1e-5)
}

func TestAABBLongestAxisTieBreak(t *testing.T) {
	assert.Equal(t, 0, AABB{Max: mgl32.Vec3{1, 1, 1}}.LongestAxis())
	assert.Equal(t, 1, AABB{Max: mgl32.Vec3{1, 2, 2}}.LongestAxis())
	assert.Equal(t, 2, AABB{Max: mgl32.Vec3{1, 2, 3}}.LongestAxis())
}

func TestAABBRayIntersect(t *testing.T) {
	box := AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}

	tHit, ok := box.RayIntersect(Ray{Origin: mgl32.Vec3{-5, 0, 0}, Direction: mgl32.Vec3{1, 0, 0}}, 100)
	assert.True(t, ok)
	assert.InDelta(t, 4.0, tHit, 1e-5)

	_, ok = box.RayIntersect(Ray{Origin: mgl32.Vec3{-5, 0, 0}, Direction: mgl32.Vec3{1, 0, 0}}, 3)
	assert.False(t, ok, "hit lies beyond max length")

	_, ok = box.RayIntersect(Ray{Origin: mgl32.Vec3{-5, 2, 0}, Direction: mgl32.Vec3{1, 0, 0}}, 100)
	assert.False(t, ok)

	tHit, ok = box.RayIntersect(Ray{Origin: mgl32.Vec3{0, 0, 0}, Direction: mgl32.Vec3{0, 1, 0}}, 100)
	assert.True(t, ok)
	assert.Equal(t, float32(0), tHit)
}

func TestAABBTransform(t *testing.T) {
	box := AABB{Min: mgl32.Vec3{-1, -2, -3}, Max: mgl32.Vec3{1, 2, 3}}
	m := mgl32.Translate3D(10, 0, 0).Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90)))
	out := box.Transform(m)
	assert.InDelta(t, 7.0, out.Min[0], 1e-4)
	assert.InDelta(t, 13.0, out.Max[0], 1e-4)
	assert.InDelta(t, -2.0, out.Min[1], 1e-4)
	assert.InDelta(t, -1.0, out.Min[2], 1e-4)
	assert.InDelta(t, 1.0, out.Max[2], 1e-4)
}

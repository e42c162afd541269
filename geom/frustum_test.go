package geom

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestFrustumCulling(t *testing.T) {
	// Camera at origin looking down -Z, 90 deg FOV, near 1, far 100.
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1.0, 1.0, 100.0)
	view := mgl32.LookAtV(
		mgl32.Vec3{0, 0, 0},
		mgl32.Vec3{0, 0, -1},
		mgl32.Vec3{0, 1, 0},
	)
	frustum := FrustumFromMatrix(proj.Mul4(view))

	tests := []struct {
		name     string
		box      AABB
		expected bool
	}{
		{"inside", AABB{Min: mgl32.Vec3{-1, -1, -10}, Max: mgl32.Vec3{1, 1, -5}}, true},
		{"outside left", AABB{Min: mgl32.Vec3{-20, -1, -10}, Max: mgl32.Vec3{-15, 1, -5}}, false},
		{"outside right", AABB{Min: mgl32.Vec3{15, -1, -10}, Max: mgl32.Vec3{20, 1, -5}}, false},
		{"behind near plane", AABB{Min: mgl32.Vec3{-1, -1, 2}, Max: mgl32.Vec3{1, 1, 5}}, false},
		{"beyond far plane", AABB{Min: mgl32.Vec3{-1, -1, -200}, Max: mgl32.Vec3{1, 1, -150}}, false},
		{"straddling left plane", AABB{Min: mgl32.Vec3{-15, -1, -10}, Max: mgl32.Vec3{-5, 1, -5}}, true},
		{"encompassing", AABB{Min: mgl32.Vec3{-1000, -1000, -1000}, Max: mgl32.Vec3{1000, 1000, 1000}}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := frustum.IntersectsAABB(tc.box); got != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, got)
				center := tc.box.Center()
				for i, p := range frustum {
					t.Logf("  P%d: %v, Dist(Center)=%f", i, p, p.Dot(center.Vec4(1.0)))
				}
			}
		})
	}
}

func TestFrustumOrtho(t *testing.T) {
	proj := mgl32.Ortho(-10, 10, -10, 10, 0, 20)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	frustum := FrustumFromMatrix(proj.Mul4(view))

	if !frustum.IntersectsAABB(AABB{Min: mgl32.Vec3{-1, -1, -6}, Max: mgl32.Vec3{1, 1, -4}}) {
		t.Error("box at z=-5 should be inside")
	}
	// Far = 20 maps to z = -20.
	if frustum.IntersectsAABB(AABB{Min: mgl32.Vec3{-1, -1, -26}, Max: mgl32.Vec3{1, 1, -24}}) {
		t.Error("box at z=-25 should be outside")
	}
}

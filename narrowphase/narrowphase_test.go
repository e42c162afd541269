package narrowphase

import (
	"math"
	"slices"
	"testing"

	"github.com/gekko3d/gekkophys/broadphase"
	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convexAt(shape geom.Shape, pos mgl32.Vec3, mass float32) *collidables.Convex {
	return collidables.NewConvex(shape, collidables.NewBody(pos, mass), 0.04)
}

func quad(t *testing.T) *collidables.StaticMesh {
	t.Helper()
	vertices := []mgl32.Vec3{{-1, 0, -1}, {1, 0, -1}, {1, 0, 1}, {-1, 0, 1}}
	m, err := collidables.NewStaticMesh(vertices, []int{0, 3, 1, 1, 3, 2}, geom.IdentityAffine())
	require.NoError(t, err)
	return m
}

func flatTerrain(t *testing.T, size int) *collidables.Terrain {
	t.Helper()
	terrain, err := collidables.NewTerrain(make([]float32, size*size), size, size, geom.IdentityAffine())
	require.NoError(t, err)
	return terrain
}

func updated(t *testing.T, a, b collidables.Collidable) PairHandler {
	t.Helper()
	h, err := NewPairHandler(a, b, DefaultSettings())
	require.NoError(t, err)
	h.Update(1.0 / 60)
	return h
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
	s := DefaultSettings()
	s.ContactInvalidationLength = 0
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
	s = DefaultSettings()
	s.NonconvexNormalDotMinimum = 2
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
}

func TestGJKEPABoxes(t *testing.T) {
	box := &geom.Box{HalfExtents: mgl32.Vec3{1, 1, 1}}
	at := func(x float32) supportFunc {
		return shapeSupport(box, geom.RigidTransform{Position: mgl32.Vec3{x, 0, 0}, Orientation: mgl32.QuatIdent()})
	}

	pen, ok := marginPenetration(at(0), at(1.5), mgl32.Vec3{1, 0, 0}, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.5, pen.depth, 1e-3)
	assert.InDelta(t, 1, pen.normal.X(), 1e-3, "normal points from A toward B")
	assert.InDelta(t, 1, pen.pointA.X(), 1e-3)
	assert.InDelta(t, 0.5, pen.pointB.X(), 1e-3)

	pen, ok = marginPenetration(at(0), at(2.02), mgl32.Vec3{1, 0, 0}, 0.04)
	require.True(t, ok, "inside the margin")
	assert.InDelta(t, -0.02, pen.depth, 1e-3)

	var s simplex
	assert.False(t, gjkIntersect(at(0), at(3), mgl32.Vec3{1, 0, 0}, &s))
}

func TestConvexPairs(t *testing.T) {
	up := mgl32.Vec3{0, 1, 0}
	ground := func() *collidables.Convex {
		return convexAt(&geom.Box{HalfExtents: mgl32.Vec3{5, 0.5, 5}}, mgl32.Vec3{0, -0.5, 0}, 0)
	}
	tests := []struct {
		name     string
		a, b     *collidables.Convex
		count    int
		normal   mgl32.Vec3
		depth    float32
		depthTol float64
	}{
		{
			name:   "sphere sphere",
			a:      convexAt(&geom.Sphere{Radius: 1}, mgl32.Vec3{}, 1),
			b:      convexAt(&geom.Sphere{Radius: 1}, mgl32.Vec3{1.5, 0, 0}, 1),
			count:  1,
			normal: mgl32.Vec3{-1, 0, 0},
			depth:  0.5, depthTol: 1e-5,
		},
		{
			name:   "sphere box",
			a:      convexAt(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{0, 0.4, 0}, 1),
			b:      ground(),
			count:  1,
			normal: up,
			depth:  0.1, depthTol: 1e-5,
		},
		{
			name:   "box resting on box",
			a:      convexAt(&geom.Box{HalfExtents: mgl32.Vec3{0.5, 0.5, 0.5}}, mgl32.Vec3{0, 0.45, 0}, 1),
			b:      ground(),
			count:  4,
			normal: up,
			depth:  0.05, depthTol: 1e-5,
		},
		{
			name:   "upright cylinder on box",
			a:      convexAt(&geom.Cylinder{Radius: 0.6, HalfHeight: 0.85}, mgl32.Vec3{0, 0.84, 0}, 1),
			b:      ground(),
			count:  4,
			normal: up,
			depth:  0.01, depthTol: 1e-5,
		},
		{
			name:   "capsule on box through GJK",
			a:      convexAt(&geom.Capsule{Radius: 0.5, HalfLength: 0.5}, mgl32.Vec3{0, 0.95, 0}, 1),
			b:      ground(),
			count:  1,
			normal: up,
			depth:  0.05, depthTol: 2e-3,
		},
		{
			name:   "box below capsule gets the flipped normal",
			a:      ground(),
			b:      convexAt(&geom.Capsule{Radius: 0.5, HalfLength: 0.5}, mgl32.Vec3{0, 0.95, 0}, 1),
			count:  1,
			normal: mgl32.Vec3{0, -1, 0},
			depth:  0.05, depthTol: 2e-3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := updated(t, tt.a, tt.b)
			contacts := h.Contacts()
			require.Len(t, contacts, tt.count)
			for _, c := range contacts {
				assert.InDelta(t, 1, c.Normal.Dot(tt.normal), 1e-3)
				assert.InDelta(t, tt.depth, c.PenetrationDepth, tt.depthTol)
			}
		})
	}
}

func TestSeparatedConvexHaveNoContacts(t *testing.T) {
	h := updated(t,
		convexAt(&geom.Sphere{Radius: 1}, mgl32.Vec3{}, 1),
		convexAt(&geom.Box{HalfExtents: mgl32.Vec3{1, 1, 1}}, mgl32.Vec3{3, 0, 0}, 1))
	assert.Empty(t, h.Contacts())
}

func TestNewPairHandlerDispatch(t *testing.T) {
	sphere := convexAt(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{0, 0.4, 0}, 1)
	mesh := quad(t)

	h, err := NewPairHandler(mesh, sphere, DefaultSettings())
	require.NoError(t, err)
	assert.IsType(t, &TriangleManifold{}, h)
	assert.Same(t, sphere, h.CollidableA(), "the convex always comes first")

	_, err = NewPairHandler(mesh, flatTerrain(t, 3), DefaultSettings())
	assert.ErrorIs(t, err, ErrUnsupportedPair)

	assert.Panics(t, func() { NewTriangleManifold(DefaultSettings()).Initialize(mesh, sphere) })
}

func TestSphereOnQuadBlocksSeamContact(t *testing.T) {
	mesh := quad(t)
	sphere := convexAt(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{0.2, 0.3, 0.3}, 1)

	h := updated(t, sphere, mesh)
	contacts := h.Contacts()
	require.Len(t, contacts, 1, "the edge contact on the shared diagonal is blocked")
	assert.InDelta(t, 1, contacts[0].Normal.Y(), 1e-5)
	assert.InDelta(t, 0.2, contacts[0].PenetrationDepth, 1e-5)

	mesh.ImproveBoundaries = false
	h = updated(t, sphere, mesh)
	assert.Len(t, h.Contacts(), 2)
}

func TestWedgedSphereUsesFaceNormals(t *testing.T) {
	vertices := []mgl32.Vec3{
		{-0.2, 0, -1}, {-0.2, 0, 1}, {-2, 0, 0},
		{0.2, 0, -1}, {0.2, 0, 1}, {2, 0, 0},
	}
	mesh, err := collidables.NewStaticMesh(vertices, []int{0, 1, 2, 3, 5, 4}, geom.IdentityAffine())
	require.NoError(t, err)
	sphere := convexAt(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{0, 0.1, 0}, 1)

	contacts := updated(t, sphere, mesh).Contacts()
	require.Len(t, contacts, 2)
	for _, c := range contacts {
		assert.InDelta(t, 1, c.Normal.Y(), 1e-5)
		assert.InDelta(t, 0.5-math.Sqrt(0.05), c.PenetrationDepth, 1e-4)
	}

	mesh.ImproveBoundaries = false
	contacts = updated(t, sphere, mesh).Contacts()
	require.Len(t, contacts, 2)
	assert.Less(t, contacts[0].Normal.Dot(contacts[1].Normal), float32(0), "raw edge normals oppose each other")
}

func TestSphereOnRidgeUsesFaceNormalForBlockedEdge(t *testing.T) {
	// Two 30 degree slopes meeting at a ridge along the z axis.
	h := float32(2 * math.Tan(math.Pi/6))
	vertices := []mgl32.Vec3{{0, 0, -1}, {0, 0, 1}, {-2, -h, 0}, {2, -h, 0}}
	slope := [2]float32{float32(math.Cos(math.Pi / 3)), float32(math.Sin(math.Pi / 3))}

	tests := []struct {
		name    string
		improve bool
		// want holds |normal.X|, normal.Y and depth of each contact, ridge contact first.
		want [][3]float32
	}{
		{
			name:    "blocked edge is kept with the face normal",
			improve: true,
			want:    [][3]float32{{0, 1, 0.1}, {slope[0], slope[1], 0.1 * slope[1]}},
		},
		{
			name: "raw duplicates merge",
			want: [][3]float32{{0, 1, 0.1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mesh, err := collidables.NewStaticMesh(vertices, []int{0, 2, 1, 0, 1, 3}, geom.IdentityAffine())
			require.NoError(t, err)
			mesh.ImproveBoundaries = tt.improve
			sphere := convexAt(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{0, 0.4, 0}, 1)

			contacts := slices.Clone(updated(t, sphere, mesh).Contacts())
			require.Len(t, contacts, len(tt.want))
			slices.SortFunc(contacts, func(a, b Contact) int {
				switch {
				case a.Normal.Y() > b.Normal.Y():
					return -1
				case a.Normal.Y() < b.Normal.Y():
					return 1
				}
				return 0
			})
			for i, want := range tt.want {
				c := contacts[i]
				assert.InDelta(t, want[0], math.Abs(float64(c.Normal.X())), 1e-3, "contact %d", i)
				assert.InDelta(t, want[1], c.Normal.Y(), 1e-3, "contact %d", i)
				assert.InDelta(t, want[2], c.PenetrationDepth, 1e-3, "contact %d", i)
			}
		})
	}
}

func TestCapsuleLyingOnQuad(t *testing.T) {
	body := collidables.NewBody(mgl32.Vec3{0, 0.45, 0.3}, 1)
	body.Orientation = mgl32.QuatRotate(math.Pi/2, mgl32.Vec3{0, 0, 1})
	capsule := collidables.NewConvex(&geom.Capsule{Radius: 0.5, HalfLength: 0.5}, body, 0.04)

	contacts := updated(t, capsule, quad(t)).Contacts()
	require.Len(t, contacts, 2, "one contact under each end")
	xs := make([]float32, 0, 2)
	for _, c := range contacts {
		assert.InDelta(t, 1, c.Normal.Y(), 1e-4)
		assert.InDelta(t, 0.05, c.PenetrationDepth, 1e-4)
		xs = append(xs, c.Position.X())
	}
	slices.Sort(xs)
	assert.InDelta(t, -0.5, xs[0], 1e-4)
	assert.InDelta(t, 0.5, xs[1], 1e-4)
}

func TestTriangleManifoldUpdateIsIdempotent(t *testing.T) {
	terrain := flatTerrain(t, 4)
	box := convexAt(&geom.Box{HalfExtents: mgl32.Vec3{0.9, 0.5, 0.9}}, mgl32.Vec3{1.5, 0.48, 1.5}, 1)

	h, err := NewPairHandler(box, terrain, DefaultSettings())
	require.NoError(t, err)
	h.Update(1.0 / 60)
	first := slices.Clone(h.Contacts())
	require.NotEmpty(t, first)
	require.LessOrEqual(t, len(first), MaximumContacts)
	for _, c := range first {
		assert.InDelta(t, 1, c.Normal.Y(), 1e-4)
		assert.InDelta(t, 0.02, c.PenetrationDepth, 1e-3)
	}

	h.Update(1.0 / 60)
	second := h.Contacts()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.InDelta(t, first[i].PenetrationDepth, second[i].PenetrationDepth, 1e-5)
		assert.InDelta(t, 0, first[i].Position.Sub(second[i].Position).Len(), 1e-5)
	}
}

func TestTriangleManifoldEvictsTesters(t *testing.T) {
	sphere := convexAt(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{0.2, 0.3, 0.3}, 1)
	h, err := NewPairHandler(sphere, quad(t), DefaultSettings())
	require.NoError(t, err)
	m := h.(*TriangleManifold)
	m.Update(0)
	assert.Len(t, m.testers, 2)

	sphere.Body.Position = mgl32.Vec3{0.2, 5, 0.3}
	sphere.UpdateBoundingBox()
	m.Update(0)
	assert.Empty(t, m.testers)
	assert.Empty(t, m.Contacts(), "separated contacts are dropped on refresh")

	m.CleanUp()
	assert.Nil(t, m.CollidableA())
}

func TestContactRefreshTracksMotion(t *testing.T) {
	sphere := convexAt(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{1.3, 0.45, 1.6}, 1)
	s := DefaultSettings()
	a, b := sphere.Transform(), geom.IdentityAffine()
	c := anchorContact(ContactData{Position: mgl32.Vec3{1.3, 0, 1.6}, Normal: mgl32.Vec3{0, 1, 0}, PenetrationDepth: 0.05}, a, b)

	sphere.Body.Position = sphere.Body.Position.Add(mgl32.Vec3{0, 0.02, 0})
	limit := s.ContactInvalidationLength * s.ContactInvalidationLength
	require.True(t, refreshContact(&c, sphere.Transform(), b, limit, s.CollisionMargin))
	assert.InDelta(t, 0.03, c.PenetrationDepth, 1e-5)

	sphere.Body.Position = sphere.Body.Position.Add(mgl32.Vec3{0.5, 0, 0})
	assert.False(t, refreshContact(&c, sphere.Transform(), b, limit, s.CollisionMargin), "slid too far")
}

func TestReduceContacts(t *testing.T) {
	points := []ContactData{
		{Position: mgl32.Vec3{0, 0, 0}, PenetrationDepth: 0.5, ID: 0},
		{Position: mgl32.Vec3{1, 0, 1}, PenetrationDepth: 0.1, ID: 1},
		{Position: mgl32.Vec3{-1, 0, 1}, PenetrationDepth: 0.1, ID: 2},
		{Position: mgl32.Vec3{-1, 0, -1}, PenetrationDepth: 0.1, ID: 3},
		{Position: mgl32.Vec3{1, 0, -1}, PenetrationDepth: 0.1, ID: 4},
		{Position: mgl32.Vec3{0.5, 0, 0}, PenetrationDepth: 0.2, ID: 5},
	}
	ids := func(cs []ContactData) []int {
		out := make([]int, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.ID)
		}
		slices.Sort(out)
		return out
	}

	var r ContactReducer
	remove, add := r.ReduceContacts(nil, points)
	assert.Empty(t, remove)
	assert.Equal(t, []int{0, 1, 2, 3}, ids(add))

	reversed := slices.Clone(points)
	slices.Reverse(reversed)
	_, add = r.ReduceContacts(nil, reversed)
	assert.Equal(t, []int{0, 1, 2, 3}, ids(add), "order does not change the choice")

	existing := []Contact{{ContactData: points[4]}, {ContactData: points[5]}}
	remove, add = r.ReduceContacts(existing, points[:4])
	assert.Equal(t, []int{1, 0}, remove)
	assert.Equal(t, []int{0, 1, 2, 3}, ids(add))

	remove, add = r.ReduceContacts(existing[:1], points[:3])
	assert.Empty(t, remove)
	assert.Len(t, add, 3)
}

func TestNarrowPhaseTracksPairs(t *testing.T) {
	np, err := New(DefaultSettings())
	require.NoError(t, err)
	tree, err := broadphase.NewHierarchy(broadphase.DefaultSettings())
	require.NoError(t, err)

	mesh := quad(t)
	terrain := flatTerrain(t, 3)
	sphere := convexAt(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{0.2, 0.45, 0.3}, 1)
	for _, e := range []broadphase.Entry{mesh, terrain, sphere} {
		require.NoError(t, tree.Add(e))
	}

	tick := func() {
		tree.Refit()
		np.BeginTick()
		tree.FindOverlappingPairs(np)
		require.NoError(t, np.Update(1.0/60))
	}
	tick()
	assert.Equal(t, 2, np.PairCount(), "the two static meshes never pair")

	contacts := np.ContactsOf(sphere, nil)
	require.NotEmpty(t, contacts)
	for _, c := range contacts {
		assert.Greater(t, c.Normal.Y(), float32(0.99))
	}
	meshContacts := np.ContactsOf(mesh, nil)
	require.NotEmpty(t, meshContacts)
	assert.Less(t, meshContacts[0].Normal.Y(), float32(-0.99), "seen from the mesh the normal points down")
	assert.Same(t, sphere, meshContacts[0].Other)

	sphere.Body.Position = mgl32.Vec3{0.2, 10, 0.3}
	sphere.UpdateBoundingBox()
	tick()
	assert.Zero(t, np.PairCount())
	assert.Empty(t, np.ContactsOf(sphere, nil))
}

func TestNarrowPhaseRemoveCollidable(t *testing.T) {
	np, err := New(DefaultSettings())
	require.NoError(t, err)
	sphere := convexAt(&geom.Sphere{Radius: 0.5}, mgl32.Vec3{0.2, 0.45, 0.3}, 1)
	mesh := quad(t)
	np.BeginTick()
	np.TryToAdd(sphere, mesh)
	np.TryToAdd(mesh, sphere)
	assert.Equal(t, 1, np.PairCount())
	require.NoError(t, np.Update(0))

	np.RemoveCollidable(sphere)
	assert.Zero(t, np.PairCount())
	assert.Empty(t, np.Pairs())
}

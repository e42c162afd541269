package broadphase

import (
	"github.com/gekko3d/gekkophys/geom"
)

// GetEntries appends every entry whose box intersects box.
func (h *Hierarchy) GetEntries(box geom.AABB, out []Entry) []Entry {
	if h.root == nil {
		return out
	}
	return h.query(h.root, box.Intersects, out)
}

// GetEntriesSphere appends every entry whose box touches the sphere.
func (h *Hierarchy) GetEntriesSphere(s geom.BoundingSphere, out []Entry) []Entry {
	if h.root == nil {
		return out
	}
	return h.query(h.root, func(b geom.AABB) bool { return b.IntersectsSphere(s) }, out)
}

// GetEntriesFrustum appends every entry whose box is not fully outside the frustum.
func (h *Hierarchy) GetEntriesFrustum(f geom.Frustum, out []Entry) []Entry {
	if h.root == nil {
		return out
	}
	return h.query(h.root, f.IntersectsAABB, out)
}

func (h *Hierarchy) query(n *node, test func(geom.AABB) bool, out []Entry) []Entry {
	if !test(n.box) {
		return out
	}
	if n.isLeaf() {
		for _, e := range n.entries {
			if test(e.BoundingBox()) {
				out = append(out, e)
			}
		}
		return out
	}
	out = h.query(n.children[0], test, out)
	return h.query(n.children[1], test, out)
}

// RayCast appends every entry whose box the ray enters within maxLength.
func (h *Hierarchy) RayCast(r geom.Ray, maxLength float32, out []Entry) []Entry {
	if h.root == nil {
		return out
	}
	return h.query(h.root, func(b geom.AABB) bool {
		_, ok := b.RayIntersect(r, maxLength)
		return ok
	}, out)
}

// RayCastNearest finds the entry with the smallest exact hit distance. exact refines a
// box hit into a precise one; subtrees whose boxes start beyond the best hit are skipped.
func (h *Hierarchy) RayCastNearest(r geom.Ray, maxLength float32, exact func(Entry) (float32, bool)) (Entry, float32, bool) {
	if h.root == nil {
		return nil, 0, false
	}
	var best Entry
	bestT := maxLength
	found := false
	var visit func(n *node)
	visit = func(n *node) {
		t, ok := n.box.RayIntersect(r, bestT)
		if !ok || (found && t > bestT) {
			return
		}
		if n.isLeaf() {
			for _, e := range n.entries {
				if _, ok := e.BoundingBox().RayIntersect(r, bestT); !ok {
					continue
				}
				if t, ok := exact(e); ok && t <= bestT && (!found || t < bestT) {
					best, bestT, found = e, t, true
				}
			}
			return
		}
		// Visit the nearer child first so the farther one can be pruned.
		c0, c1 := n.children[0], n.children[1]
		t0, ok0 := c0.box.RayIntersect(r, bestT)
		t1, ok1 := c1.box.RayIntersect(r, bestT)
		if ok0 && ok1 && t1 < t0 {
			c0, c1 = c1, c0
		}
		if ok0 || ok1 {
			visit(c0)
			visit(c1)
		}
	}
	visit(h.root)
	return best, bestT, found
}

// Depth returns the number of levels in the tree.
func (h *Hierarchy) Depth() int {
	var depth func(n *node) int
	depth = func(n *node) int {
		if n == nil {
			return 0
		}
		if n.isLeaf() {
			return 1
		}
		return 1 + max(depth(n.children[0]), depth(n.children[1]))
	}
	return depth(h.root)
}

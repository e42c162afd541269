package narrowphase

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ContactReducer picks the MaximumContacts contacts that best span a contact patch:
// the deepest one, the one furthest from it, the one forming the largest triangle with
// those two, and the one furthest outside that triangle. Equal scores go to the lower
// contact ID so the choice does not depend on input order.
type ContactReducer struct {
	points []reducerPoint
}

type reducerPoint struct {
	pos   mgl32.Vec3
	depth float32
	id    int
	// index into existing when below len(existing), else into candidates.
	index  int
	picked bool
}

// ReduceContacts chooses among existing and candidates together. It returns the
// indices of existing contacts to remove, in descending order, and the candidates to
// add. When the union already fits nothing is removed and every candidate is added.
func (r *ContactReducer) ReduceContacts(existing []Contact, candidates []ContactData) (toRemove []int, toAdd []ContactData) {
	if len(existing)+len(candidates) <= MaximumContacts {
		return nil, candidates
	}
	r.points = r.points[:0]
	for i := range existing {
		r.points = append(r.points, reducerPoint{pos: existing[i].Position, depth: existing[i].PenetrationDepth, id: existing[i].ID, index: i})
	}
	for i := range candidates {
		r.points = append(r.points, reducerPoint{pos: candidates[i].Position, depth: candidates[i].PenetrationDepth, id: candidates[i].ID, index: len(existing) + i})
	}

	first := r.pick(func(p *reducerPoint) float32 { return p.depth })
	a := r.points[first].pos
	second := r.pick(func(p *reducerPoint) float32 { return p.pos.Sub(a).LenSqr() })
	b := r.points[second].pos
	third := r.pick(func(p *reducerPoint) float32 { return b.Sub(a).Cross(p.pos.Sub(a)).LenSqr() })
	c := r.points[third].pos

	n := b.Sub(a).Cross(c.Sub(a))
	if n.LenSqr() > 1e-12 {
		// Furthest outside any edge of abc, measured as signed area.
		edges := [3][2]mgl32.Vec3{{a, b}, {b, c}, {c, a}}
		fourth := r.pick(func(p *reducerPoint) float32 {
			best := float32(0)
			for _, e := range edges {
				best = max(best, -e[1].Sub(e[0]).Cross(p.pos.Sub(e[0])).Dot(n))
			}
			return best
		})
		if fourth >= 0 && !r.outside(fourth, edges, n) {
			// Everything left lies inside the triangle.
			r.points[fourth].picked = false
		}
	}

	for i := len(existing) - 1; i >= 0; i-- {
		if !r.points[i].picked {
			toRemove = append(toRemove, i)
		}
	}
	for _, p := range r.points[len(existing):] {
		if p.picked {
			toAdd = append(toAdd, candidates[p.index-len(existing)])
		}
	}
	return toRemove, toAdd
}

// pick marks and returns the unpicked point with the highest score, or -1.
func (r *ContactReducer) pick(score func(p *reducerPoint) float32) int {
	best := -1
	var bestScore float32
	for i := range r.points {
		p := &r.points[i]
		if p.picked {
			continue
		}
		s := score(p)
		if best < 0 || s > bestScore || (s == bestScore && p.id < r.points[best].id) {
			best, bestScore = i, s
		}
	}
	if best >= 0 {
		r.points[best].picked = true
	}
	return best
}

func (r *ContactReducer) outside(i int, edges [3][2]mgl32.Vec3, n mgl32.Vec3) bool {
	p := r.points[i].pos
	for _, e := range edges {
		if e[1].Sub(e[0]).Cross(p.Sub(e[0])).Dot(n) < 0 {
			return true
		}
	}
	return false
}

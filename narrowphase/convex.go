package narrowphase

import (
	"github.com/chewxy/math32"
	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
)

// collideConvex appends the contacts between two placed convex shapes. Normals point
// from b toward a. Pairs without a dedicated routine go through GJK and EPA.
func collideConvex(a, b *collidables.Convex, margin float32, out []ContactData) []ContactData {
	ka, kb := a.Shape.Kind(), b.Shape.Kind()
	if ka > kb {
		start := len(out)
		out = collideConvex(b, a, margin, out)
		for i := start; i < len(out); i++ {
			out[i] = out[i].Flipped()
		}
		return out
	}
	ta, tb := a.Transform(), b.Transform()
	switch {
	case isRound(ka) && isRound(kb):
		pa0, pa1, ra := roundCore(a.Shape, ta)
		pb0, pb1, rb := roundCore(b.Shape, tb)
		ca, cb := geom.ClosestPointsSegmentSegment(pa0, pa1, pb0, pb1)
		return roundContact(ca, cb, ra, rb, margin, out)
	case ka == geom.KindSphere && kb == geom.KindBox:
		return collideSphereBox(ta.Position, a.Shape.(*geom.Sphere).Radius, newOBB(b.Shape.(*geom.Box), tb), margin, out)
	case ka == geom.KindBox && kb == geom.KindBox:
		return collideBoxes(newOBB(a.Shape.(*geom.Box), ta), newOBB(b.Shape.(*geom.Box), tb), margin, out)
	case ka == geom.KindCylinder && kb == geom.KindBox:
		if c, ok := collideCylinderBox(a.Shape.(*geom.Cylinder), ta, newOBB(b.Shape.(*geom.Box), tb), margin, out); ok {
			return c
		}
	}
	pen, ok := marginPenetration(shapeSupport(a.Shape, ta), shapeSupport(b.Shape, tb), tb.Position.Sub(ta.Position), margin)
	if !ok || pen.depth < -margin {
		return out
	}
	return append(out, ContactData{
		Position:         pen.pointB,
		Normal:           pen.normal.Mul(-1),
		PenetrationDepth: pen.depth,
	})
}

func isRound(k geom.ShapeKind) bool {
	return k == geom.KindSphere || k == geom.KindCapsule
}

// roundCore returns the world segment and radius of a sphere or capsule. A sphere is a
// segment of zero length.
func roundCore(s geom.Shape, t geom.RigidTransform) (mgl32.Vec3, mgl32.Vec3, float32) {
	switch s := s.(type) {
	case *geom.Capsule:
		p0, p1 := s.Segment()
		return t.TransformPoint(p0), t.TransformPoint(p1), s.Radius
	case *geom.Sphere:
		return t.Position, t.Position, s.Radius
	}
	return t.Position, t.Position, 0
}

func roundContact(ca, cb mgl32.Vec3, ra, rb, margin float32, out []ContactData) []ContactData {
	d := ca.Sub(cb)
	dist := d.Len()
	if dist > ra+rb+margin {
		return out
	}
	n := mgl32.Vec3{0, 1, 0}
	if dist > 1e-7 {
		n = d.Mul(1 / dist)
	}
	depth := ra + rb - dist
	return append(out, ContactData{
		Position:         cb.Add(n.Mul(rb - depth*0.5)),
		Normal:           n,
		PenetrationDepth: depth,
	})
}

// obb is a box placed in the world, described by its center, unit axes and half sizes.
type obb struct {
	center mgl32.Vec3
	axes   [3]mgl32.Vec3
	half   mgl32.Vec3
	t      geom.RigidTransform
}

func newOBB(b *geom.Box, t geom.RigidTransform) obb {
	rot := t.Orientation.Mat4()
	return obb{
		center: t.Position,
		axes:   [3]mgl32.Vec3{rot.Col(0).Vec3(), rot.Col(1).Vec3(), rot.Col(2).Vec3()},
		half:   b.HalfExtents,
		t:      t,
	}
}

// radius is the half length of the box's projection onto axis.
func (o obb) radius(axis mgl32.Vec3) float32 {
	return o.half[0]*math32.Abs(o.axes[0].Dot(axis)) +
		o.half[1]*math32.Abs(o.axes[1].Dot(axis)) +
		o.half[2]*math32.Abs(o.axes[2].Dot(axis))
}

func (o obb) corners() [8]mgl32.Vec3 {
	var out [8]mgl32.Vec3
	for i := range out {
		p := o.center
		for k := 0; k < 3; k++ {
			s := o.half[k]
			if i&(1<<k) != 0 {
				s = -s
			}
			p = p.Add(o.axes[k].Mul(s))
		}
		out[i] = p
	}
	return out
}

func (o obb) contains(p mgl32.Vec3, eps float32) bool {
	d := p.Sub(o.center)
	for k := 0; k < 3; k++ {
		if math32.Abs(d.Dot(o.axes[k])) > o.half[k]+eps {
			return false
		}
	}
	return true
}

func (o obb) support(dir mgl32.Vec3) mgl32.Vec3 {
	p := o.center
	for k := 0; k < 3; k++ {
		if dir.Dot(o.axes[k]) < 0 {
			p = p.Sub(o.axes[k].Mul(o.half[k]))
		} else {
			p = p.Add(o.axes[k].Mul(o.half[k]))
		}
	}
	return p
}

func collideSphereBox(center mgl32.Vec3, radius float32, box obb, margin float32, out []ContactData) []ContactData {
	c := box.t.InverseTransformPoint(center)
	var q mgl32.Vec3
	for k := 0; k < 3; k++ {
		q[k] = mgl32.Clamp(c[k], -box.half[k], box.half[k])
	}
	var n, pos mgl32.Vec3
	var depth float32
	if d := c.Sub(q); d.LenSqr() > 1e-14 {
		dist := d.Len()
		if dist > radius+margin {
			return out
		}
		n = d.Mul(1 / dist)
		depth = radius - dist
		pos = q
	} else {
		// Center inside: push out through the nearest face.
		axis := 0
		best := float32(math32.MaxFloat32)
		for k := 0; k < 3; k++ {
			if f := box.half[k] - math32.Abs(c[k]); f < best {
				best, axis = f, k
			}
		}
		s := sign(c[axis])
		n[axis] = s
		pos = c
		pos[axis] = s * box.half[axis]
		depth = radius + best
	}
	return append(out, ContactData{
		Position:         box.t.TransformPoint(pos),
		Normal:           box.t.TransformDirection(n),
		PenetrationDepth: depth,
	})
}

// collideBoxes separates two boxes on the fifteen candidate axes and reports the corners
// of each box found inside the other.
func collideBoxes(a, b obb, margin float32, out []ContactData) []ContactData {
	l := b.center.Sub(a.center)
	minOverlap := float32(math32.MaxFloat32)
	var normal mgl32.Vec3
	test := func(axis mgl32.Vec3) bool {
		overlap := a.radius(axis) + b.radius(axis) - math32.Abs(l.Dot(axis))
		if overlap < -margin {
			return false
		}
		if overlap < minOverlap {
			minOverlap = overlap
			normal = axis
		}
		return true
	}
	for i := 0; i < 3; i++ {
		if !test(a.axes[i]) || !test(b.axes[i]) {
			return out
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			cross := a.axes[i].Cross(b.axes[j])
			if cross.LenSqr() > 0.0001 && !test(cross.Normalize()) {
				return out
			}
		}
	}
	if l.Dot(normal) > 0 {
		normal = normal.Mul(-1)
	}

	start := len(out)
	faceB := b.center.Dot(normal) + b.radius(normal)
	for i, p := range a.corners() {
		if !b.contains(p, margin) {
			continue
		}
		if depth := faceB - p.Dot(normal); depth >= -margin {
			out = append(out, ContactData{Position: p, Normal: normal, PenetrationDepth: depth, ID: i})
		}
	}
	faceA := a.center.Dot(normal) - a.radius(normal)
	for i, p := range b.corners() {
		if !a.contains(p, margin) {
			continue
		}
		if depth := p.Dot(normal) - faceA; depth >= -margin {
			out = append(out, ContactData{Position: p, Normal: normal, PenetrationDepth: depth, ID: 8 + i})
		}
	}
	if len(out) == start {
		// Edge against edge.
		mid := a.support(normal.Mul(-1)).Add(b.support(normal)).Mul(0.5)
		out = append(out, ContactData{Position: mid, Normal: normal, PenetrationDepth: minOverlap, ID: 16})
	}
	return out
}

// collideCylinderBox handles a cylinder whose axis is parallel to one of the box axes,
// the common case of an upright character against level geometry. It reports false
// for any other orientation.
func collideCylinderBox(cyl *geom.Cylinder, ct geom.RigidTransform, box obb, margin float32, out []ContactData) ([]ContactData, bool) {
	axis := box.t.InverseTransformDirection(ct.TransformDirection(mgl32.Vec3{0, 1, 0}))
	k := -1
	for i := 0; i < 3; i++ {
		if math32.Abs(axis[i]) > 0.9999 {
			k = i
		}
	}
	if k < 0 {
		return out, false
	}
	u, v := (k+1)%3, (k+2)%3
	c := box.t.InverseTransformPoint(ct.Position)
	e := box.half
	hh, r := cyl.HalfHeight, cyl.Radius

	up := e[k] - (c[k] - hh)
	down := (c[k] + hh) + e[k]

	qu := mgl32.Clamp(c[u], -e[u], e[u])
	qv := mgl32.Clamp(c[v], -e[v], e[v])
	du, dv := c[u]-qu, c[v]-qv
	var radialDepth, nu, nv float32
	if dist := math32.Sqrt(du*du + dv*dv); dist > 1e-7 {
		radialDepth = r - dist
		nu, nv = du/dist, dv/dist
	} else {
		pu, pv := e[u]-math32.Abs(c[u]), e[v]-math32.Abs(c[v])
		if pu < pv {
			radialDepth = r + pu
			nu = sign(c[u])
			qu = nu * e[u]
		} else {
			radialDepth = r + pv
			nv = sign(c[v])
			qv = nv * e[v]
		}
	}
	if up < -margin || down < -margin || radialDepth < -margin {
		return out, true
	}

	axial, s := up, float32(1)
	if down < up {
		axial, s = down, -1
	}
	if axial <= radialDepth {
		var n mgl32.Vec3
		n[k] = s
		wn := box.t.TransformDirection(n)
		start := len(out)
		for i, d := range [4][2]float32{{1, 0}, {0, 1}, {-1, 0}, {0, -1}} {
			var p mgl32.Vec3
			p[k] = s * e[k]
			p[u] = mgl32.Clamp(c[u]+r*d[0], -e[u], e[u])
			p[v] = mgl32.Clamp(c[v]+r*d[1], -e[v], e[v])
			wp := box.t.TransformPoint(p)
			dup := false
			for _, o := range out[start:] {
				if o.Position.Sub(wp).LenSqr() < 1e-8 {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, ContactData{Position: wp, Normal: wn, PenetrationDepth: axial, ID: i})
			}
		}
		return out, true
	}

	var n, p mgl32.Vec3
	n[u], n[v] = nu, nv
	p[u], p[v] = qu, qv
	p[k] = (max(c[k]-hh, -e[k]) + min(c[k]+hh, e[k])) * 0.5
	return append(out, ContactData{
		Position:         box.t.TransformPoint(p),
		Normal:           box.t.TransformDirection(n),
		PenetrationDepth: radialDepth,
		ID:               4,
	}), true
}

func sign(x float32) float32 {
	if x < 0 {
		return -1
	}
	return 1
}

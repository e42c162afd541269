// Package collidables holds the objects the broad phase indexes: convex bodies, static
// and instanced triangle meshes, and height field terrain.
package collidables

import (
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var instanceCounter atomic.Uint64

// nextInstanceID hands out the numeric ids used to order locks and key pairs.
func nextInstanceID() uint64 {
	return instanceCounter.Add(1)
}

// Body is the rigid body state the collision core reads and the motion code writes.
// Lock must be held when another goroutine may touch the velocities at the same time.
type Body struct {
	mu         sync.Mutex
	ID         uuid.UUID
	instanceID uint64

	Position        mgl32.Vec3
	Orientation     mgl32.Quat
	LinearVelocity  mgl32.Vec3
	AngularVelocity mgl32.Vec3

	// InverseMass is zero for static and kinematic bodies.
	InverseMass    float32
	InverseInertia mgl32.Mat3
	GravityScale   float32

	Sleeping bool
	IdleTime float32
}

// NewBody creates a body at position. A non-positive mass makes it static.
func NewBody(position mgl32.Vec3, mass float32) *Body {
	b := &Body{
		ID:           uuid.New(),
		instanceID:   nextInstanceID(),
		Position:     position,
		Orientation:  mgl32.QuatIdent(),
		GravityScale: 1,
	}
	if mass > 0 {
		b.InverseMass = 1 / mass
		b.InverseInertia = mgl32.Diag3(mgl32.Vec3{b.InverseMass, b.InverseMass, b.InverseMass})
	}
	return b
}

func (b *Body) InstanceID() uint64 { return b.instanceID }

func (b *Body) Lock()   { b.mu.Lock() }
func (b *Body) Unlock() { b.mu.Unlock() }

func (b *Body) IsStatic() bool { return b.InverseMass == 0 }

func (b *Body) Transform() geom.RigidTransform {
	return geom.RigidTransform{Position: b.Position, Orientation: b.Orientation}
}

func (b *Body) Wake() {
	b.Sleeping = false
	b.IdleTime = 0
}

// ApplyImpulse changes the linear velocity by impulse scaled with the inverse mass and
// the angular velocity by the torque impulse around offset from the center.
func (b *Body) ApplyImpulse(impulse, offset mgl32.Vec3) {
	if b.IsStatic() {
		return
	}
	b.Wake()
	b.LinearVelocity = b.LinearVelocity.Add(impulse.Mul(b.InverseMass))
	torque := offset.Cross(impulse)
	local := b.Orientation.Conjugate().Rotate(torque)
	b.AngularVelocity = b.AngularVelocity.Add(b.Orientation.Rotate(b.InverseInertia.Mul3x1(local)))
}

// Integrate advances the body by dt under gravity. A non-finite displacement zeroes the
// velocity instead of moving the body, and Integrate reports false.
func (b *Body) Integrate(dt float32, gravity mgl32.Vec3) bool {
	if b.IsStatic() || b.Sleeping {
		return true
	}
	if b.GravityScale != 0 {
		b.LinearVelocity = b.LinearVelocity.Add(gravity.Mul(b.GravityScale * dt))
	}
	displacement := b.LinearVelocity.Mul(dt)
	if l := displacement.Len(); math32.IsNaN(l) || math32.IsInf(l, 0) {
		b.LinearVelocity = mgl32.Vec3{}
		return false
	}
	b.Position = b.Position.Add(displacement)

	w := b.AngularVelocity
	if w.LenSqr() > 0 {
		spin := mgl32.Quat{W: 0, V: w}.Mul(b.Orientation)
		q := mgl32.Quat{
			W: b.Orientation.W + 0.5*dt*spin.W,
			V: b.Orientation.V.Add(spin.V.Mul(0.5 * dt)),
		}
		b.Orientation = q.Normalize()
	}
	return true
}

// UpdateSleep puts the body to sleep once its speed stayed under threshold for
// sleepTime seconds.
func (b *Body) UpdateSleep(dt, threshold, sleepTime float32) {
	if b.IsStatic() || b.Sleeping {
		return
	}
	if b.LinearVelocity.Len() >= threshold || b.AngularVelocity.Len() >= threshold {
		b.IdleTime = 0
		return
	}
	b.IdleTime += dt
	if b.IdleTime > sleepTime {
		b.Sleeping = true
		b.LinearVelocity = mgl32.Vec3{}
		b.AngularVelocity = mgl32.Vec3{}
	}
}

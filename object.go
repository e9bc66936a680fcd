package grove

import (
	"math"
	"sync"
)

// Motion is the kinematic state of an Object. Rotations are Euler angles in
// degrees, applied about X, then Y, then Z.
type Motion struct {
	Position            Vec3
	Rotation            Vec3
	Velocity            Vec3
	Acceleration        Vec3
	AngularVelocity     Vec3
	AngularAcceleration Vec3
}

// Spatial is implemented by nodes with a position and rotation.
type Spatial interface {
	Node
	AsObject() *Object
}

// Newtonian is implemented by nodes whose motion is integrated by
// behaviours.
type Newtonian interface {
	Node
	Motion() Motion
	SetMotion(m Motion)
	UpdateMotion(fn func(m *Motion))
}

// Object is a positioned, rotated container: a 3D object that can hold
// sub-objects. Its motion is guarded by its own lock, so behaviours and
// the renderer may touch it from different goroutines.
type Object struct {
	Container

	motionMu sync.RWMutex
	motion   Motion
}

// NewObject creates a detached object at the origin.
func NewObject(name string) *Object {
	o := &Object{}
	o.init(o, name)
	return o
}

// AsObject returns o.
func (o *Object) AsObject() *Object { return o }

// Motion returns a copy of the kinematic state.
func (o *Object) Motion() Motion {
	o.motionMu.RLock()
	defer o.motionMu.RUnlock()
	return o.motion
}

// SetMotion replaces the kinematic state.
func (o *Object) SetMotion(m Motion) {
	o.motionMu.Lock()
	o.motion = m
	o.motionMu.Unlock()
}

// UpdateMotion applies fn to the kinematic state under the object's lock.
func (o *Object) UpdateMotion(fn func(m *Motion)) {
	o.motionMu.Lock()
	fn(&o.motion)
	o.motionMu.Unlock()
}

// Position returns the position relative to the parent.
func (o *Object) Position() Vec3 {
	o.motionMu.RLock()
	defer o.motionMu.RUnlock()
	return o.motion.Position
}

// SetPosition sets the position relative to the parent.
func (o *Object) SetPosition(p Vec3) {
	o.motionMu.Lock()
	o.motion.Position = p
	o.motionMu.Unlock()
}

// Rotation returns the Euler rotation in degrees.
func (o *Object) Rotation() Vec3 {
	o.motionMu.RLock()
	defer o.motionMu.RUnlock()
	return o.motion.Rotation
}

// SetRotation sets the Euler rotation in degrees.
func (o *Object) SetRotation(r Vec3) {
	o.motionMu.Lock()
	o.motion.Rotation = r
	o.motionMu.Unlock()
}

// transform returns position and rotation under one lock acquisition.
func (o *Object) transform() (pos, rot Vec3) {
	o.motionMu.RLock()
	defer o.motionMu.RUnlock()
	return o.motion.Position, o.motion.Rotation
}

// Orientation returns the direction the object faces: Forward rotated about
// X, then Y, then Z by the object's rotation.
func (o *Object) Orientation() Vec3 {
	return RotateEuler(Forward, o.Rotation())
}

// Move translates the object by dir scaled by dist. dir is not normalized,
// so a longer dir moves further.
func (o *Object) Move(dir Vec3, dist float64) {
	d := dir.Scale(dist)
	o.UpdateMotion(func(m *Motion) { m.Position = m.Position.Add(d) })
}

// MoveForward moves the object along its orientation.
func (o *Object) MoveForward(dist float64) { o.Move(o.Orientation(), dist) }

// MoveBackward moves the object against its orientation.
func (o *Object) MoveBackward(dist float64) { o.Move(o.Orientation(), -dist) }

// RotateEuler rotates v about X, then Y, then Z by the angles in rot (degrees).
func RotateEuler(v, rot Vec3) Vec3 {
	v = rotateX(v, rot.X)
	v = rotateY(v, rot.Y)
	return rotateZ(v, rot.Z)
}

func rotateX(v Vec3, deg float64) Vec3 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Vec3{v.X, v.Y*c - v.Z*s, v.Y*s + v.Z*c}
}

func rotateY(v Vec3, deg float64) Vec3 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Vec3{v.X*c + v.Z*s, v.Y, -v.X*s + v.Z*c}
}

func rotateZ(v Vec3, deg float64) Vec3 {
	s, c := math.Sincos(deg * math.Pi / 180)
	return Vec3{v.X*c - v.Y*s, v.X*s + v.Y*c, v.Z}
}

// LocalMatrix returns the object's transform relative to its parent: the
// translation, then rotations about X, Y and Z.
func (o *Object) LocalMatrix() Mat4 {
	pos, rot := o.transform()
	m := TranslationMat4(pos)
	m = m.Mul(RotationMat4(rot.X, UnitX))
	m = m.Mul(RotationMat4(rot.Y, UnitY))
	return m.Mul(RotationMat4(rot.Z, UnitZ))
}

// WorldMatrix composes the local matrices of o and every spatial ancestor.
// Cameras contribute nothing, matching the traversal.
func (o *Object) WorldMatrix() Mat4 {
	m := o.LocalMatrix()
	for h := o.holderContainer(); h != nil; h = h.holderContainer() {
		sp, ok := h.Self().(Spatial)
		if !ok || h.Capabilities().Has(CapCamera) {
			continue
		}
		m = sp.AsObject().LocalMatrix().Mul(m)
	}
	return m
}

// WorldPosition returns the object's origin in the space of its topmost
// ancestor.
func (o *Object) WorldPosition() Vec3 {
	return o.WorldMatrix().TransformPoint(Vec3{})
}

package grove

import "time"

// GravityAcceleration is the default Y acceleration applied by Gravity.
const GravityAcceleration = -4.9

// NewtonianMovement integrates velocity and position from acceleration,
// and the angular equivalents, once per pass.
type NewtonianMovement struct{}

// ApplyTo does nothing.
func (NewtonianMovement) ApplyTo(Newtonian) {}

// ProcessNode advances n by dt: v += a·dt, then p += v·dt.
func (NewtonianMovement) ProcessNode(n Newtonian, dt time.Duration) error {
	s := dt.Seconds()
	n.UpdateMotion(func(m *Motion) {
		m.Velocity = m.Velocity.Add(m.Acceleration.Scale(s))
		m.Position = m.Position.Add(m.Velocity.Scale(s))
		m.AngularVelocity = m.AngularVelocity.Add(m.AngularAcceleration.Scale(s))
		m.Rotation = m.Rotation.Add(m.AngularVelocity.Scale(s))
	})
	return nil
}

// NewNewtonianBehaviour returns a behaviour integrating motion at rate
// passes per second.
func NewNewtonianBehaviour(name string, rate float64) *Behaviour[Newtonian] {
	return NewBehaviour[Newtonian](name, rate, NewtonianMovement{})
}

// Gravity is Newtonian movement that sets a subscriber's Y acceleration
// when it subscribes.
type Gravity struct {
	NewtonianMovement
	Acceleration float64
}

// ApplyTo forces n's Y acceleration to g.Acceleration.
func (g Gravity) ApplyTo(n Newtonian) {
	n.UpdateMotion(func(m *Motion) { m.Acceleration.Y = g.Acceleration })
}

// NewGravity returns a gravity behaviour with GravityAcceleration.
func NewGravity(name string, rate float64) *Behaviour[Newtonian] {
	return NewBehaviour[Newtonian](name, rate, Gravity{Acceleration: GravityAcceleration})
}

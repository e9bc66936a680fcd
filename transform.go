package grove

import (
	"fmt"
	"math"
)

// Mat4 is a 4x4 matrix in column-major order, matching the layout of the
// classic fixed-function matrix stack:
//
//	| m0 m4 m8  m12 |
//	| m1 m5 m9  m13 |
//	| m2 m6 m10 m14 |
//	| m3 m7 m11 m15 |
type Mat4 [16]float64

// Identity4 is the identity matrix.
var Identity4 = Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// Mul returns m * o.
func (m Mat4) Mul(o Mat4) Mat4 {
	var r Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			r[col*4+row] = m[row]*o[col*4] +
				m[4+row]*o[col*4+1] +
				m[8+row]*o[col*4+2] +
				m[12+row]*o[col*4+3]
		}
	}
	return r
}

// TranslationMat4 returns a translation by v.
func TranslationMat4(v Vec3) Mat4 {
	m := Identity4
	m[12], m[13], m[14] = v.X, v.Y, v.Z
	return m
}

// RotationMat4 returns a rotation of deg degrees about axis, counter-clockwise
// when looking down the axis toward the origin.
func RotationMat4(deg float64, axis Vec3) Mat4 {
	a := axis.Normalize()
	if a == (Vec3{}) {
		return Identity4
	}
	s, c := math.Sincos(deg * math.Pi / 180)
	t := 1 - c
	x, y, z := a.X, a.Y, a.Z
	return Mat4{
		t*x*x + c, t*x*y + s*z, t*x*z - s*y, 0,
		t*x*y - s*z, t*y*y + c, t*y*z + s*x, 0,
		t*x*z + s*y, t*y*z - s*x, t*z*z + c, 0,
		0, 0, 0, 1,
	}
}

// TransformPoint applies m to the point p (w = 1).
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	return Vec3{
		m[0]*p.X + m[4]*p.Y + m[8]*p.Z + m[12],
		m[1]*p.X + m[5]*p.Y + m[9]*p.Z + m[13],
		m[2]*p.X + m[6]*p.Y + m[10]*p.Z + m[14],
	}
}

// TransformDir applies the linear part of m to the direction d (w = 0).
func (m Mat4) TransformDir(d Vec3) Vec3 {
	return Vec3{
		m[0]*d.X + m[4]*d.Y + m[8]*d.Z,
		m[1]*d.X + m[5]*d.Y + m[9]*d.Z,
		m[2]*d.X + m[6]*d.Y + m[10]*d.Z,
	}
}

// ApproxEqual reports whether every element differs by less than eps.
func (m Mat4) ApproxEqual(o Mat4, eps float64) bool {
	for i := range m {
		if math.Abs(m[i]-o[i]) >= eps {
			return false
		}
	}
	return true
}

// MatrixStack is a software matrix stack with fixed-function semantics:
// Translate and Rotate post-multiply the current matrix, PushMatrix saves a
// copy and PopMatrix restores it.
type MatrixStack struct {
	cur   Mat4
	saved []Mat4
}

// NewMatrixStack returns a stack holding the identity.
func NewMatrixStack() *MatrixStack {
	return &MatrixStack{cur: Identity4}
}

// LoadIdentity replaces the current matrix with the identity. Saved frames
// are kept.
func (s *MatrixStack) LoadIdentity() { s.cur = Identity4 }

// PushMatrix saves the current matrix.
func (s *MatrixStack) PushMatrix() { s.saved = append(s.saved, s.cur) }

// PopMatrix restores the most recently saved matrix. Popping an empty stack
// is a ConsistencyError.
func (s *MatrixStack) PopMatrix() error {
	if len(s.saved) == 0 {
		return &ConsistencyError{Op: "pop matrix", Detail: "matrix stack underflow"}
	}
	s.cur = s.saved[len(s.saved)-1]
	s.saved = s.saved[:len(s.saved)-1]
	return nil
}

// MatrixDepth returns the number of saved frames.
func (s *MatrixStack) MatrixDepth() int { return len(s.saved) }

// Matrix returns the current matrix.
func (s *MatrixStack) Matrix() Mat4 { return s.cur }

// MultMatrix post-multiplies the current matrix by m.
func (s *MatrixStack) MultMatrix(m Mat4) { s.cur = s.cur.Mul(m) }

// Translate post-multiplies a translation by v.
func (s *MatrixStack) Translate(v Vec3) { s.MultMatrix(TranslationMat4(v)) }

// Rotate post-multiplies a rotation of deg degrees about axis.
func (s *MatrixStack) Rotate(deg float64, axis Vec3) {
	if deg == 0 {
		return
	}
	s.MultMatrix(RotationMat4(deg, axis))
}

// Reset clears saved frames and loads the identity.
func (s *MatrixStack) Reset() {
	s.cur = Identity4
	s.saved = s.saved[:0]
}

func (s *MatrixStack) String() string {
	return fmt.Sprintf("MatrixStack(depth=%d)", len(s.saved))
}

package grove

import (
	"fmt"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// Separator joins node names into ids.
const Separator = "."

// Color represents an RGBA color with components in [0, 1]. Not premultiplied.
// Premultiplication occurs at render submission time.
type Color struct {
	R, G, B, A float64
}

// ColorWhite is the default material color.
var ColorWhite = Color{1, 1, 1, 1}

// ColorBlack is opaque black.
var ColorBlack = Color{0, 0, 0, 1}

// Scale multiplies the RGB components by f, leaving alpha unchanged.
func (c Color) Scale(f float64) Color {
	return Color{c.R * f, c.G * f, c.B * f, c.A}
}

// Add sums the RGB components of c and o, keeping c's alpha.
func (c Color) Add(o Color) Color {
	return Color{c.R + o.R, c.G + o.G, c.B + o.B, c.A}
}

// Mul multiplies c and o component-wise.
func (c Color) Mul(o Color) Color {
	return Color{c.R * o.R, c.G * o.G, c.B * o.B, c.A * o.A}
}

// Clamp limits every component to [0, 1].
func (c Color) Clamp() Color {
	return Color{clamp01(c.R), clamp01(c.G), clamp01(c.B), clamp01(c.A)}
}

// toRGBA converts c to a premultiplied color.RGBA.
func (c Color) toRGBA() color.RGBA {
	return color.RGBA{
		R: uint8(clamp01(c.R*c.A) * 255),
		G: uint8(clamp01(c.G*c.A) * 255),
		B: uint8(clamp01(c.B*c.A) * 255),
		A: uint8(clamp01(c.A) * 255),
	}
}

// Vec2 is a 2D vector, used for texture coordinates and screen positions.
type Vec2 struct {
	X, Y float64
}

// Vec3 is a 3D vector used for positions, Euler rotations (degrees),
// velocities and directions throughout the API.
type Vec3 struct {
	X, Y, Z float64
}

// Axis unit vectors.
var (
	UnitX = Vec3{1, 0, 0}
	UnitY = Vec3{0, 1, 0}
	UnitZ = Vec3{0, 0, 1}
)

// Forward is the direction an unrotated object faces.
var Forward = Vec3{0, 0, -1}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Mul multiplies v and o component-wise.
func (v Vec3) Mul(o Vec3) Vec3 { return Vec3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }

// Neg returns -v.
func (v Vec3) Neg() Vec3 { return Vec3{-v.X, -v.Y, -v.Z} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Length returns the Euclidean length of v.
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Normalize returns v scaled to unit length, or the zero vector if v is zero.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l < 1e-12 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// ApproxEqual reports whether every component of v and o differs by less than eps.
func (v Vec3) ApproxEqual(o Vec3, eps float64) bool {
	return math.Abs(v.X-o.X) < eps && math.Abs(v.Y-o.Y) < eps && math.Abs(v.Z-o.Z) < eps
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// WhitePixel is a 1x1 white image used as the source for untextured triangles.
var WhitePixel *ebiten.Image

func init() {
	WhitePixel = ebiten.NewImage(1, 1)
	WhitePixel.Fill(ColorWhite.toRGBA())
}

// Capability is a bit set of the roles a node can play during traversal,
// independent of its concrete type.
type Capability uint16

const (
	CapRenderable   Capability = 1 << iota // implements Renderable
	CapContainer                           // owns a child collection
	CapPositionable                        // has a position applied as a translation
	CapRotatable                           // has an Euler rotation applied per axis
	CapNewtonian                           // carries velocity and acceleration
	CapCamera                              // is a viewpoint; never rendered as content
	CapScene                               // is a scene; never rendered as content
	CapLight                               // consumes a light slot when rendered

	capResolved Capability = 1 << 15
)

// Has reports whether every bit of o is set in c.
func (c Capability) Has(o Capability) bool { return c&o == o }

// EventKind identifies a collection change notification.
type EventKind uint8

const (
	EventAdded    EventKind = iota // fires after a node was inserted
	EventRemoved                   // fires after a node was removed
	EventRenaming                  // fires after a node was re-keyed under a new name
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventRenaming:
		return "renaming"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

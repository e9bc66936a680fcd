package grove

import (
	"testing"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/stretchr/testify/assert"
)

func TestProjectionCenter(t *testing.T) {
	p := DefaultProjection()
	x, y, ok := p.Project(Vec3{0, 0, -10}, 800, 600)
	assert.True(t, ok)
	assert.InDelta(t, 400, x, epsilon)
	assert.InDelta(t, 300, y, epsilon)
}

func TestProjectionAxes(t *testing.T) {
	p := Projection{FovY: 90, Near: 0.1, Far: 100}
	// With a 90 degree field of view, y == depth lands on the top edge.
	x, y, ok := p.Project(Vec3{0, 5, -5}, 100, 100)
	assert.True(t, ok)
	assert.InDelta(t, 50, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	x, _, ok = p.Project(Vec3{5, 0, -5}, 200, 100)
	assert.True(t, ok)
	assert.InDelta(t, 150, x, 1e-6, "x is scaled by the aspect ratio")
}

func TestProjectionClipping(t *testing.T) {
	p := DefaultProjection()
	_, _, ok := p.Project(Vec3{0, 0, 1}, 100, 100)
	assert.False(t, ok, "behind the camera")
	_, _, ok = p.Project(Vec3{0, 0, -0.01}, 100, 100)
	assert.False(t, ok, "before the near plane")
	_, _, ok = p.Project(Vec3{0, 0, -2000}, 100, 100)
	assert.False(t, ok, "beyond the far plane")
}

func TestSubmitCullsAndClips(t *testing.T) {
	b := NewCommandBuffer()
	// Behind the camera.
	b.DrawTriangles([]Triangle{triAt(5)}, DrawOptions{})
	// In front, but wound clockwise as seen from the camera.
	back := triAt(-5)
	back[1], back[2] = back[2], back[1]
	b.DrawTriangles([]Triangle{back}, DrawOptions{})

	target := ebiten.NewImage(32, 32)
	stats := b.Submit(target, DefaultProjection(), nil)
	assert.Equal(t, SubmitStats{Clipped: 1, Culled: 1}, stats)
}

func TestSubmitEmpty(t *testing.T) {
	stats := NewCommandBuffer().Submit(ebiten.NewImage(4, 4), DefaultProjection(), nil)
	assert.Zero(t, stats)
}

func TestShadeUnlit(t *testing.T) {
	m := NewColorMaterial(Color{0.5, 0.25, 1, 1})
	m.Emissive = Color{0.1, 0.1, 0.1, 0}
	c := shade(m, nil, Vec3{}, UnitZ)
	assert.InDelta(t, 0.6, c.R, epsilon)
	assert.InDelta(t, 0.35, c.G, epsilon)
	assert.Equal(t, 1.0, c.A)
}

func TestShadeLambert(t *testing.T) {
	m := &Material{Ambient: ColorBlack, Diffuse: ColorWhite}
	light := LightState{
		Position:            Vec3{0, 0, 2},
		Ambient:             ColorBlack,
		Diffuse:             ColorWhite,
		ConstantAttenuation: 1,
		SpotCutoff:          180,
	}

	facing := shade(m, []LightState{light}, Vec3{}, UnitZ)
	assert.InDelta(t, 1.0, facing.R, epsilon)

	away := shade(m, []LightState{light}, Vec3{}, UnitZ.Neg())
	assert.Zero(t, away.R)

	light.LinearAttenuation = 0.5
	dimmed := shade(m, []LightState{light}, Vec3{}, UnitZ)
	assert.InDelta(t, 0.5, dimmed.R, epsilon)
}

func TestShadeSpotCone(t *testing.T) {
	m := &Material{Ambient: ColorBlack, Diffuse: ColorWhite}
	spot := LightState{
		Position:            Vec3{0, 0, 2},
		Direction:           UnitZ.Neg(),
		Diffuse:             ColorWhite,
		ConstantAttenuation: 1,
		SpotCutoff:          10,
	}
	inside := shade(m, []LightState{spot}, Vec3{}, UnitZ)
	assert.InDelta(t, 1.0, inside.R, epsilon)

	outside := shade(m, []LightState{spot}, Vec3{5, 0, 0}, UnitZ)
	assert.Zero(t, outside.R)
}

package grove

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticleGeneratorEmits(t *testing.T) {
	gravity := NewGravity("gravity", 0)
	template := NewBox("spark", Vec3{0.1, 0.1, 0.1})
	gen := NewParticleGenerator(template, gravity)
	gen.Seed(42)

	emitter := NewObject("emitter")
	b := NewParticleBehaviour("fountain", 0, gen)
	b.Subscribe(emitter)

	_, err := b.Process(epoch)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := b.Process(epoch.Add(time.Duration(i) * time.Second))
		require.NoError(t, err)
	}

	particles := ChildrenOf[*RenderableProxy](emitter)
	require.Len(t, particles, 3)
	for _, p := range particles {
		assert.True(t, strings.HasPrefix(p.Name(), "Particle"))
		assert.Len(t, p.Name(), len("Particle")+8)
		assert.Same(t, template, p.Target())
		assert.True(t, gravity.IsSubscribed(p))
		assert.Equal(t, GravityAcceleration, p.Motion().Acceleration.Y)

		v := p.Motion().Velocity
		assert.InDelta(t, DefaultParticleVelocity.X, v.X, DefaultParticleSpread.X)
		assert.InDelta(t, DefaultParticleVelocity.Y, v.Y, DefaultParticleSpread.Y)
		assert.InDelta(t, DefaultParticleVelocity.Z, v.Z, DefaultParticleSpread.Z)
	}
}

func TestParticleGeneratorSeedIsDeterministic(t *testing.T) {
	a := NewParticleGenerator(nil, nil)
	b := NewParticleGenerator(nil, nil)
	a.Seed(7)
	b.Seed(7)
	for range 5 {
		assert.Equal(t, a.launchVelocity(), b.launchVelocity())
	}
}

func TestParticleGeneratorWithoutGravity(t *testing.T) {
	gen := NewParticleGenerator(nil, nil)
	gen.Spread = Vec3{}
	emitter := NewContainer("e")
	require.NoError(t, gen.ProcessNode(emitter, time.Second))

	ps := ChildrenOf[*RenderableProxy](emitter)
	require.Len(t, ps, 1)
	assertVec(t, DefaultParticleVelocity, ps[0].Motion().Velocity)
	assert.Zero(t, ps[0].Motion().Acceleration)
}

func TestRenderableProxyDrawsTarget(t *testing.T) {
	s := NewScene("s")
	mesh := NewQuad("shared", 1, 1)
	for _, x := range []float64{-2, 2} {
		p := NewRenderableProxy("", mesh)
		p.SetPosition(Vec3{x, 0, -5})
		require.NoError(t, s.Add(p))
	}

	r, args, err := renderScene(t, s)
	require.NoError(t, err)
	require.Len(t, r.draws, 2)
	assert.Equal(t, 4, args.Triangles())
	assertVec(t, Vec3{-2, 0, -5}, r.draws[0].TransformPoint(Vec3{}))
	assertVec(t, Vec3{2, 0, -5}, r.draws[1].TransformPoint(Vec3{}))
	assert.False(t, mesh.IsAttached(), "the shared mesh is not part of the scene")
}

func TestRenderableProxyNilTarget(t *testing.T) {
	p := NewRenderableProxy("p", nil)
	assert.NoError(t, p.Render(&RenderArgs{}))
}

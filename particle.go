package grove

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default particle launch parameters.
var (
	DefaultParticleVelocity = Vec3{0, 12, 0}
	DefaultParticleSpread   = Vec3{2.5, 4.2, 2.5}
)

// RenderableProxy is an Object that draws a shared Renderable with its own
// transform. Many proxies can share one mesh.
type RenderableProxy struct {
	Object
	target Renderable
}

// NewRenderableProxy creates a proxy drawing target.
func NewRenderableProxy(name string, target Renderable) *RenderableProxy {
	p := &RenderableProxy{target: target}
	p.init(p, name)
	return p
}

// Target returns the proxied renderable.
func (p *RenderableProxy) Target() Renderable { return p.target }

// Render draws the target with the proxy's transform.
func (p *RenderableProxy) Render(args *RenderArgs) error {
	if p.target == nil {
		return nil
	}
	return p.target.Render(args)
}

// ParticleGenerator emits one particle per subscribed emitter per pass.
// A particle is a RenderableProxy of Template added as a child of the
// emitter, launched at Velocity plus a per-axis uniform jitter of up to
// ±Spread, and subscribed to Gravity when set.
//
// Particles are never removed; a long-running emitter grows its subtree
// without bound. Callers prune emitters themselves.
type ParticleGenerator struct {
	Template Renderable
	Velocity Vec3
	Spread   Vec3
	Gravity  Subscriber[Newtonian]

	mu  sync.Mutex
	rng *rand.Rand
}

// NewParticleGenerator returns a generator with the default launch
// parameters.
func NewParticleGenerator(template Renderable, gravity Subscriber[Newtonian]) *ParticleGenerator {
	return &ParticleGenerator{
		Template: template,
		Velocity: DefaultParticleVelocity,
		Spread:   DefaultParticleSpread,
		Gravity:  gravity,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Seed makes the jitter sequence deterministic.
func (g *ParticleGenerator) Seed(seed uint64) {
	g.mu.Lock()
	g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	g.mu.Unlock()
}

// ApplyTo does nothing.
func (g *ParticleGenerator) ApplyTo(ContainerNode) {}

// ProcessNode emits one particle from emitter.
func (g *ParticleGenerator) ProcessNode(emitter ContainerNode, _ time.Duration) error {
	p := NewRenderableProxy(particleName(), g.Template)
	v := g.launchVelocity()
	p.UpdateMotion(func(m *Motion) { m.Velocity = v })
	if err := emitter.AsContainer().Add(p); err != nil {
		return fmt.Errorf("emit particle: %w", err)
	}
	if g.Gravity != nil {
		g.Gravity.Subscribe(p)
	}
	metricParticles.Inc()
	return nil
}

func (g *ParticleGenerator) launchVelocity() Vec3 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	jitter := func() float64 { return g.rng.Float64()*2 - 1 }
	return Vec3{
		g.Velocity.X + g.Spread.X*jitter(),
		g.Velocity.Y + g.Spread.Y*jitter(),
		g.Velocity.Z + g.Spread.Z*jitter(),
	}
}

func particleName() string {
	return "Particle" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewParticleBehaviour returns a behaviour running gen at rate passes per
// second over emitter containers.
func NewParticleBehaviour(name string, rate float64, gen *ParticleGenerator) *Behaviour[ContainerNode] {
	return NewBehaviour[ContainerNode](name, rate, gen)
}

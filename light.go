package grove

import "sync"

// Default light parameters.
var (
	DefaultLightAmbient  = Color{0.1, 0.1, 0.1, 1}
	DefaultLightDiffuse  = Color{0.4, 0.4, 0.4, 1}
	DefaultLightSpecular = Color{0.8, 0.8, 0.8, 1}
)

// Light is a positioned, rotated light source. Rendering it takes the next
// light slot of the frame; once every slot is taken further lights are
// skipped without error.
type Light struct {
	Object

	mu    sync.RWMutex
	state LightState
}

// NewLight creates a point light with the default parameters, shining along
// its orientation.
func NewLight(name string) *Light {
	l := &Light{
		state: LightState{
			Direction:           Forward,
			Ambient:             DefaultLightAmbient,
			Diffuse:             DefaultLightDiffuse,
			Specular:            DefaultLightSpecular,
			ConstantAttenuation: 1,
			SpotCutoff:          180,
		},
	}
	l.init(l, name)
	return l
}

// AsLight returns l.
func (l *Light) AsLight() *Light { return l }

// State returns the light parameters in local space.
func (l *Light) State() LightState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// SetState replaces the light parameters.
func (l *Light) SetState(s LightState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// SetColors sets the ambient, diffuse and specular colors.
func (l *Light) SetColors(ambient, diffuse, specular Color) {
	l.mu.Lock()
	l.state.Ambient, l.state.Diffuse, l.state.Specular = ambient, diffuse, specular
	l.mu.Unlock()
}

// SetAttenuation sets the constant, linear and quadratic attenuation factors.
func (l *Light) SetAttenuation(constant, linear, quadratic float64) {
	l.mu.Lock()
	l.state.ConstantAttenuation = constant
	l.state.LinearAttenuation = linear
	l.state.QuadraticAttenuation = quadratic
	l.mu.Unlock()
}

// SetSpot turns the light into a spot light with the given cutoff angle in
// degrees. A cutoff of 180 makes it a point light again.
func (l *Light) SetSpot(cutoff, exponent float64) {
	l.mu.Lock()
	l.state.SpotCutoff = cutoff
	l.state.SpotExponent = exponent
	l.mu.Unlock()
}

// Render hands the light to the renderer in the next free slot.
func (l *Light) Render(args *RenderArgs) error {
	slot, ok := args.NextLightSlot()
	if !ok {
		if args.Debug {
			args.logger().Debug("light slots exhausted, light skipped", "light", l.ID(), "max", args.MaxLights)
		}
		return nil
	}
	args.Renderer.SetLight(slot, l.State())
	return nil
}

package grove

import (
	"log/slog"
)

// Vertex is a mesh vertex in the local space of its node.
type Vertex struct {
	Pos    Vec3
	Normal Vec3
	UV     Vec2
}

// Triangle is three vertices in counter-clockwise front-facing order.
type Triangle [3]Vertex

// DrawOptions describes how a DrawTriangles call is shaded.
type DrawOptions struct {
	Material *Material
	TwoSided bool
}

// LightState is the state a light hands to the renderer. Position and
// Direction are in the light's local space; the renderer transforms them by
// its current matrix, as fixed-function lights do.
type LightState struct {
	Position             Vec3
	Direction            Vec3
	Ambient              Color
	Diffuse              Color
	Specular             Color
	ConstantAttenuation  float64
	LinearAttenuation    float64
	QuadraticAttenuation float64
	SpotCutoff           float64 // degrees; 180 disables the spot cone
	SpotExponent         float64
}

// Renderer is an immediate-mode target with a fixed-function matrix stack.
// A traversal drives it from a single goroutine.
type Renderer interface {
	LoadIdentity()
	PushMatrix()
	PopMatrix() error
	MatrixDepth() int
	Matrix() Mat4
	Translate(v Vec3)
	Rotate(deg float64, axis Vec3)
	DrawTriangles(tris []Triangle, opts DrawOptions)
	SetLight(slot int, l LightState)
}

// RenderArgs is the per-frame state handed to every Renderable.
type RenderArgs struct {
	Renderer Renderer
	Scene    *Scene
	Camera   *Camera
	Width    int
	Height   int
	Log      *slog.Logger
	Debug    bool

	// MaxLights bounds the light slots handed out per frame.
	MaxLights int
	Frame     uint64

	lightSlot int
	triangles int
}

// NextLightSlot returns the next free light slot. Once MaxLights slots have
// been handed out it returns false and the caller renders nothing.
func (a *RenderArgs) NextLightSlot() (int, bool) {
	if a.lightSlot >= a.MaxLights {
		return 0, false
	}
	slot := a.lightSlot
	a.lightSlot++
	return slot, true
}

// LightsUsed returns the number of light slots handed out this frame.
func (a *RenderArgs) LightsUsed() int { return a.lightSlot }

// Triangles returns the triangles drawn this frame.
func (a *RenderArgs) Triangles() int { return a.triangles }

// DrawTriangles forwards to the renderer and counts the triangles.
func (a *RenderArgs) DrawTriangles(tris []Triangle, opts DrawOptions) {
	if len(tris) == 0 {
		return
	}
	a.triangles += len(tris)
	metricTriangles.Add(float64(len(tris)))
	a.Renderer.DrawTriangles(tris, opts)
}

// beginFrame resets the per-frame counters.
func (a *RenderArgs) beginFrame() {
	a.lightSlot = 0
	a.triangles = 0
}

func (a *RenderArgs) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}

// --- Command buffer ---

// DrawCommand is one triangle recorded in view space.
type DrawCommand struct {
	Tri      Triangle
	Material *Material
	TwoSided bool

	depth float64
	order int
}

// Depth returns the mean view-space z of the triangle.
func (c DrawCommand) Depth() float64 { return c.depth }

// CommandBuffer is a Renderer that records view-space triangles and lights
// for later submission.
type CommandBuffer struct {
	MatrixStack

	commands []DrawCommand
	sortBuf  []DrawCommand
	lights   map[int]LightState
	order    int
}

// NewCommandBuffer returns an empty buffer holding the identity matrix.
func NewCommandBuffer() *CommandBuffer {
	return &CommandBuffer{
		MatrixStack: MatrixStack{cur: Identity4},
		lights:      make(map[int]LightState),
	}
}

// DrawTriangles records tris transformed by the current matrix.
func (b *CommandBuffer) DrawTriangles(tris []Triangle, opts DrawOptions) {
	m := b.Matrix()
	for _, t := range tris {
		var vt Triangle
		for i, v := range t {
			vt[i] = Vertex{
				Pos:    m.TransformPoint(v.Pos),
				Normal: m.TransformDir(v.Normal).Normalize(),
				UV:     v.UV,
			}
		}
		b.commands = append(b.commands, DrawCommand{
			Tri:      vt,
			Material: opts.Material,
			TwoSided: opts.TwoSided,
			depth:    (vt[0].Pos.Z + vt[1].Pos.Z + vt[2].Pos.Z) / 3,
			order:    b.order,
		})
		b.order++
	}
}

// SetLight records l with its position and direction in view space.
func (b *CommandBuffer) SetLight(slot int, l LightState) {
	m := b.Matrix()
	l.Position = m.TransformPoint(l.Position)
	l.Direction = m.TransformDir(l.Direction).Normalize()
	b.lights[slot] = l
}

// Commands returns the recorded triangles. The slice is owned by the buffer.
func (b *CommandBuffer) Commands() []DrawCommand { return b.commands }

// Lights returns the recorded lights ordered by slot.
func (b *CommandBuffer) Lights() []LightState {
	out := make([]LightState, 0, len(b.lights))
	for slot := 0; len(out) < len(b.lights); slot++ {
		if l, ok := b.lights[slot]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Reset discards recorded commands and lights and resets the matrix stack.
func (b *CommandBuffer) Reset() {
	b.MatrixStack.Reset()
	b.commands = b.commands[:0]
	clear(b.lights)
	b.order = 0
}

// --- Merge sort ---

// commandLessOrEqual orders far triangles first. Equal depths keep
// submission order.
func commandLessOrEqual(a, b DrawCommand) bool {
	if a.depth != b.depth {
		return a.depth < b.depth
	}
	return a.order <= b.order
}

// sortByDepth sorts b.commands in-place using b.sortBuf as scratch space.
// Bottom-up merge sort: zero allocations after the sort buffer reaches its
// high-water mark.
func (b *CommandBuffer) sortByDepth() {
	n := len(b.commands)
	if n <= 1 {
		return
	}
	if cap(b.sortBuf) < n {
		b.sortBuf = make([]DrawCommand, n)
	}
	b.sortBuf = b.sortBuf[:n]

	src := b.commands
	dst := b.sortBuf
	swapped := false

	for width := 1; width < n; width *= 2 {
		for i := 0; i < n; i += 2 * width {
			lo := i
			mid := min(lo+width, n)
			hi := min(lo+2*width, n)
			mergeRun(src, dst, lo, mid, hi)
		}
		src, dst = dst, src
		swapped = !swapped
	}

	if swapped {
		copy(b.commands, b.sortBuf)
	}
}

// mergeRun merges two sorted runs [lo, mid) and [mid, hi) from src into dst.
func mergeRun(src, dst []DrawCommand, lo, mid, hi int) {
	i, j, k := lo, mid, lo
	for i < mid && j < hi {
		if commandLessOrEqual(src[i], src[j]) {
			dst[k] = src[i]
			i++
		} else {
			dst[k] = src[j]
			j++
		}
		k++
	}
	for i < mid {
		dst[k] = src[i]
		i++
		k++
	}
	for j < hi {
		dst[k] = src[j]
		j++
		k++
	}
}

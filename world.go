package grove

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// World owns a hierarchy and everything that drives it: the processors
// ticked by Update, the resource loader and frame statistics. Independent
// worlds share nothing.
type World struct {
	opts   Options
	root   *Root
	log    *slog.Logger
	loader *ResourceLoader
	stats  FrameStats

	mu    sync.RWMutex
	procs []Processor

	drawMu sync.Mutex
	buf    *CommandBuffer
	frame  uint64

	shots screenshotQueue
}

// NewWorld creates a world configured by opts. Zero fields take their
// defaults. The resource loader starts immediately.
func NewWorld(opts Options) (*World, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.FS == nil {
		opts.FS = os.DirFS(".")
	}
	w := &World{
		opts: opts,
		root: NewRoot(opts),
		buf:  NewCommandBuffer(),
	}
	w.log = w.root.Logger()
	w.loader = NewResourceLoader(opts.FS, opts.SearchPaths, w.log)
	w.loader.Start(context.Background())
	return w, nil
}

// Root returns the top of the hierarchy.
func (w *World) Root() *Root { return w.root }

// Options returns the effective options.
func (w *World) Options() Options { return w.opts }

// Logger returns the world's logger.
func (w *World) Logger() *slog.Logger { return w.log }

// Loader returns the resource loader.
func (w *World) Loader() *ResourceLoader { return w.loader }

// Stats returns the frame counters.
func (w *World) Stats() FrameSnapshot { return w.stats.Snapshot() }

// SetEventSink routes every collection event of the hierarchy to sink.
func (w *World) SetEventSink(sink EventSink) { w.root.SetEventSink(sink) }

// AddScene adds s under the root.
func (w *World) AddScene(s *Scene) error { return w.root.Add(s) }

// Scene returns the scene directly under the root called name.
func (w *World) Scene(name string) (*Scene, bool) {
	n, ok := w.root.Child(name)
	if !ok {
		return nil, false
	}
	s, ok := n.(*Scene)
	return s, ok
}

// --- Processors ---

// AddProcessor registers p to run on every Update. Behaviours added here
// log through the world's logger.
func (w *World) AddProcessor(p Processor) {
	if l, ok := p.(interface{ SetLogger(*slog.Logger) }); ok {
		l.SetLogger(w.log)
	}
	w.mu.Lock()
	w.procs = append(w.procs, p)
	w.mu.Unlock()
}

// RemoveProcessor unregisters the processor called name.
func (w *World) RemoveProcessor(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := slices.IndexFunc(w.procs, func(p Processor) bool { return p.Name() == name })
	if i < 0 {
		return false
	}
	w.procs = slices.Delete(w.procs, i, i+1)
	return true
}

// Processors returns the registered processors.
func (w *World) Processors() []Processor {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.procs)
}

// Update gives every processor one chance to run at now. Processors run
// concurrently with each other; each is serialized with itself. All
// processors run even if one fails; the first error is returned.
func (w *World) Update(ctx context.Context, now time.Time) error {
	g, _ := errgroup.WithContext(ctx)
	for _, p := range w.Processors() {
		g.Go(func() error {
			if _, err := p.Process(now); err != nil {
				w.log.Warn("processor failed", "processor", p.Name(), "err", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Run ticks Update tps times per second until ctx is done, calling frame
// after each tick when it is not nil. It returns nil on cancellation and
// the first error from Update or frame otherwise.
func (w *World) Run(ctx context.Context, tps float64, frame func(now time.Time) error) error {
	if tps <= 0 {
		tps = w.opts.TickRate
	}
	lim := rate.NewLimiter(rate.Limit(tps), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		now := time.Now()
		if err := w.Update(ctx, now); err != nil {
			return err
		}
		if frame != nil {
			if err := frame(now); err != nil {
				return err
			}
		}
	}
}

// --- Rendering ---

// RenderFrame renders scene through its default camera into r for a w by h
// target and records frame statistics.
func (w *World) RenderFrame(scene *Scene, r Renderer, width, height int) (*RenderArgs, error) {
	w.drawMu.Lock()
	w.frame++
	frame := w.frame
	w.drawMu.Unlock()

	args := &RenderArgs{
		Renderer:  r,
		Width:     width,
		Height:    height,
		Log:       w.log,
		Debug:     w.opts.Debug,
		MaxLights: w.opts.MaxLights,
		Frame:     frame,
	}
	args.beginFrame()
	start := time.Now()
	if err := scene.Render(args); err != nil {
		return args, err
	}
	w.stats.record(time.Now(), args.Triangles(), args.LightsUsed(), time.Since(start))
	return args, nil
}

// Draw renders scene and submits it to target with the scene's projection.
func (w *World) Draw(scene *Scene, target *ebiten.Image) (SubmitStats, error) {
	w.drawMu.Lock()
	defer w.drawMu.Unlock()

	var stats debugStats
	t0 := time.Now()

	b := target.Bounds()
	w.buf.Reset()
	args := &RenderArgs{
		Renderer:  w.buf,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Log:       w.log,
		Debug:     w.opts.Debug,
		MaxLights: w.opts.MaxLights,
	}
	w.frame++
	args.Frame = w.frame
	args.beginFrame()
	if err := scene.Render(args); err != nil {
		return SubmitStats{}, fmt.Errorf("grove: draw %s: %w", scene.ID(), err)
	}
	stats.traverseTime = time.Since(t0)

	if scene.Background.A > 0 {
		target.Fill(scene.Background.toRGBA())
	}
	t1 := time.Now()
	sub := w.buf.Submit(target, scene.Projection, w.log)
	stats.submitTime = time.Since(t1)

	w.stats.record(time.Now(), args.Triangles(), args.LightsUsed(), time.Since(t0))
	if w.opts.Debug {
		stats.commandCount = len(w.buf.Commands())
		stats.triangles = sub.Triangles
		stats.batchCount = sub.Batches
		stats.lights = args.LightsUsed()
		debugLog(w.log, stats)
	}
	return sub, nil
}

// --- Resources ---

// Texture returns the texture called name under the root, creating it and
// queueing it for loading from path when absent. An empty name is
// generated from the file name.
func (w *World) Texture(name, path string) (*Texture, error) {
	if name != "" {
		if n, ok := w.root.Child(name); ok {
			if t, ok := n.(*Texture); ok {
				return t, nil
			}
			return nil, &DuplicateNameError{Name: name}
		}
	}
	t := NewTexture(name, path)
	if err := w.root.Add(t); err != nil {
		var dup *DuplicateNameError
		if errors.As(err, &dup) && name != "" {
			return w.Texture(name, path)
		}
		return nil, err
	}
	w.loader.Enqueue(t)
	return t, nil
}

// LoadScene decodes a scene document, adds its nodes under the root and
// queues their resources.
func (w *World) LoadScene(r io.Reader) ([]Node, error) {
	nodes, err := DecodeNodes(r)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if err := w.root.Add(n); err != nil {
			return nil, err
		}
		if err := w.ResolveResources(n); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// ResolveResources queues every unloaded mesh at or below n and replaces
// detached material textures with the world's shared texture for the same
// path.
func (w *World) ResolveResources(n Node) error {
	nodes := []Node{n}
	if cn, ok := n.(ContainerNode); ok {
		nodes = append(nodes, cn.AsContainer().Descendants()...)
	}
	for _, n := range nodes {
		m, ok := n.(*Mesh)
		if !ok {
			continue
		}
		if !m.Loaded() && m.Path() != "" {
			w.loader.Enqueue(m)
		}
		mat := m.Material()
		if mat == nil || mat.Texture == nil || mat.Texture.IsAttached() {
			continue
		}
		t, err := w.Texture(textureName(mat.Texture.Path()), mat.Texture.Path())
		if err != nil {
			return err
		}
		m.SetMaterial(&Material{
			Ambient:   mat.Ambient,
			Diffuse:   mat.Diffuse,
			Specular:  mat.Specular,
			Emissive:  mat.Emissive,
			Shininess: mat.Shininess,
			Texture:   t,
		})
	}
	return nil
}

// textureName derives a node name from a texture path.
func textureName(p string) string {
	return textureNameReplacer.Replace(filepath.ToSlash(p))
}

var textureNameReplacer = strings.NewReplacer("/", "_", Separator, "_")

// Load queues r on the resource loader.
func (w *World) Load(r Resource) { w.loader.Enqueue(r) }

// Close stops the resource loader.
func (w *World) Close() error {
	w.loader.Close()
	return nil
}

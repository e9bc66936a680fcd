package grove

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decoders for Texture.Load
	_ "image/png"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
)

// Resource is a node whose content is read from a file by a ResourceLoader.
// Until Loaded reports true it renders as if it had no content.
type Resource interface {
	Node
	Kind() string
	Path() string
	Load(r io.Reader) error
	Loaded() bool
}

// Texture is an image resource sampled by materials.
type Texture struct {
	NodeBase

	path   string
	img    atomic.Pointer[ebiten.Image]
	loaded atomic.Bool
}

// NewTexture creates an unloaded texture for the image at path.
func NewTexture(name, path string) *Texture {
	t := &Texture{path: path}
	t.init(t, name)
	return t
}

// NewTextureFromImage creates a texture that is already loaded.
func NewTextureFromImage(name string, img *ebiten.Image) *Texture {
	t := &Texture{}
	t.init(t, name)
	t.img.Store(img)
	t.loaded.Store(true)
	return t
}

// BaseName names generated textures after their file.
func (t *Texture) BaseName() string {
	base := filepath.Base(t.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Kind returns "texture".
func (t *Texture) Kind() string { return "texture" }

// Path returns the path the texture is loaded from.
func (t *Texture) Path() string { return t.path }

// Loaded reports whether the image is available.
func (t *Texture) Loaded() bool { return t.loaded.Load() }

// Image returns the image, or nil until loaded.
func (t *Texture) Image() *ebiten.Image { return t.img.Load() }

// Load decodes a PNG or JPEG image from r.
func (t *Texture) Load(r io.Reader) error {
	src, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("grove: decode texture %s: %w", t.path, err)
	}
	t.img.Store(ebiten.NewImageFromImage(src))
	t.loaded.Store(true)
	return nil
}

// --- Loader ---

// ResourceLoader loads resources on a background goroutine. Each resource
// is opened from the first of its kind's search paths that holds it.
// Failures are logged and leave the resource unloaded.
type ResourceLoader struct {
	fsys   fs.FS
	search map[string][]string
	log    *slog.Logger

	mu      sync.Mutex
	queue   []Resource
	notify  chan struct{}
	pending sync.WaitGroup

	startOnce sync.Once
	started   atomic.Bool
	closed    atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewResourceLoader creates a loader reading from fsys. search maps a
// resource kind to directories tried in order after the path itself.
func NewResourceLoader(fsys fs.FS, search map[string][]string, log *slog.Logger) *ResourceLoader {
	if log == nil {
		log = slog.Default()
	}
	return &ResourceLoader{
		fsys:   fsys,
		search: search,
		log:    log.With("component", "resource-loader"),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start runs the loading goroutine until ctx is done or Close is called.
func (l *ResourceLoader) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		ctx, l.cancel = context.WithCancel(ctx)
		l.started.Store(true)
		go l.run(ctx)
	})
}

// Enqueue schedules r for loading. Loaded resources are skipped, and so is
// everything once the loader is closed.
func (l *ResourceLoader) Enqueue(r Resource) {
	if r.Loaded() || r.Path() == "" {
		return
	}
	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		l.log.Debug("resource dropped, loader closed", "kind", r.Kind(), "path", r.Path())
		return
	}
	l.pending.Add(1)
	l.queue = append(l.queue, r)
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Wait blocks until every enqueued resource has been attempted or ctx is
// done.
func (l *ResourceLoader) Wait(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		l.pending.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loading goroutine. Queued resources stay unloaded.
func (l *ResourceLoader) Close() {
	l.mu.Lock()
	l.closed.Store(true)
	l.mu.Unlock()
	l.startOnce.Do(func() {})
	if !l.started.Load() {
		l.drop()
		return
	}
	l.cancel()
	<-l.done
}

func (l *ResourceLoader) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.drop()
			return
		case <-l.notify:
		}
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			r := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			l.load(r)
			l.pending.Done()
		}
	}
}

// drop releases waiters for resources that will never be attempted.
func (l *ResourceLoader) drop() {
	l.mu.Lock()
	n := len(l.queue)
	l.queue = nil
	l.mu.Unlock()
	for range n {
		l.pending.Done()
	}
}

// Load opens and loads r on the calling goroutine.
func (l *ResourceLoader) Load(r Resource) error {
	f, name, err := l.open(r.Kind(), r.Path())
	if err != nil {
		metricResourceLoads.WithLabelValues(r.Kind(), "missing").Inc()
		return err
	}
	defer f.Close()
	if err := r.Load(f); err != nil {
		metricResourceLoads.WithLabelValues(r.Kind(), "error").Inc()
		return err
	}
	metricResourceLoads.WithLabelValues(r.Kind(), "ok").Inc()
	l.log.Debug("resource loaded", "kind", r.Kind(), "id", r.AsNode().ID(), "file", name)
	if m, ok := r.(*Mesh); ok {
		l.loadMaterials(m, name)
	}
	return nil
}

// loadMaterials reads the mtllib files of m from beside objFile, binds
// them to its groups and queues their textures. A missing or malformed
// library is logged and leaves its groups on the mesh material.
func (l *ResourceLoader) loadMaterials(m *Mesh, objFile string) {
	dir := path.Dir(objFile)
	queued := make(map[*Texture]bool)
	for _, lib := range m.MaterialLibraries() {
		mats, err := l.loadMTL(path.Join(dir, filepath.ToSlash(lib)))
		if err != nil {
			l.log.Warn("material library failed", "mesh", m.ID(), "library", lib, "err", err)
			continue
		}
		m.ApplyMaterials(mats)
		for _, mat := range mats {
			if t := mat.Texture; t != nil && !queued[t] {
				queued[t] = true
				l.Enqueue(t)
			}
		}
	}
}

func (l *ResourceLoader) loadMTL(p string) (map[string]*Material, error) {
	f, name, err := l.open("material", p)
	if err != nil {
		metricResourceLoads.WithLabelValues("material", "missing").Inc()
		return nil, err
	}
	defer f.Close()
	mats, err := parseMTL(f, path.Dir(name))
	if err != nil {
		metricResourceLoads.WithLabelValues("material", "error").Inc()
		return nil, err
	}
	metricResourceLoads.WithLabelValues("material", "ok").Inc()
	return mats, nil
}

func (l *ResourceLoader) load(r Resource) {
	if err := l.Load(r); err != nil {
		l.log.Warn("resource load failed", "kind", r.Kind(), "id", r.AsNode().ID(), "path", r.Path(), "err", err)
	}
}

// open tries p itself, then p under each search directory for kind.
func (l *ResourceLoader) open(kind, p string) (fs.File, string, error) {
	p = filepath.ToSlash(p)
	candidates := []string{p}
	for _, dir := range l.search[kind] {
		candidates = append(candidates, path.Join(filepath.ToSlash(dir), p))
	}
	var errs []error
	for _, c := range candidates {
		c = strings.TrimPrefix(path.Clean(c), "/")
		f, err := l.fsys.Open(c)
		if err == nil {
			return f, c, nil
		}
		errs = append(errs, err)
	}
	return nil, "", fmt.Errorf("grove: %s %q not found: %w", kind, p, errors.Join(errs...))
}

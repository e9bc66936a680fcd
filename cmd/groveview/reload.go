package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phanxgames/grove"
)

// reloadDebounce collapses the burst of events an editor save produces.
const reloadDebounce = 150 * time.Millisecond

// reloader replaces a live scene's contents whenever its file changes.
type reloader struct {
	path    string
	world   *grove.World
	scene   *grove.Scene
	log     *slog.Logger
	watcher *fsnotify.Watcher
}

// newReloader watches the directory holding path. Editors often save by
// renaming a temporary file, which a watch on the file itself would miss.
func newReloader(path string, w *grove.World, scene *grove.Scene) (*reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return &reloader{path: abs, world: w, scene: scene, log: w.Logger(), watcher: watcher}, nil
}

// Run handles file events until ctx is done or the watcher is closed.
func (r *reloader) Run(ctx context.Context) {
	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !r.relevant(ev) {
				continue
			}
			timer.Reset(reloadDebounce)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn("scene watch error", "path", r.path, "err", err)
		case <-timer.C:
			r.reload()
		}
	}
}

func (r *reloader) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != r.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (r *reloader) reload() {
	f, err := os.Open(r.path)
	if err != nil {
		r.log.Warn("scene reload failed", "path", r.path, "err", err)
		return
	}
	defer f.Close()
	if err := reloadScene(r.world, r.scene, f); err != nil {
		r.log.Warn("scene reload failed", "path", r.path, "err", err)
		return
	}
	r.log.Info("scene reloaded", "path", r.path, "children", r.scene.Len())
}

// Close stops watching.
func (r *reloader) Close() error { return r.watcher.Close() }

// reloadScene decodes a scene document and moves the children and camera
// placement of its first scene into target. target keeps its identity so
// renderers and behaviours holding it stay valid. On a decode error target
// is unchanged.
func reloadScene(w *grove.World, target *grove.Scene, src io.Reader) error {
	nodes, err := grove.DecodeNodes(src)
	if err != nil {
		return err
	}
	var next *grove.Scene
	for _, n := range nodes {
		if s, ok := n.(*grove.Scene); ok {
			next = s
			break
		}
	}
	if next == nil {
		return errors.New("no scene node")
	}

	children := next.Clear()
	target.Clear()
	if err := target.Add(children...); err != nil {
		return err
	}
	if cam := next.DefaultCamera(); cam != nil {
		target.DefaultCamera().SetMotion(cam.Motion())
	}
	return w.ResolveResources(target)
}

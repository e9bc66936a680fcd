package grove

import (
	"sync"
	"sync/atomic"
)

// Scene is a container of renderable content with a default camera. The
// camera is held by the scene but is not one of its children. A scene may
// only be traversed by one render at a time.
type Scene struct {
	Container

	// Projection maps the camera's view space to the target when the scene is
	// drawn to an image.
	Projection Projection
	// Background fills the target before drawing. A zero alpha leaves the
	// target untouched.
	Background Color

	camMu         sync.RWMutex
	defaultCamera *Camera

	rendering atomic.Bool
}

// NewScene creates a scene with a default camera named "Camera" at the origin.
func NewScene(name string) *Scene {
	s := &Scene{Projection: DefaultProjection()}
	s.init(s, name)
	s.defaultCamera = NewCamera("Camera")
	return s
}

// AsScene returns s.
func (s *Scene) AsScene() *Scene { return s }

// DefaultCamera returns the camera the scene renders through.
func (s *Scene) DefaultCamera() *Camera {
	s.camMu.RLock()
	defer s.camMu.RUnlock()
	return s.defaultCamera
}

// SetDefaultCamera replaces the camera the scene renders through. The
// camera may also be a node of the scene; it is never drawn.
func (s *Scene) SetDefaultCamera(c *Camera) {
	s.camMu.Lock()
	s.defaultCamera = c
	s.camMu.Unlock()
}

// Rendering reports whether a traversal of the scene is in progress.
func (s *Scene) Rendering() bool { return s.rendering.Load() }

// Render loads the identity and renders the scene through its default
// camera, or through args.Camera when set.
func (s *Scene) Render(args *RenderArgs) error {
	cam := args.Camera
	if cam == nil {
		cam = s.DefaultCamera()
		if cam == nil {
			return &HierarchyError{Op: "render", Node: s.ID(), Reason: "scene has no camera"}
		}
		args.Camera = cam
	}
	args.Scene = s
	args.Renderer.LoadIdentity()
	return cam.Render(args)
}

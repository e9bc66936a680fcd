package grove

import (
	"fmt"
	"sync"
	"time"

	"github.com/tanema/gween/ease"
)

// Camera is the viewpoint a scene is rendered through. It is an Object, so
// it can be positioned, rotated, moved by behaviours and hold children, but
// it never contributes a transform or draws itself during a traversal.
type Camera struct {
	Object

	mu          sync.Mutex
	follow      Spatial
	followOff   Vec3
	followLerp  float64
	scrollTween *TweenGroup
}

// NewCamera creates a camera at the origin looking down -Z.
func NewCamera(name string) *Camera {
	c := &Camera{}
	c.init(c, name)
	return c
}

// AsCamera returns c.
func (c *Camera) AsCamera() *Camera { return c }

// Follow makes the camera track target's world position plus offset. A lerp
// of 1 snaps immediately; lower values give smoother following.
func (c *Camera) Follow(target Spatial, offset Vec3, lerp float64) {
	c.mu.Lock()
	c.follow = target
	c.followOff = offset
	c.followLerp = lerp
	c.mu.Unlock()
}

// Unfollow stops tracking the current target.
func (c *Camera) Unfollow() {
	c.mu.Lock()
	c.follow = nil
	c.mu.Unlock()
}

// ScrollTo animates the camera to pos over duration seconds.
func (c *Camera) ScrollTo(pos Vec3, duration float32, easeFn ease.TweenFunc) {
	t := TweenPosition(c, pos, duration, easeFn)
	c.mu.Lock()
	c.scrollTween = t
	c.mu.Unlock()
}

// Update advances following and scrolling by dt seconds.
func (c *Camera) Update(dt float64) {
	c.mu.Lock()
	target, off, lerp := c.follow, c.followOff, c.followLerp
	tw := c.scrollTween
	c.mu.Unlock()

	if target != nil && target.AsNode().IsAttached() {
		goal := target.AsObject().WorldPosition().Add(off)
		c.UpdateMotion(func(m *Motion) {
			m.Position = m.Position.Add(goal.Sub(m.Position).Scale(lerp))
		})
	}
	if tw != nil {
		tw.Update(float32(dt))
		if tw.Done {
			c.mu.Lock()
			if c.scrollTween == tw {
				c.scrollTween = nil
			}
			c.mu.Unlock()
		}
	}
}

// --- Traversal ---

// Render walks args.Scene from the camera's point of view. The walk is
// iterative: an explicit stack holds nodes still to visit and nil markers
// standing for the PopMatrix owed when a transformed container's subtree is
// finished. The renderer's matrix depth must end where it started.
func (c *Camera) Render(args *RenderArgs) (err error) {
	scene := args.Scene
	if scene == nil {
		return &HierarchyError{Op: "render", Node: c.ID(), Reason: "no scene"}
	}
	if !scene.rendering.CompareAndSwap(false, true) {
		return ErrRenderInProgress
	}
	defer scene.rendering.Store(false)

	start := time.Now()
	defer func() { metricTraversalSeconds.Observe(time.Since(start).Seconds()) }()

	r := args.Renderer
	baseDepth := r.MatrixDepth()
	defer func() {
		if err != nil {
			unwindMatrix(r, baseDepth)
		}
	}()
	self := c.AsNode()

	pos, rot := c.transform()
	r.Rotate(-rot.X, UnitX)
	r.Rotate(-rot.Y, UnitY)
	r.Rotate(-rot.Z, UnitZ)
	r.Translate(pos.Neg())

	stack := []Node{scene.Self()}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n == nil {
			if err := r.PopMatrix(); err != nil {
				return err
			}
			continue
		}

		b := n.AsNode()
		caps := b.Capabilities()
		renderable := caps.Has(CapRenderable) && b != self && caps&(CapCamera|CapScene) == 0
		spatial := caps&(CapPositionable|CapRotatable) != 0 && !caps.Has(CapCamera)

		pushed := false
		if spatial {
			o := n.(Spatial).AsObject()
			p, q := o.transform()
			r.PushMatrix()
			pushed = true
			if caps.Has(CapPositionable) {
				r.Translate(p)
			}
			if caps.Has(CapRotatable) {
				r.Rotate(q.X, UnitX)
				r.Rotate(q.Y, UnitY)
				r.Rotate(q.Z, UnitZ)
			}
		}

		if renderable {
			if err := n.(Renderable).Render(args); err != nil {
				return fmt.Errorf("grove: render %s: %w", b.ID(), err)
			}
		}

		if caps.Has(CapContainer) {
			if pushed {
				stack = append(stack, nil)
			}
			children := n.(ContainerNode).AsContainer().coll().load().list()
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		} else if pushed {
			if err := r.PopMatrix(); err != nil {
				return err
			}
		}
	}

	if d := r.MatrixDepth(); d != baseDepth {
		return &ConsistencyError{
			Op:     "render",
			Detail: fmt.Sprintf("matrix depth %d after traversal, want %d", d, baseDepth),
		}
	}
	return nil
}

// unwindMatrix pops the frames a failed traversal still owes r.
func unwindMatrix(r Renderer, depth int) {
	for r.MatrixDepth() > depth {
		if r.PopMatrix() != nil {
			return
		}
	}
}

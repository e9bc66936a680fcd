package grove

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanema/gween/ease"
)

// recordingRenderer is a MatrixStack that logs the calls a traversal makes.
type recordingRenderer struct {
	MatrixStack
	ops    []string
	draws  []Mat4
	lights []int
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{MatrixStack: *NewMatrixStack()}
}

func (r *recordingRenderer) PushMatrix() {
	r.ops = append(r.ops, "push")
	r.MatrixStack.PushMatrix()
}

func (r *recordingRenderer) PopMatrix() error {
	r.ops = append(r.ops, "pop")
	return r.MatrixStack.PopMatrix()
}

func (r *recordingRenderer) DrawTriangles(tris []Triangle, opts DrawOptions) {
	r.ops = append(r.ops, "draw")
	r.draws = append(r.draws, r.Matrix())
}

func (r *recordingRenderer) SetLight(slot int, l LightState) {
	r.ops = append(r.ops, "light")
	r.lights = append(r.lights, slot)
}

// leakyNode pushes a matrix without popping it.
type leakyNode struct{ Object }

func newLeakyNode(name string) *leakyNode {
	n := &leakyNode{}
	n.init(n, name)
	return n
}

func (n *leakyNode) Render(args *RenderArgs) error {
	args.Renderer.PushMatrix()
	return nil
}

// reentrantNode renders its scene again from inside a traversal.
type reentrantNode struct{ Object }

func newReentrantNode(name string) *reentrantNode {
	n := &reentrantNode{}
	n.init(n, name)
	return n
}

func (n *reentrantNode) Render(args *RenderArgs) error {
	return args.Scene.Render(args)
}

// failingNode fails to render.
type failingNode struct{ Object }

func newFailingNode(name string) *failingNode {
	n := &failingNode{}
	n.init(n, name)
	return n
}

func (n *failingNode) Render(*RenderArgs) error { return errors.New("boom") }

func renderScene(t *testing.T, s *Scene) (*recordingRenderer, *RenderArgs, error) {
	t.Helper()
	r := newRecordingRenderer()
	args := &RenderArgs{Renderer: r, MaxLights: DefaultMaxLights}
	err := s.Render(args)
	return r, args, err
}

func TestCameraTraversalOrder(t *testing.T) {
	s := NewScene("s")
	a := NewObject("a")
	a.SetPosition(Vec3{1, 0, 0})
	m := NewBox("m", Vec3{1, 1, 1})
	l := NewLight("l")
	require.NoError(t, s.Add(a, l))
	require.NoError(t, a.Add(m))

	r, args, err := renderScene(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"push", // a
		"push", // m
		"draw",
		"pop",
		"pop",
		"push", // l
		"light",
		"pop",
	}, r.ops)
	assert.Zero(t, r.MatrixDepth())
	assert.Equal(t, 12, args.Triangles())
	assert.Equal(t, 1, args.LightsUsed())
	assert.False(t, s.Rendering())
}

func TestCameraTraversalDrawMatrix(t *testing.T) {
	s := NewScene("s")
	s.DefaultCamera().SetPosition(Vec3{0, 0, 5})
	a := NewObject("a")
	a.SetPosition(Vec3{1, 2, 0})
	m := NewQuad("m", 1, 1)
	m.SetPosition(Vec3{0, 0, -1})
	require.NoError(t, s.Add(a))
	require.NoError(t, a.Add(m))

	r, _, err := renderScene(t, s)
	require.NoError(t, err)
	require.Len(t, r.draws, 1)
	assertVec(t, Vec3{1, 2, -6}, r.draws[0].TransformPoint(Vec3{}))
}

func TestCameraRotationIsInverted(t *testing.T) {
	s := NewScene("s")
	cam := s.DefaultCamera()
	cam.SetRotation(Vec3{0, 90, 0})
	m := NewTriangle("m", 1, 1)
	m.SetPosition(Vec3{-3, 0, 0})
	require.NoError(t, s.Add(m))

	r, _, err := renderScene(t, s)
	require.NoError(t, err)
	require.Len(t, r.draws, 1)
	// The camera looks down -X, so a mesh on -X is straight ahead.
	assertVec(t, Vec3{0, 0, -3}, r.draws[0].TransformPoint(Vec3{}))
}

func TestCameraChildOfScene(t *testing.T) {
	s := NewScene("s")
	cam := NewCamera("cam")
	cam.SetPosition(Vec3{0, 0, 10})
	require.NoError(t, s.Add(cam))
	s.SetDefaultCamera(cam)

	held := NewBox("held", Vec3{1, 1, 1})
	require.NoError(t, cam.Add(held))

	r, _, err := renderScene(t, s)
	require.NoError(t, err)
	// The camera neither pushes nor draws; its child does both.
	assert.Equal(t, []string{"push", "draw", "pop"}, r.ops)
	assertVec(t, Vec3{0, 0, -10}, r.draws[0].TransformPoint(Vec3{}))
}

func TestCameraSkipsNestedScene(t *testing.T) {
	outer := NewScene("outer")
	inner := NewScene("inner")
	require.NoError(t, outer.Add(inner))
	require.NoError(t, inner.Add(NewBox("b", Vec3{1, 1, 1})))

	r, _, err := renderScene(t, outer)
	require.NoError(t, err)
	assert.Equal(t, []string{"push", "draw", "pop"}, r.ops, "a nested scene is walked but not rendered")
}

func TestCameraUnbalancedRenderable(t *testing.T) {
	s := NewScene("s")
	require.NoError(t, s.Add(newLeakyNode("leak")))

	_, _, err := renderScene(t, s)
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "render", ce.Op)
	assert.False(t, s.Rendering())
}

func TestCameraReentrantRender(t *testing.T) {
	s := NewScene("s")
	require.NoError(t, s.Add(newReentrantNode("again")))

	_, _, err := renderScene(t, s)
	assert.ErrorIs(t, err, ErrRenderInProgress)
	assert.False(t, s.Rendering())

	// A failed render does not leave the scene locked.
	assert.Len(t, s.Clear(), 1)
	_, _, err = renderScene(t, s)
	assert.NoError(t, err)
}

func TestCameraRenderWithoutScene(t *testing.T) {
	cam := NewCamera("c")
	err := cam.Render(&RenderArgs{Renderer: newRecordingRenderer()})
	assert.ErrorIs(t, err, ErrHierarchy)
}

func TestSceneWithoutCamera(t *testing.T) {
	s := NewScene("s")
	s.SetDefaultCamera(nil)
	_, _, err := renderScene(t, s)
	assert.ErrorIs(t, err, ErrHierarchy)
}

func TestSceneExplicitCamera(t *testing.T) {
	s := NewScene("s")
	other := NewCamera("other")
	other.SetPosition(Vec3{0, 0, 3})
	require.NoError(t, s.Add(NewQuad("q", 1, 1)))

	r := newRecordingRenderer()
	args := &RenderArgs{Renderer: r, Camera: other}
	require.NoError(t, s.Render(args))
	assertVec(t, Vec3{0, 0, -3}, r.draws[0].TransformPoint(Vec3{}))
	assert.Same(t, s, args.Scene)
}

func TestCameraFollow(t *testing.T) {
	root := NewContainer("root")
	target := NewObject("target")
	target.SetPosition(Vec3{10, 0, 0})
	require.NoError(t, root.Add(target))

	cam := NewCamera("cam")
	cam.Follow(target, Vec3{0, 0, 5}, 1)
	cam.Update(1.0 / 60)
	assertVec(t, Vec3{10, 0, 5}, cam.Position())

	cam.Follow(target, Vec3{}, 0.5)
	cam.Update(1.0 / 60)
	assertVec(t, Vec3{10, 0, 2.5}, cam.Position())

	cam.Unfollow()
	target.SetPosition(Vec3{})
	cam.Update(1.0 / 60)
	assertVec(t, Vec3{10, 0, 2.5}, cam.Position())
}

func TestCameraScrollTo(t *testing.T) {
	cam := NewCamera("cam")
	cam.ScrollTo(Vec3{4, 0, 0}, 1, ease.Linear)
	cam.Update(0.5)
	assert.InDelta(t, 2.0, cam.Position().X, 1e-4)
	cam.Update(0.6)
	assert.InDelta(t, 4.0, cam.Position().X, 1e-4)
	cam.Update(1)
	assert.InDelta(t, 4.0, cam.Position().X, 1e-4)
}

func TestCameraMatrixBalance(t *testing.T) {
	chain := func(depth int, leaf Node) func(s *Scene) error {
		return func(s *Scene) error {
			var top ContainerNode = s
			for i := 0; i < depth; i++ {
				o := NewObject("")
				o.SetPosition(Vec3{X: 1})
				if err := top.AsContainer().Add(o); err != nil {
					return err
				}
				top = o
			}
			return top.AsContainer().Add(leaf)
		}
	}

	tests := []struct {
		name       string
		startDepth int
		build      func(s *Scene) error
		wantErr    bool
	}{
		{name: "empty scene", build: func(*Scene) error { return nil }},
		{name: "single leaf", build: func(s *Scene) error { return s.Add(NewBox("b", Vec3{1, 1, 1})) }},
		{name: "plain container of spatial leaves", build: func(s *Scene) error {
			g := NewContainer("group")
			if err := g.Add(NewBox("a", Vec3{1, 1, 1}), NewLight("l"), NewQuad("q", 1, 1)); err != nil {
				return err
			}
			return s.Add(g)
		}},
		{name: "spatial inside plain inside spatial", build: func(s *Scene) error {
			outer := NewObject("outer")
			g := NewContainer("g")
			inner := NewObject("inner")
			if err := inner.Add(NewBox("b", Vec3{1, 1, 1})); err != nil {
				return err
			}
			if err := g.Add(inner); err != nil {
				return err
			}
			if err := outer.Add(g); err != nil {
				return err
			}
			return s.Add(outer)
		}},
		{name: "deep chain", build: chain(200, NewBox("b", Vec3{1, 1, 1}))},
		{name: "saved frames below the traversal", startDepth: 2, build: chain(3, NewBox("b", Vec3{1, 1, 1}))},
		{name: "failing renderable", build: chain(1, newFailingNode("f")), wantErr: true},
		{name: "failing renderable deep", build: chain(50, newFailingNode("f")), wantErr: true},
		{name: "failing renderable over saved frames", startDepth: 3, build: chain(4, newFailingNode("f")), wantErr: true},
		{name: "leaking renderable", build: chain(2, newLeakyNode("leak")), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScene("s")
			require.NoError(t, tt.build(s))

			r := newRecordingRenderer()
			for i := 0; i < tt.startDepth; i++ {
				r.MatrixStack.PushMatrix()
			}
			err := s.Render(&RenderArgs{Renderer: r, MaxLights: DefaultMaxLights})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.startDepth, r.MatrixDepth())
			pushes, pops := 0, 0
			for _, op := range r.ops {
				switch op {
				case "push":
					pushes++
				case "pop":
					pops++
				}
			}
			assert.Equal(t, pushes, pops)
			assert.False(t, s.Rendering())
		})
	}
}

func TestCameraRenderErrorNamesNode(t *testing.T) {
	s := NewScene("S")
	outer := NewObject("Outer")
	require.NoError(t, s.Add(outer))
	require.NoError(t, outer.Add(newFailingNode("F")))

	r := newRecordingRenderer()
	err := s.Render(&RenderArgs{Renderer: r})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S.Outer.F")
	assert.Contains(t, err.Error(), "boom")
	assert.Zero(t, r.MatrixDepth())
}

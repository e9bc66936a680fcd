package grove

import (
	"sync"
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// TweenGroup animates the three components of a vector property of a node.
// Create one with TweenPosition or TweenRotation and call Update(dt) each
// frame, or hand it to an Animator.
type TweenGroup struct {
	tweens [3]*gween.Tween
	apply  func(Vec3)
	target Node
	Done   bool
}

func newTweenGroup(target Node, from, to Vec3, duration float32, fn ease.TweenFunc, apply func(Vec3)) *TweenGroup {
	return &TweenGroup{
		tweens: [3]*gween.Tween{
			gween.New(float32(from.X), float32(to.X), duration, fn),
			gween.New(float32(from.Y), float32(to.Y), duration, fn),
			gween.New(float32(from.Z), float32(to.Z), duration, fn),
		},
		apply:  apply,
		target: target,
	}
}

// Update advances all tweens by dt seconds and writes the value to the
// target.
func (g *TweenGroup) Update(dt float32) {
	if g.Done {
		return
	}
	var v [3]float32
	allDone := true
	for i, tw := range g.tweens {
		val, finished := tw.Update(dt)
		v[i] = val
		if !finished {
			allDone = false
		}
	}
	g.apply(Vec3{float64(v[0]), float64(v[1]), float64(v[2])})
	g.Done = allDone
}

// Target returns the animated node.
func (g *TweenGroup) Target() Node { return g.target }

// TweenPosition animates o's position to `to` over duration seconds.
func TweenPosition(o Spatial, to Vec3, duration float32, fn ease.TweenFunc) *TweenGroup {
	obj := o.AsObject()
	return newTweenGroup(o, obj.Position(), to, duration, fn, obj.SetPosition)
}

// TweenRotation animates o's Euler rotation to `to` over duration seconds.
func TweenRotation(o Spatial, to Vec3, duration float32, fn ease.TweenFunc) *TweenGroup {
	obj := o.AsObject()
	return newTweenGroup(o, obj.Rotation(), to, duration, fn, obj.SetRotation)
}

// Animator is a Processor that advances tween groups by the wall time
// between its Process calls and drops them once done.
type Animator struct {
	name string

	mu      sync.Mutex
	groups  []*TweenGroup
	last    time.Time
	started bool
}

// NewAnimator creates an empty animator.
func NewAnimator(name string) *Animator {
	return &Animator{name: name}
}

// Name returns the animator's name.
func (a *Animator) Name() string { return a.name }

// Add schedules g. It starts advancing on the next Process.
func (a *Animator) Add(g *TweenGroup) {
	a.mu.Lock()
	a.groups = append(a.groups, g)
	a.mu.Unlock()
}

// Active returns the number of unfinished groups.
func (a *Animator) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Process advances every group. The first call only records the time.
func (a *Animator) Process(now time.Time) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		a.started = true
		a.last = now
		return false, nil
	}
	dt := float32(now.Sub(a.last).Seconds())
	a.last = now
	live := a.groups[:0]
	for _, g := range a.groups {
		g.Update(dt)
		if !g.Done {
			live = append(live, g)
		}
	}
	clear(a.groups[len(live):])
	a.groups = live
	metricBehaviourTicks.WithLabelValues(a.name).Inc()
	return true, nil
}

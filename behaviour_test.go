package grove

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	mu      sync.Mutex
	applied []string
	calls   map[string]int
	dts     []time.Duration
	fail    string
}

func (p *countingProcessor) ApplyTo(n *Object) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied = append(p.applied, n.Name())
}

func (p *countingProcessor) ProcessNode(n *Object, dt time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[n.Name()]++
	p.dts = append(p.dts, dt)
	if n.Name() == p.fail {
		return errors.New("boom")
	}
	return nil
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestBehaviourFirstCallOnlyMarksTime(t *testing.T) {
	p := &countingProcessor{}
	b := NewBehaviour[*Object]("count", 0, p)
	b.Subscribe(NewObject("a"))

	ran, err := b.Process(epoch)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Empty(t, p.calls)

	ran, err = b.Process(epoch.Add(10 * time.Millisecond))
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, p.calls["a"])
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, p.dts)
}

func TestBehaviourRateLimit(t *testing.T) {
	p := &countingProcessor{}
	b := NewBehaviour[*Object]("count", 10, p)
	assert.Equal(t, 100*time.Millisecond, b.TargetPeriod())
	assert.InDelta(t, 10, b.TargetProcessRate(), 1e-9)
	b.Subscribe(NewObject("a"))

	steps := []struct {
		at  time.Duration
		ran bool
	}{
		{0, false},
		{50 * time.Millisecond, false},
		{100 * time.Millisecond, true},
		{150 * time.Millisecond, false},
		{230 * time.Millisecond, true},
	}
	for _, s := range steps {
		ran, err := b.Process(epoch.Add(s.at))
		require.NoError(t, err)
		assert.Equal(t, s.ran, ran, "at %v", s.at)
	}
	assert.Equal(t, 2, p.calls["a"])
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 130 * time.Millisecond}, p.dts)
}

func TestBehaviourRateChange(t *testing.T) {
	b := NewBehaviour[*Object]("count", 4, &countingProcessor{})
	b.SetTargetProcessRate(-1)
	assert.Zero(t, b.TargetPeriod())
	assert.Zero(t, b.TargetProcessRate())
}

func TestBehaviourSubscribe(t *testing.T) {
	p := &countingProcessor{}
	b := NewBehaviour[*Object]("count", 0, p)
	a := NewObject("a")

	assert.True(t, b.Subscribe(a))
	assert.False(t, b.Subscribe(a), "subscribing twice is a no-op")
	assert.Equal(t, []string{"a"}, p.applied)

	// Identity, not name, decides membership.
	twin := NewObject("a")
	assert.False(t, b.IsSubscribed(twin))
	assert.True(t, b.Subscribe(twin))
	assert.Equal(t, 2, b.Len())

	assert.True(t, b.Unsubscribe(a))
	assert.False(t, b.Unsubscribe(a))
	assert.Len(t, b.Subscribers(), 1)
}

func TestBehaviourJoinsNodeErrors(t *testing.T) {
	p := &countingProcessor{fail: "bad"}
	b := NewBehaviour[*Object]("count", 0, p)
	b.Subscribe(NewObject("good"))
	b.Subscribe(NewObject("bad"))

	_, err := b.Process(epoch)
	require.NoError(t, err)
	ran, err := b.Process(epoch.Add(time.Second))
	assert.True(t, ran)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, 1, p.calls["good"], "other nodes still run")
}

func TestBehaviourWatch(t *testing.T) {
	p := &countingProcessor{}
	b := NewBehaviour[*Object]("count", 0, p)
	c := NewContainer("c")
	existing := NewObject("existing")
	require.NoError(t, c.Add(existing, NewContainer("not-an-object")))

	cancel := b.Watch(c)
	assert.True(t, b.IsSubscribed(existing))

	added := NewObject("added")
	require.NoError(t, c.Add(added))
	assert.True(t, b.IsSubscribed(added))
	assert.Equal(t, 2, b.Len())

	_, err := c.Remove(existing)
	require.NoError(t, err)
	assert.False(t, b.IsSubscribed(existing))

	cancel()
	require.NoError(t, c.Add(NewObject("late")))
	assert.Equal(t, 1, b.Len())
}

func TestGravityAppliesOnSubscribe(t *testing.T) {
	g := NewGravity("gravity", 30)
	o := NewObject("apple")
	o.UpdateMotion(func(m *Motion) { m.Acceleration = Vec3{1, 2, 3} })

	g.Subscribe(o)
	assertVec(t, Vec3{1, GravityAcceleration, 3}, o.Motion().Acceleration)
}

func TestNewtonianMovement(t *testing.T) {
	b := NewNewtonianBehaviour("physics", 0)
	o := NewObject("o")
	o.SetMotion(Motion{
		Velocity:            Vec3{1, 0, 0},
		Acceleration:        Vec3{0, -2, 0},
		AngularAcceleration: Vec3{0, 10, 0},
	})
	b.Subscribe(o)

	_, err := b.Process(epoch)
	require.NoError(t, err)
	_, err = b.Process(epoch.Add(time.Second))
	require.NoError(t, err)

	m := o.Motion()
	assertVec(t, Vec3{1, -2, 0}, m.Velocity)
	assertVec(t, Vec3{1, -2, 0}, m.Position)
	assertVec(t, Vec3{0, 10, 0}, m.AngularVelocity)
	assertVec(t, Vec3{0, 10, 0}, m.Rotation)
}

func TestGravityFall(t *testing.T) {
	g := NewGravity("gravity", 0)
	o := NewObject("o")
	g.Subscribe(o)

	_, _ = g.Process(epoch)
	for i := 1; i <= 4; i++ {
		_, err := g.Process(epoch.Add(time.Duration(i) * 250 * time.Millisecond))
		require.NoError(t, err)
	}
	m := o.Motion()
	assert.InDelta(t, GravityAcceleration, m.Velocity.Y, 1e-9)
	assert.Less(t, m.Position.Y, 0.0)
}

package grove

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Processor is anything a World ticks once per update.
type Processor interface {
	Name() string
	// Process runs one pass if it is due and reports whether it ran.
	Process(now time.Time) (bool, error)
}

// NodeProcessor is the type-specific part of a Behaviour.
type NodeProcessor[T Node] interface {
	// ApplyTo runs synchronously when a node is subscribed. It must not
	// block.
	ApplyTo(n T)
	// ProcessNode runs once per pass for every subscriber. dt is the time
	// since the previous pass.
	ProcessNode(n T, dt time.Duration) error
}

// Subscriber accepts nodes into a subscription set.
type Subscriber[T Node] interface {
	Subscribe(n T) bool
}

// NodeSet is a thread-safe set of nodes keyed by identity, not by name.
type NodeSet[T Node] struct {
	mu    sync.RWMutex
	nodes map[uuid.UUID]T
}

// Add inserts n and reports whether it was absent.
func (s *NodeSet[T]) Add(n T) bool {
	id := n.AsNode().UID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; ok {
		return false
	}
	if s.nodes == nil {
		s.nodes = make(map[uuid.UUID]T)
	}
	s.nodes[id] = n
	return true
}

// Remove deletes n and reports whether it was present.
func (s *NodeSet[T]) Remove(n T) bool {
	id := n.AsNode().UID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return false
	}
	delete(s.nodes, id)
	return true
}

// Contains reports whether n is in the set.
func (s *NodeSet[T]) Contains(n T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[n.AsNode().UID()]
	return ok
}

// Len returns the size of the set.
func (s *NodeSet[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Snapshot returns the members at one point in time, in no particular order.
func (s *NodeSet[T]) Snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	return out
}

// Behaviour is a rate-limited processor bound to a set of subscribed nodes.
// Process calls are serialized; different behaviours may run concurrently.
type Behaviour[T Node] struct {
	name string
	proc NodeProcessor[T]
	set  NodeSet[T]
	log  *slog.Logger

	period atomic.Int64 // nanoseconds

	mu      sync.Mutex
	last    time.Time
	started bool
}

// NewBehaviour creates a behaviour running proc at rate passes per second.
// A rate <= 0 runs on every Process call.
func NewBehaviour[T Node](name string, rate float64, proc NodeProcessor[T]) *Behaviour[T] {
	b := &Behaviour[T]{name: name, proc: proc, log: slog.Default()}
	b.SetTargetProcessRate(rate)
	return b
}

// Name returns the behaviour's name.
func (b *Behaviour[T]) Name() string { return b.name }

// Processor returns the type-specific processor.
func (b *Behaviour[T]) Processor() NodeProcessor[T] { return b.proc }

// SetLogger sets the logger used for per-node failures.
func (b *Behaviour[T]) SetLogger(l *slog.Logger) {
	if l != nil {
		b.log = l
	}
}

// SetTargetProcessRate sets the passes per second. A rate <= 0 runs on
// every Process call.
func (b *Behaviour[T]) SetTargetProcessRate(hz float64) {
	if hz <= 0 {
		b.period.Store(0)
		return
	}
	b.period.Store(int64(float64(time.Second) / hz))
}

// TargetProcessRate returns the passes per second, or 0 for every call.
func (b *Behaviour[T]) TargetProcessRate() float64 {
	p := b.period.Load()
	if p == 0 {
		return 0
	}
	return float64(time.Second) / float64(p)
}

// TargetPeriod returns the minimum time between passes.
func (b *Behaviour[T]) TargetPeriod() time.Duration {
	return time.Duration(b.period.Load())
}

// Subscribe adds n to the set and, if it was new, calls ApplyTo on the
// calling goroutine.
func (b *Behaviour[T]) Subscribe(n T) bool {
	if !b.set.Add(n) {
		return false
	}
	b.proc.ApplyTo(n)
	return true
}

// Unsubscribe removes n from the set.
func (b *Behaviour[T]) Unsubscribe(n T) bool { return b.set.Remove(n) }

// IsSubscribed reports whether n is in the set.
func (b *Behaviour[T]) IsSubscribed(n T) bool { return b.set.Contains(n) }

// Subscribers returns a snapshot of the set.
func (b *Behaviour[T]) Subscribers() []T { return b.set.Snapshot() }

// Len returns the number of subscribers.
func (b *Behaviour[T]) Len() int { return b.set.Len() }

// Watch subscribes every current and future child of c of type T, and
// unsubscribes children removed from c. The returned function stops
// watching.
func (b *Behaviour[T]) Watch(c ContainerNode) (cancel func()) {
	cancel = c.AsContainer().Observe(func(ev CollectionEvent) {
		t, ok := ev.Node.(T)
		if !ok {
			return
		}
		switch ev.Kind {
		case EventAdded:
			b.Subscribe(t)
		case EventRemoved:
			b.Unsubscribe(t)
		}
	})
	for _, t := range ChildrenOf[T](c) {
		b.Subscribe(t)
	}
	return cancel
}

// Process runs a pass over a snapshot of the subscribers when at least
// TargetPeriod has passed since the previous pass. The first call only
// records the time. Errors from individual nodes are joined; the pass
// still visits every node.
func (b *Behaviour[T]) Process(now time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		b.started = true
		b.last = now
		return false, nil
	}
	elapsed := now.Sub(b.last)
	if elapsed < b.TargetPeriod() {
		return false, nil
	}
	b.last = now

	var errs []error
	for _, n := range b.set.Snapshot() {
		if err := b.proc.ProcessNode(n, elapsed); err != nil {
			b.log.Debug("behaviour node failed", "behaviour", b.name, "node", n.AsNode().ID(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", n.AsNode().ID(), err))
		}
	}
	metricBehaviourTicks.WithLabelValues(b.name).Inc()
	if len(errs) > 0 {
		metricBehaviourErrors.WithLabelValues(b.name).Inc()
		return true, fmt.Errorf("grove: behaviour %s: %w", b.name, errors.Join(errs...))
	}
	return true, nil
}

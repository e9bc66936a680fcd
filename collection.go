package grove

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// CollectionEvent describes a change to a Collection. Events are delivered
// synchronously on the goroutine that performed the mutation, after the new
// state has been published.
type CollectionEvent struct {
	Kind EventKind
	Node Node
	// Owner is the container whose children changed, or nil for a
	// standalone Collection.
	Owner   ContainerNode
	OldName string
	NewName string
}

// EventSink receives every collection event of a World's hierarchy.
type EventSink interface {
	EmitEvent(event CollectionEvent)
}

// collectionState is one immutable published version of a Collection.
type collectionState struct {
	byName map[string]Node

	sortOnce sync.Once
	sorted   []Node
}

var emptyState = &collectionState{byName: map[string]Node{}}

// list returns the members ordered by name. The slice is shared and must
// not be modified.
func (s *collectionState) list() []Node {
	s.sortOnce.Do(func() {
		names := make([]string, 0, len(s.byName))
		for k := range s.byName {
			names = append(names, k)
		}
		slices.Sort(names)
		s.sorted = make([]Node, len(names))
		for i, k := range names {
			s.sorted[i] = s.byName[k]
		}
	})
	return s.sorted
}

type observer struct {
	id uint64
	fn func(CollectionEvent)
}

// Collection is a thread-safe map from name to node. Every mutation builds
// a new version of the map and publishes it with a compare-and-swap; a lost
// swap is retried under the RetryPolicy of the owning hierarchy and fails
// with ConcurrencyError once the budget is spent. Readers never block and
// always see a complete version.
//
// A Collection used on its own does not touch the parent links of its
// members. Container wraps one and maintains them.
type Collection struct {
	state atomic.Pointer[collectionState]
	owner *Container

	obsMu     sync.Mutex
	nextObsID uint64
	observers atomic.Pointer[[]observer]
}

func (c *Collection) load() *collectionState {
	if s := c.state.Load(); s != nil {
		return s
	}
	return emptyState
}

func (c *Collection) env() *hierEnv {
	if c.owner != nil {
		return c.owner.env()
	}
	return defaultEnv()
}

func (c *Collection) ownerNode() ContainerNode {
	if c.owner == nil {
		return nil
	}
	return c.owner.containerNode()
}

// mutate applies fn to the current version until its result is published.
// fn returns the next map, or nil when nothing changes. It may run several
// times and must not have side effects beyond its own locals.
func (c *Collection) mutate(op string, fn func(cur map[string]Node) (map[string]Node, error)) error {
	e := c.env()
	retries := 0
	for {
		old := c.state.Load()
		cur := emptyState.byName
		if old != nil {
			cur = old.byName
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if c.state.CompareAndSwap(old, &collectionState{byName: next}) {
			return nil
		}
		metricCASRetries.WithLabelValues(op).Inc()
		if retries >= e.retry.Limit {
			metricCASFailures.WithLabelValues(op).Inc()
			return &ConcurrencyError{Op: op, RetryCount: retries}
		}
		retries++
		for range e.retry.Spin {
			runtime.Gosched()
		}
	}
}

func cloneWith(cur map[string]Node, extra int) map[string]Node {
	next := make(map[string]Node, len(cur)+extra)
	for k, v := range cur {
		next[k] = v
	}
	return next
}

func sameNode(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.AsNode() == b.AsNode()
}

func validName(name string) error {
	if strings.Contains(name, Separator) {
		return &InvalidNameError{Name: name}
	}
	return nil
}

// insert adds n under its current name, or under the first free auto-name
// when it has none. The chosen name is written back to the node.
func (c *Collection) insert(n Node) (CollectionEvent, error) {
	b := n.AsNode()
	name := b.Name()
	if err := validName(name); err != nil {
		return CollectionEvent{}, err
	}
	e := c.env()
	var chosen string
	err := c.mutate("add", func(cur map[string]Node) (map[string]Node, error) {
		chosen = name
		if chosen == "" {
			base := b.baseName()
			for i := 1; i < e.maxNameIndex; i++ {
				candidate := fmt.Sprintf("%s #%03x", base, i)
				if _, taken := cur[candidate]; !taken {
					chosen = candidate
					break
				}
			}
			if chosen == "" {
				return nil, &NameSpaceExhaustedError{Base: base, Limit: e.maxNameIndex}
			}
		} else if _, taken := cur[chosen]; taken {
			return nil, &DuplicateNameError{Name: chosen, Owner: c.ownerID()}
		}
		next := cloneWith(cur, 1)
		next[chosen] = n
		return next, nil
	})
	if err != nil {
		return CollectionEvent{}, err
	}
	if name == "" {
		b.setName(chosen, true)
	}
	return CollectionEvent{Kind: EventAdded, Node: n, Owner: c.ownerNode(), NewName: chosen}, nil
}

// remove deletes name when it maps to want, or to anything when want is nil.
func (c *Collection) remove(name string, want Node) (Node, error) {
	var removed Node
	err := c.mutate("remove", func(cur map[string]Node) (map[string]Node, error) {
		removed = nil
		existing, ok := cur[name]
		if !ok || (want != nil && !sameNode(existing, want)) {
			return nil, nil
		}
		removed = existing
		next := cloneWith(cur, 0)
		delete(next, name)
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// rekey moves n from its current name to newName in a single swap.
func (c *Collection) rekey(n Node, newName string) (CollectionEvent, error) {
	if err := validName(newName); err != nil {
		return CollectionEvent{}, err
	}
	if newName == "" {
		return CollectionEvent{}, &InvalidNameError{Name: newName}
	}
	b := n.AsNode()
	oldName := b.Name()
	if oldName == newName {
		return CollectionEvent{}, nil
	}
	err := c.mutate("rename", func(cur map[string]Node) (map[string]Node, error) {
		existing, ok := cur[oldName]
		if !ok || !sameNode(existing, n) {
			return nil, &ConsistencyError{
				Op:     "rename",
				Detail: fmt.Sprintf("key %q does not hold the node being renamed", oldName),
			}
		}
		if _, taken := cur[newName]; taken {
			return nil, &DuplicateNameError{Name: newName, Owner: c.ownerID()}
		}
		next := cloneWith(cur, 0)
		delete(next, oldName)
		next[newName] = n
		return next, nil
	})
	if err != nil {
		return CollectionEvent{}, err
	}
	b.setName(newName, false)
	return CollectionEvent{Kind: EventRenaming, Node: n, Owner: c.ownerNode(), OldName: oldName, NewName: newName}, nil
}

// drain empties the collection and returns what it held.
// The swap cannot fail on content, so it retries until it wins.
func (c *Collection) drain() []Node {
	for {
		old := c.state.Load()
		if old == nil || len(old.byName) == 0 {
			return nil
		}
		if c.state.CompareAndSwap(old, emptyState) {
			return slices.Clone(old.list())
		}
		metricCASRetries.WithLabelValues("clear").Inc()
		runtime.Gosched()
	}
}

func (c *Collection) ownerID() string {
	if c.owner == nil {
		return ""
	}
	return c.owner.ID()
}

func (c *Collection) emit(ev CollectionEvent) {
	if obs := c.observers.Load(); obs != nil {
		for _, o := range *obs {
			o.fn(ev)
		}
	}
	if sink := c.env().eventSink(); sink != nil {
		sink.EmitEvent(ev)
	}
}

// Add inserts n, auto-naming it when its name is empty.
func (c *Collection) Add(n Node) error {
	if n == nil {
		return &HierarchyError{Op: "add", Reason: "nil node"}
	}
	ev, err := c.insert(n)
	if err != nil {
		return err
	}
	c.emit(ev)
	return nil
}

// Remove deletes the node stored under name. It reports false when the name
// was not present.
func (c *Collection) Remove(name string) (bool, error) {
	removed, err := c.remove(name, nil)
	if err != nil || removed == nil {
		return false, err
	}
	c.emit(CollectionEvent{Kind: EventRemoved, Node: removed, Owner: c.ownerNode(), OldName: name})
	return true, nil
}

// RemoveNode deletes n if it is stored under its current name.
func (c *Collection) RemoveNode(n Node) (bool, error) {
	if n == nil {
		return false, nil
	}
	name := n.AsNode().Name()
	removed, err := c.remove(name, n)
	if err != nil || removed == nil {
		return false, err
	}
	c.emit(CollectionEvent{Kind: EventRemoved, Node: removed, Owner: c.ownerNode(), OldName: name})
	return true, nil
}

// Rename re-keys n, which must be a member under its current name, to
// newName. On DuplicateNameError the collection is unchanged.
func (c *Collection) Rename(n Node, newName string) error {
	ev, err := c.rekey(n, newName)
	if err != nil {
		return err
	}
	if ev.Node != nil {
		c.emit(ev)
	}
	return nil
}

// Clear removes every member and returns them.
func (c *Collection) Clear() []Node {
	removed := c.drain()
	for _, n := range removed {
		c.emit(CollectionEvent{Kind: EventRemoved, Node: n, Owner: c.ownerNode(), OldName: n.AsNode().Name()})
	}
	return removed
}

// Get returns the node stored under name.
func (c *Collection) Get(name string) (Node, bool) {
	n, ok := c.load().byName[name]
	return n, ok
}

// Contains reports whether name is a key.
func (c *Collection) Contains(name string) bool {
	_, ok := c.load().byName[name]
	return ok
}

// ContainsNode reports whether n is stored under its current name.
func (c *Collection) ContainsNode(n Node) bool {
	if n == nil {
		return false
	}
	existing, ok := c.load().byName[n.AsNode().Name()]
	return ok && sameNode(existing, n)
}

// Len returns the number of members.
func (c *Collection) Len() int { return len(c.load().byName) }

// Names returns the member names in sorted order.
func (c *Collection) Names() []string {
	list := c.load().list()
	names := make([]string, len(list))
	for i, n := range list {
		names[i] = n.AsNode().Name()
	}
	return names
}

// Snapshot returns the members at one point in time, ordered by name.
func (c *Collection) Snapshot() []Node {
	return slices.Clone(c.load().list())
}

// All iterates a snapshot of the members.
func (c *Collection) All(yield func(Node) bool) {
	for _, n := range c.load().list() {
		if !yield(n) {
			return
		}
	}
}

// Observe registers fn for every subsequent event and returns a function
// that unregisters it.
func (c *Collection) Observe(fn func(CollectionEvent)) (cancel func()) {
	c.obsMu.Lock()
	c.nextObsID++
	id := c.nextObsID
	var cur []observer
	if p := c.observers.Load(); p != nil {
		cur = *p
	}
	next := append(slices.Clone(cur), observer{id: id, fn: fn})
	c.observers.Store(&next)
	c.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.obsMu.Lock()
			defer c.obsMu.Unlock()
			var cur []observer
			if p := c.observers.Load(); p != nil {
				cur = *p
			}
			next := slices.DeleteFunc(slices.Clone(cur), func(o observer) bool { return o.id == id })
			c.observers.Store(&next)
		})
	}
}

package grove

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// ContainerNode is implemented by every node that owns children.
type ContainerNode interface {
	Node
	AsContainer() *Container
}

// hierEnv holds the settings shared by every container under one Root.
type hierEnv struct {
	retry        RetryPolicy
	maxNameIndex int
	log          *slog.Logger
	debug        bool
	sink         atomic.Pointer[sinkBox]
}

type sinkBox struct{ s EventSink }

func (e *hierEnv) eventSink() EventSink {
	if b := e.sink.Load(); b != nil {
		return b.s
	}
	return nil
}

func newHierEnv(o Options) *hierEnv {
	return &hierEnv{
		retry:        o.Retry,
		maxNameIndex: o.MaxAutoNameIndex,
		log:          o.logger(),
		debug:        o.Debug,
	}
}

var defaultEnv = sync.OnceValue(func() *hierEnv {
	o := DefaultOptions()
	o.Logger = slog.Default()
	return newHierEnv(o)
})

// Debug thresholds for tree shape warnings.
const (
	debugMaxTreeDepth  = 32
	debugMaxChildCount = 1000
)

// Container is a node that owns a Collection of children. The zero value
// is an empty, unnamed, detached container.
type Container struct {
	NodeBase

	once     sync.Once
	children Collection

	// rootEnv is set only on a Root.
	rootEnv *hierEnv
	// envp is the env of the Root above c, or nil while c is detached from
	// any Root. It is written only under structureMu.
	envp atomic.Pointer[hierEnv]
}

// structureMu serializes holder changes with the cycle check and env
// propagation. Lock order is the node's opMu, then structureMu.
var structureMu sync.Mutex

// NewContainer creates a detached container. An empty name is generated on
// insertion.
func NewContainer(name string) *Container {
	c := &Container{}
	c.init(c, name)
	return c
}

// AsContainer returns c.
func (c *Container) AsContainer() *Container { return c }

func (c *Container) coll() *Collection {
	c.once.Do(func() { c.children.owner = c })
	return &c.children
}

func (c *Container) isRoot() bool { return c.rootEnv != nil }

// env returns the settings of the owning Root. Detached subtrees use the
// defaults.
func (c *Container) env() *hierEnv {
	if e := c.envp.Load(); e != nil {
		return e
	}
	return defaultEnv()
}

// propagateEnv stores e on every container in the subtree of n. It
// requires structureMu.
func propagateEnv(n Node, e *hierEnv) {
	cn, ok := n.(ContainerNode)
	if !ok || cn.AsContainer().envp.Load() == e {
		return
	}
	stack := []*Container{cn.AsContainer()}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		top.envp.Store(e)
		for _, child := range top.coll().load().list() {
			if cc, ok := child.(ContainerNode); ok {
				stack = append(stack, cc.AsContainer())
			}
		}
	}
}

// detach clears the holder of a node already removed from c's collection.
func detach(b *NodeBase, n Node) {
	structureMu.Lock()
	b.setHolder(nil)
	propagateEnv(n, nil)
	structureMu.Unlock()
}

func (c *Container) containerNode() ContainerNode {
	if cn, ok := c.Self().(ContainerNode); ok {
		return cn
	}
	return c
}

// --- Tree manipulation ---

// Add inserts each node as a child. An unnamed node gets a generated name.
// It fails with HierarchyError for nil, already attached nodes and cycles,
// and with DuplicateNameError when a sibling already has the name. Nodes
// before the failing one stay added.
func (c *Container) Add(nodes ...Node) error {
	for _, n := range nodes {
		if err := c.add(n); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) add(n Node) error {
	if n == nil {
		return &HierarchyError{Op: "add", Node: c.ID(), Reason: "nil child"}
	}
	b := n.AsNode()
	b.opMu.Lock()
	ev, err := c.attach(n)
	b.opMu.Unlock()
	if err != nil {
		return err
	}
	c.coll().emit(ev)
	return nil
}

// attach links n under c. It requires the node's opMu.
func (c *Container) attach(n Node) (CollectionEvent, error) {
	b := n.AsNode()
	structureMu.Lock()
	if err := c.checkAttach(n); err != nil {
		structureMu.Unlock()
		return CollectionEvent{}, err
	}
	b.bind(n)
	// The holder is set first so that observers of Added see the final id.
	b.setHolder(c)
	structureMu.Unlock()

	ev, err := c.coll().insert(n)
	if err != nil {
		detach(b, n)
		return CollectionEvent{}, err
	}

	// Read after the insert so an ancestor attached meanwhile is seen either
	// here or by its own walk of the subtree.
	structureMu.Lock()
	e := c.envp.Load()
	propagateEnv(n, e)
	structureMu.Unlock()

	if e != nil && e.debug {
		debugCheckTreeDepth(e.log, b)
		debugCheckChildCount(e.log, c)
	}
	return ev, nil
}

// checkAttach requires structureMu.
func (c *Container) checkAttach(n Node) error {
	b := n.AsNode()
	if b.holderContainer() != nil {
		return &HierarchyError{Op: "add", Node: b.ID(), Reason: "node is already attached"}
	}
	cn, ok := n.(ContainerNode)
	if !ok {
		return nil
	}
	if cn.AsContainer().isRoot() {
		return &HierarchyError{Op: "add", Node: "", Reason: "a root cannot be a child"}
	}
	// A container under a Root cannot sit below a detached one.
	if c.envp.Load() == nil && isAncestor(cn.AsContainer(), c) {
		return &HierarchyError{Op: "add", Node: b.Name(), Reason: "adding it would create a cycle"}
	}
	return nil
}

// isAncestor reports whether candidate is node or one of its holders.
func isAncestor(candidate, node *Container) bool {
	for p := node; p != nil; p = p.holderContainer() {
		if p == candidate {
			return true
		}
	}
	return false
}

// Remove detaches n if it is a child of c and reports whether it was.
func (c *Container) Remove(n Node) (bool, error) {
	if n == nil {
		return false, nil
	}
	b := n.AsNode()
	b.opMu.Lock()
	if b.holderContainer() != c {
		b.opMu.Unlock()
		return false, nil
	}
	name := b.Name()
	removed, err := c.coll().remove(name, n)
	if err != nil || removed == nil {
		b.opMu.Unlock()
		return false, err
	}
	detach(b, n)
	b.opMu.Unlock()
	c.coll().emit(CollectionEvent{Kind: EventRemoved, Node: removed, Owner: c.containerNode(), OldName: name})
	return true, nil
}

// RemoveName detaches the child called name and reports whether there was one.
func (c *Container) RemoveName(name string) (bool, error) {
	n, ok := c.coll().Get(name)
	if !ok {
		return false, nil
	}
	return c.Remove(n)
}

// Clear detaches every child and empties the container. It returns the
// removed children.
func (c *Container) Clear() []Node {
	removed := c.coll().drain()
	for _, n := range removed {
		b := n.AsNode()
		b.opMu.Lock()
		if b.holderContainer() == c {
			detach(b, n)
		}
		b.opMu.Unlock()
	}
	for _, n := range removed {
		c.coll().emit(CollectionEvent{Kind: EventRemoved, Node: n, Owner: c.containerNode(), OldName: n.AsNode().Name()})
	}
	return removed
}

// Rename renames the child n. It fails with HierarchyError when n is not a
// child of c.
func (c *Container) Rename(n Node, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	b := n.AsNode()
	b.opMu.Lock()
	if b.holderContainer() != c {
		b.opMu.Unlock()
		return &HierarchyError{Op: "rename", Node: b.ID(), Reason: "not a child of " + c.ID()}
	}
	ev, err := c.coll().rekey(n, name)
	b.opMu.Unlock()
	if err != nil {
		return err
	}
	c.emitRename(ev)
	return nil
}

// emitRename skips the event of a rename to the current name.
func (c *Container) emitRename(ev CollectionEvent) {
	if ev.Node != nil {
		c.coll().emit(ev)
	}
}

// Dispose detaches the container and recursively clears its subtree.
func (c *Container) Dispose() error {
	if err := c.RemoveFromParent(); err != nil {
		return err
	}
	stack := []*Container{c}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range top.Clear() {
			if cn, ok := n.(ContainerNode); ok {
				stack = append(stack, cn.AsContainer())
			}
		}
	}
	return nil
}

// --- Queries ---

// Get resolves a dotted path of child names relative to c.
func (c *Container) Get(relativeID string) (Node, error) {
	cur := c
	segments := strings.Split(relativeID, Separator)
	for i, seg := range segments {
		n, ok := cur.coll().Get(seg)
		if !ok {
			return nil, &KeyNotFoundError{Path: relativeID, Segment: seg}
		}
		if i == len(segments)-1 {
			return n, nil
		}
		cn, ok := n.(ContainerNode)
		if !ok {
			return nil, &KeyNotFoundError{Path: relativeID, Segment: segments[i+1]}
		}
		cur = cn.AsContainer()
	}
	return nil, &KeyNotFoundError{Path: relativeID, Segment: relativeID}
}

// Child returns the direct child called name.
func (c *Container) Child(name string) (Node, bool) { return c.coll().Get(name) }

// Children returns a snapshot of the direct children ordered by name.
func (c *Container) Children() []Node { return c.coll().Snapshot() }

// ChildNames returns the names of the direct children in sorted order.
func (c *Container) ChildNames() []string { return c.coll().Names() }

// Len returns the number of direct children.
func (c *Container) Len() int { return c.coll().Len() }

// Contains reports whether a direct child is called name.
func (c *Container) Contains(name string) bool { return c.coll().Contains(name) }

// ContainsNode reports whether n is a direct child.
func (c *Container) ContainsNode(n Node) bool { return c.coll().ContainsNode(n) }

// Observe registers fn for changes to the direct children.
func (c *Container) Observe(fn func(CollectionEvent)) (cancel func()) {
	return c.coll().Observe(fn)
}

// Descendants returns a materialized list of every node below c: the
// direct children first, then the descendants of each child container in
// turn.
func (c *Container) Descendants() []Node {
	var out []Node
	stack := []*Container{c}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		children := cur.coll().load().list()
		out = append(out, children...)
		for i := len(children) - 1; i >= 0; i-- {
			if cn, ok := children[i].(ContainerNode); ok {
				stack = append(stack, cn.AsContainer())
			}
		}
	}
	return out
}

// ChildrenOf returns the direct children of c that are of type T.
func ChildrenOf[T Node](c ContainerNode) []T {
	return filterNodes[T](c.AsContainer().coll().load().list())
}

// DescendantsOf returns the descendants of c that are of type T.
func DescendantsOf[T Node](c ContainerNode) []T {
	return filterNodes[T](c.AsContainer().Descendants())
}

func filterNodes[T Node](nodes []Node) []T {
	var out []T
	for _, n := range nodes {
		if t, ok := n.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// --- Root ---

// Root is the top of a hierarchy. Its name and id are empty, its direct
// children have unprefixed ids and no Parent, and it carries the settings
// shared by every container beneath it.
type Root struct {
	Container
}

// NewRoot creates a root configured by opts.
func NewRoot(opts Options) *Root {
	r := &Root{}
	r.init(r, "")
	r.rootEnv = newHierEnv(opts.withDefaults())
	r.envp.Store(r.rootEnv)
	return r
}

// SetEventSink routes every collection event beneath r to sink. A nil sink
// disables routing.
func (r *Root) SetEventSink(sink EventSink) {
	if sink == nil {
		r.rootEnv.sink.Store(nil)
		return
	}
	r.rootEnv.sink.Store(&sinkBox{s: sink})
}

// Logger returns the logger shared by the hierarchy.
func (r *Root) Logger() *slog.Logger { return r.rootEnv.log }

// ID returns "".
func (r *Root) ID() string { return "" }

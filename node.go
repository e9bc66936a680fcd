package grove

import (
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Node is any element of the hierarchy. Every node type embeds NodeBase,
// directly or through Container or Object, and gets AsNode for free.
type Node interface {
	AsNode() *NodeBase
}

// BaseNamer lets a node choose the base of its generated names. Without it
// the base is the node's Go type name.
type BaseNamer interface {
	BaseName() string
}

// Renderable nodes are drawn when a camera traversal reaches them. The
// renderer's current matrix already holds the node's own transform.
type Renderable interface {
	Render(args *RenderArgs) error
}

// NodeBase carries the identity of a node: its name, its holder and a
// per-instance UID. The zero value is an unnamed, detached node.
type NodeBase struct {
	mu        sync.RWMutex
	name      string
	autoNamed bool
	holder    *Container
	self      Node

	// opMu serializes attach, detach and rename of this node.
	opMu sync.Mutex

	caps atomic.Uint32

	uidOnce sync.Once
	uid     uuid.UUID
}

// AsNode returns b.
func (b *NodeBase) AsNode() *NodeBase { return b }

// init binds the outermost value and the initial name. Constructors call it.
func (b *NodeBase) init(self Node, name string) {
	b.mu.Lock()
	b.self = self
	b.name = name
	b.mu.Unlock()
	b.caps.Store(0)
}

// bind records the outermost value of the node. Capabilities are resolved
// again on next use.
func (b *NodeBase) bind(self Node) {
	b.mu.Lock()
	changed := b.self != self
	b.self = self
	b.mu.Unlock()
	if changed {
		b.caps.Store(0)
	}
}

// Self returns the outermost value the node was constructed or added as.
func (b *NodeBase) Self() Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.self == nil {
		return b
	}
	return b.self
}

// --- Identity ---

// Name returns the node's name. It is empty for a detached node whose name
// will be generated on insertion.
func (b *NodeBase) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// IsAutoNamed reports whether the current name was generated.
func (b *NodeBase) IsAutoNamed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.autoNamed
}

func (b *NodeBase) setName(name string, auto bool) {
	b.mu.Lock()
	b.name = name
	b.autoNamed = auto
	b.mu.Unlock()
}

// SetName renames the node. An attached node is re-keyed in its holder's
// collection atomically and may fail with DuplicateNameError. Setting ""
// on a detached node requests a generated name on the next insertion.
func (b *NodeBase) SetName(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	b.opMu.Lock()
	h := b.holderContainer()
	if h == nil {
		b.setName(name, false)
		b.opMu.Unlock()
		return nil
	}
	ev, err := h.coll().rekey(b.Self(), name)
	b.opMu.Unlock()
	if err != nil {
		return err
	}
	h.emitRename(ev)
	return nil
}

// UID returns a process-unique identity for this node instance.
func (b *NodeBase) UID() uuid.UUID {
	b.uidOnce.Do(func() { b.uid = uuid.New() })
	return b.uid
}

func (b *NodeBase) holderContainer() *Container {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.holder
}

func (b *NodeBase) setHolder(c *Container) {
	b.mu.Lock()
	b.holder = c
	b.mu.Unlock()
}

// IsAttached reports whether the node is held by a container (the root
// included).
func (b *NodeBase) IsAttached() bool { return b.holderContainer() != nil }

// Parent returns the container holding the node, or nil when the node is
// detached or held directly by a Root.
func (b *NodeBase) Parent() ContainerNode {
	h := b.holderContainer()
	if h == nil || h.isRoot() {
		return nil
	}
	return h.containerNode()
}

// ID returns the dotted path of names from the topmost non-root ancestor
// down to this node. It is computed on each call so that renaming an
// ancestor is reflected immediately.
func (b *NodeBase) ID() string {
	var parts []string
	for n := b; n != nil; {
		parts = append(parts, n.Name())
		h := n.holderContainer()
		if h == nil || h.isRoot() {
			break
		}
		n = &h.NodeBase
	}
	if len(parts) == 1 {
		return parts[0]
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, Separator)
}

// RelativeID returns the path from ref down to this node, suitable for
// ref.Get. A nil ref or a Root yields ID.
func (b *NodeBase) RelativeID(ref ContainerNode) (string, error) {
	if ref == nil || ref.AsContainer().isRoot() {
		return b.ID(), nil
	}
	stop := ref.AsContainer()
	var parts []string
	for n := b; ; {
		parts = append(parts, n.Name())
		h := n.holderContainer()
		if h == nil {
			return "", &HierarchyError{Op: "relative id", Node: b.ID(), Reason: "not a descendant of " + stop.ID()}
		}
		if h == stop {
			break
		}
		n = &h.NodeBase
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, Separator), nil
}

// RemoveFromParent detaches the node from its holder. No-op if detached.
func (b *NodeBase) RemoveFromParent() error {
	h := b.holderContainer()
	if h == nil {
		return nil
	}
	_, err := h.Remove(b.Self())
	return err
}

func (b *NodeBase) baseName() string {
	self := b.Self()
	if bn, ok := self.(BaseNamer); ok {
		if s := bn.BaseName(); s != "" {
			return s
		}
	}
	t := reflect.TypeOf(self)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Node"
	}
	return t.Name()
}

// --- Capabilities ---

type cameraNode interface{ AsCamera() *Camera }
type sceneNode interface{ AsScene() *Scene }
type lightNode interface{ AsLight() *Light }

// Capabilities returns the roles the node plays during traversal. They are
// resolved from the bound value once and cached.
func (b *NodeBase) Capabilities() Capability {
	if c := Capability(b.caps.Load()); c&capResolved != 0 {
		return c &^ capResolved
	}
	c := resolveCapabilities(b.Self())
	b.caps.Store(uint32(c | capResolved))
	return c
}

func resolveCapabilities(n Node) Capability {
	var c Capability
	if _, ok := n.(Renderable); ok {
		c |= CapRenderable
	}
	if _, ok := n.(ContainerNode); ok {
		c |= CapContainer
	}
	if _, ok := n.(Spatial); ok {
		c |= CapPositionable | CapRotatable
	}
	if _, ok := n.(Newtonian); ok {
		c |= CapNewtonian
	}
	if _, ok := n.(cameraNode); ok {
		c |= CapCamera
	}
	if _, ok := n.(sceneNode); ok {
		c |= CapScene
	}
	if _, ok := n.(lightNode); ok {
		c |= CapLight
	}
	return c
}

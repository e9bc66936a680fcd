package ecs

import (
	"sync"

	"github.com/google/uuid"
	"github.com/phanxgames/grove"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

// HierarchyEventType is the Donburi event type for grove collection events.
var HierarchyEventType = events.NewEventType[grove.CollectionEvent]()

// Sink is a grove EventSink that queues events for a Donburi world.
//
// Donburi worlds are not safe for concurrent use, while grove emits events
// from whichever goroutine edited the tree. EmitEvent only buffers; Flush
// and ProcessEvents hand the buffer to Donburi and must run on the
// goroutine that owns the world.
type Sink struct {
	world donburi.World

	mu      sync.Mutex
	pending []grove.CollectionEvent
}

// NewDonburiSink creates a Sink for world.
func NewDonburiSink(world donburi.World) *Sink {
	return &Sink{world: world}
}

// EmitEvent queues event. It is safe for concurrent use.
func (s *Sink) EmitEvent(event grove.CollectionEvent) {
	s.mu.Lock()
	s.pending = append(s.pending, event)
	s.mu.Unlock()
}

// Pending reports how many events wait for Flush.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush publishes the queued events on HierarchyEventType in emission
// order. Subscribers run on the next ProcessEvents of the world.
func (s *Sink) Flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, ev := range batch {
		HierarchyEventType.Publish(s.world, ev)
	}
}

// ProcessEvents flushes the queue and delivers it to the subscribers of
// HierarchyEventType.
func (s *Sink) ProcessEvents() {
	s.Flush()
	HierarchyEventType.ProcessEvents(s.world)
}

// NodeData is the component stored on every mirrored entity.
type NodeData struct {
	Node grove.Node
	ID   string
}

// NodeComponent holds the grove node behind a mirrored entity.
var NodeComponent = donburi.NewComponentType[NodeData]()

// Mirror keeps one Donburi entity per node added to a grove hierarchy.
// Nodes are tracked from the events it receives, so only nodes added after
// the mirror is subscribed get an entity.
type Mirror struct {
	world donburi.World

	mu       sync.Mutex
	entities map[uuid.UUID]donburi.Entity
}

// NewMirror subscribes a Mirror to HierarchyEventType on world.
func NewMirror(world donburi.World) *Mirror {
	m := &Mirror{world: world, entities: make(map[uuid.UUID]donburi.Entity)}
	HierarchyEventType.Subscribe(world, m.handle)
	return m
}

// Entity returns the entity mirroring n.
func (m *Mirror) Entity(n grove.Node) (donburi.Entity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[n.AsNode().UID()]
	return e, ok
}

// Len reports how many nodes are mirrored.
func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities)
}

func (m *Mirror) handle(w donburi.World, ev grove.CollectionEvent) {
	if ev.Node == nil {
		return
	}
	uid := ev.Node.AsNode().UID()

	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case grove.EventAdded:
		if _, ok := m.entities[uid]; !ok {
			e := w.Create(NodeComponent)
			NodeComponent.SetValue(w.Entry(e), NodeData{Node: ev.Node, ID: ev.Node.AsNode().ID()})
			m.entities[uid] = e
		}
		m.refreshDescendants(w, ev.Node)
	case grove.EventRemoved:
		e, ok := m.entities[uid]
		if !ok {
			return
		}
		delete(m.entities, uid)
		if w.Valid(e) {
			w.Remove(e)
		}
		m.refreshDescendants(w, ev.Node)
	case grove.EventRenaming:
		m.refreshID(w, ev.Node)
		m.refreshDescendants(w, ev.Node)
	}
}

// refreshDescendants rewrites the ids of n's mirrored descendants, which
// change whenever n is renamed or moved. It requires m.mu.
func (m *Mirror) refreshDescendants(w donburi.World, n grove.Node) {
	cn, ok := n.(grove.ContainerNode)
	if !ok {
		return
	}
	for _, d := range cn.AsContainer().Descendants() {
		m.refreshID(w, d)
	}
}

func (m *Mirror) refreshID(w donburi.World, n grove.Node) {
	e, ok := m.entities[n.AsNode().UID()]
	if !ok || !w.Valid(e) {
		return
	}
	NodeComponent.Get(w.Entry(e)).ID = n.AsNode().ID()
}

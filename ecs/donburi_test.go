package ecs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/phanxgames/grove"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

func TestNewDonburiSink(t *testing.T) {
	world := donburi.NewWorld()
	require.NotNil(t, NewDonburiSink(world))
}

func TestDonburiSink_EmitEvent(t *testing.T) {
	world := donburi.NewWorld()
	sink := NewDonburiSink(world)

	var received []grove.CollectionEvent
	HierarchyEventType.Subscribe(world, func(w donburi.World, e grove.CollectionEvent) {
		received = append(received, e)
	})

	root := grove.NewRoot(grove.Options{})
	root.SetEventSink(sink)

	a := grove.NewObject("a")
	require.NoError(t, root.Add(a))
	require.NoError(t, a.SetName("b"))
	_, err := root.Remove(a)
	require.NoError(t, err)

	// Events are queued until processed.
	assert.Empty(t, received)
	assert.Equal(t, 3, sink.Pending())
	sink.ProcessEvents()
	assert.Zero(t, sink.Pending())

	require.Len(t, received, 3)
	assert.Equal(t, grove.EventAdded, received[0].Kind)
	assert.Equal(t, "a", received[0].NewName)
	assert.Equal(t, grove.EventRenaming, received[1].Kind)
	assert.Equal(t, "a", received[1].OldName)
	assert.Equal(t, "b", received[1].NewName)
	assert.Equal(t, grove.EventRemoved, received[2].Kind)
}

func TestDonburiSink_MultipleSubscribers(t *testing.T) {
	world := donburi.NewWorld()
	sink := NewDonburiSink(world)

	var count1, count2 int
	HierarchyEventType.Subscribe(world, func(w donburi.World, e grove.CollectionEvent) { count1++ })
	HierarchyEventType.Subscribe(world, func(w donburi.World, e grove.CollectionEvent) { count2++ })

	sink.EmitEvent(grove.CollectionEvent{Kind: grove.EventAdded, Node: grove.NewContainer("x")})
	sink.Flush()
	events.ProcessAllEvents(world)

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
}

func TestMirror(t *testing.T) {
	world := donburi.NewWorld()
	mirror := NewMirror(world)

	root := grove.NewRoot(grove.Options{})
	sink := NewDonburiSink(world)
	root.SetEventSink(sink)

	parent := grove.NewContainer("parent")
	child := grove.NewObject("child")
	require.NoError(t, root.Add(parent))
	require.NoError(t, parent.Add(child))
	sink.ProcessEvents()

	require.Equal(t, 2, mirror.Len())
	e, ok := mirror.Entity(child)
	require.True(t, ok)
	assert.Equal(t, "parent.child", NodeComponent.Get(world.Entry(e)).ID)

	require.NoError(t, parent.SetName("p"))
	sink.ProcessEvents()
	require.NoError(t, child.SetName("c"))
	sink.ProcessEvents()
	assert.Equal(t, "p.c", NodeComponent.Get(world.Entry(e)).ID)

	_, err := parent.Remove(child)
	require.NoError(t, err)
	sink.ProcessEvents()
	_, ok = mirror.Entity(child)
	assert.False(t, ok)
	assert.False(t, world.Valid(e))
	assert.Equal(t, 1, mirror.Len())
}

func TestDonburiSink_ConcurrentEmit(t *testing.T) {
	const (
		writers = 8
		perEach = 200
	)
	world := donburi.NewWorld()
	sink := NewDonburiSink(world)
	root := grove.NewRoot(grove.Options{})
	root.SetEventSink(sink)

	var added int
	HierarchyEventType.Subscribe(world, func(w donburi.World, e grove.CollectionEvent) {
		if e.Kind == grove.EventAdded {
			added++
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := grove.NewContainer(fmt.Sprintf("w%d", i))
			assert.NoError(t, root.Add(c))
			for j := 0; j < perEach; j++ {
				assert.NoError(t, c.Add(grove.NewObject("")))
			}
		}(i)
	}

	// Deliveries interleave with the writers.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			sink.ProcessEvents()
		}
	}
	sink.ProcessEvents()

	assert.Equal(t, writers*(perEach+1), added)
	assert.Zero(t, sink.Pending())
}

func TestMirror_RenameRefreshesDescendants(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, root *grove.Root, parent *grove.Container)
		want   []string
	}{
		{
			name: "rename",
			change: func(t *testing.T, _ *grove.Root, parent *grove.Container) {
				require.NoError(t, parent.SetName("renamed"))
			},
			want: []string{"renamed.child", "renamed.child.leaf"},
		},
		{
			name: "move",
			change: func(t *testing.T, root *grove.Root, parent *grove.Container) {
				other := grove.NewContainer("other")
				require.NoError(t, root.Add(other))
				require.NoError(t, parent.RemoveFromParent())
				require.NoError(t, other.Add(parent))
			},
			want: []string{"other.parent.child", "other.parent.child.leaf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := donburi.NewWorld()
			mirror := NewMirror(world)
			sink := NewDonburiSink(world)
			root := grove.NewRoot(grove.Options{})
			root.SetEventSink(sink)

			parent := grove.NewContainer("parent")
			child := grove.NewObject("child")
			leaf := grove.NewObject("leaf")
			require.NoError(t, root.Add(parent))
			require.NoError(t, parent.Add(child))
			require.NoError(t, child.Add(leaf))
			sink.ProcessEvents()

			tt.change(t, root, parent)
			sink.ProcessEvents()

			var got []string
			for _, n := range []grove.Node{child, leaf} {
				e, ok := mirror.Entity(n)
				require.True(t, ok)
				got = append(got, NodeComponent.Get(world.Entry(e)).ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

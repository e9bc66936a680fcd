package grove

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionAutoNames(t *testing.T) {
	var c Collection
	a := NewObject("")
	b := NewObject("")
	require.NoError(t, c.Add(a))
	require.NoError(t, c.Add(b))

	assert.Equal(t, "Object #001", a.Name())
	assert.Equal(t, "Object #002", b.Name())
	assert.True(t, a.IsAutoNamed())
	assert.Equal(t, []string{"Object #001", "Object #002"}, c.Names())
}

func TestCollectionAutoNameFillsGaps(t *testing.T) {
	var c Collection
	a, b := NewContainer(""), NewContainer("")
	require.NoError(t, c.Add(a))
	require.NoError(t, c.Add(b))

	ok, err := c.RemoveNode(a)
	require.NoError(t, err)
	require.True(t, ok)

	d := NewContainer("")
	require.NoError(t, c.Add(d))
	assert.Equal(t, "Container #001", d.Name())
}

func TestCollectionAutoNameUsesBaseNamer(t *testing.T) {
	var c Collection
	tex := NewTexture("", "art/bricks.png")
	require.NoError(t, c.Add(tex))
	assert.Equal(t, "bricks #001", tex.Name())
}

func TestCollectionDuplicateName(t *testing.T) {
	var c Collection
	require.NoError(t, c.Add(NewObject("a")))

	err := c.Add(NewObject("a"))
	var dup *DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Name)
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, 1, c.Len())
}

func TestCollectionNameSpaceExhausted(t *testing.T) {
	root := NewRoot(Options{MaxAutoNameIndex: 3})
	require.NoError(t, root.Add(NewContainer(""), NewContainer("")))

	err := root.Add(NewContainer(""))
	var ex *NameSpaceExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "Container", ex.Base)
	assert.Equal(t, 2, root.Len())
}

func TestCollectionRemove(t *testing.T) {
	var c Collection
	a := NewObject("a")
	require.NoError(t, c.Add(a))

	ok, err := c.Remove("a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Remove("a")
	require.NoError(t, err)
	assert.False(t, ok, "second remove is a no-op")
}

func TestCollectionRemoveNodeChecksReference(t *testing.T) {
	var c Collection
	a := NewObject("a")
	require.NoError(t, c.Add(a))

	impostor := NewObject("a")
	ok, err := c.RemoveNode(impostor)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, c.ContainsNode(a))
	assert.False(t, c.ContainsNode(impostor))
}

func TestCollectionRename(t *testing.T) {
	var c Collection
	a := NewObject("a")
	require.NoError(t, c.Add(a))
	require.NoError(t, c.Add(NewObject("b")))

	require.NoError(t, c.Rename(a, "c"))
	assert.Equal(t, "c", a.Name())
	assert.False(t, c.Contains("a"))
	got, ok := c.Get("c")
	require.True(t, ok)
	assert.Same(t, a, got)

	err := c.Rename(a, "b")
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, "c", a.Name(), "failed rename leaves the node untouched")
	assert.Equal(t, []string{"b", "c"}, c.Names())
}

func TestCollectionRenameNonMember(t *testing.T) {
	var c Collection
	err := c.Rename(NewObject("x"), "y")
	assert.ErrorIs(t, err, ErrConsistency)
}

func TestCollectionRejectsSeparator(t *testing.T) {
	var c Collection
	err := c.Add(NewObject("a.b"))
	var inv *InvalidNameError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "a.b", inv.Name)
}

func TestCollectionClear(t *testing.T) {
	var c Collection
	require.NoError(t, c.Add(NewObject("a")))
	require.NoError(t, c.Add(NewObject("b")))

	var removed []string
	cancel := c.Observe(func(ev CollectionEvent) {
		if ev.Kind == EventRemoved {
			removed = append(removed, ev.OldName)
		}
	})
	defer cancel()

	out := c.Clear()
	assert.Len(t, out, 2)
	assert.Zero(t, c.Len())
	assert.Equal(t, []string{"a", "b"}, removed)
}

func TestCollectionObserve(t *testing.T) {
	var c Collection
	var events []CollectionEvent
	cancel := c.Observe(func(ev CollectionEvent) { events = append(events, ev) })

	a := NewObject("a")
	require.NoError(t, c.Add(a))
	require.NoError(t, c.Rename(a, "b"))
	_, err := c.Remove("b")
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, EventAdded, events[0].Kind)
	assert.Equal(t, EventRenaming, events[1].Kind)
	assert.Equal(t, "a", events[1].OldName)
	assert.Equal(t, "b", events[1].NewName)
	assert.Equal(t, EventRemoved, events[2].Kind)

	cancel()
	cancel()
	require.NoError(t, c.Add(NewObject("z")))
	assert.Len(t, events, 3)
}

func TestCollectionSnapshotIsStable(t *testing.T) {
	var c Collection
	require.NoError(t, c.Add(NewObject("a")))
	snap := c.Snapshot()
	require.NoError(t, c.Add(NewObject("b")))
	assert.Len(t, snap, 1)

	var seen []string
	for n := range c.All {
		seen = append(seen, n.AsNode().Name())
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestCollectionConcurrentAdd(t *testing.T) {
	root := NewRoot(Options{Retry: RetryPolicy{Limit: 1 << 20, Spin: 1}})
	const workers, per = 8, 50

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range per {
				if i%2 == 0 {
					assert.NoError(t, root.Add(NewObject("")))
				} else {
					assert.NoError(t, root.Add(NewObject(fmt.Sprintf("w%d-%d", w, i))))
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*per, root.Len())
	seen := map[string]bool{}
	for _, n := range root.Children() {
		name := n.AsNode().Name()
		assert.False(t, seen[name], "duplicate %s", name)
		seen[name] = true
		got, ok := root.Child(name)
		require.True(t, ok)
		assert.Same(t, n, got)
	}
}

func TestCollectionConcurrentSameName(t *testing.T) {
	root := NewRoot(Options{Retry: RetryPolicy{Limit: 1 << 20, Spin: 1}})
	const workers = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, dups int
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := root.Add(NewObject("contested"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrDuplicateName):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, dups)
}

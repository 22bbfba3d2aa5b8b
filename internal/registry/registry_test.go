package registry

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thing struct {
	id   uint64
	name string
	ref  *thing
}

func TestGetOrCreate(t *testing.T) {
	t.Parallel()

	m := New[thing]("things")
	builds := 0

	a, created := m.GetOrCreate(1, func() *thing {
		builds++
		return &thing{id: 1, name: "a"}
	})
	require.True(t, created)

	b, created := m.GetOrCreate(1, func() *thing {
		builds++
		return &thing{id: 1, name: "b"}
	})
	assert.False(t, created)
	assert.Same(t, a, b)
	assert.Equal(t, 1, builds)
	assert.Equal(t, "things", m.Kind())
}

func TestGetOrCreateReentrant(t *testing.T) {
	t.Parallel()

	m := New[thing]("things")

	outer, created := m.GetOrCreate(1, func() *thing {
		// Not visible while still under construction
		assert.Nil(t, m.Get(1))

		inner, created := m.GetOrCreate(2, func() *thing { return &thing{id: 2} })
		assert.True(t, created)
		return &thing{id: 1, ref: inner}
	})
	require.True(t, created)
	assert.Same(t, outer.ref, m.Get(2))
	assert.Same(t, outer, m.Get(1))
}

func TestGetOrCreateFirstPublishedWins(t *testing.T) {
	t.Parallel()

	m := New[thing]("things")
	var first *thing

	got, created := m.GetOrCreate(1, func() *thing {
		first, _ = m.GetOrCreate(1, func() *thing { return &thing{id: 1, name: "first"} })
		return &thing{id: 1, name: "second"}
	})
	assert.False(t, created)
	assert.Same(t, first, got)
}

func TestRemoveAndPut(t *testing.T) {
	t.Parallel()

	m := New[thing]("things")
	v := &thing{id: 5}
	m.Put(5, v)
	assert.Same(t, v, m.Get(5))

	m.Remove(5)
	assert.Nil(t, m.Get(5))

	m.Put(5, v)
	m.Put(5, nil)
	assert.Zero(t, m.Len())
}

func TestRegistryDoesNotPin(t *testing.T) {
	m := New[thing]("things")
	kept := &thing{id: 1}
	m.Put(1, kept)

	func() {
		m.Put(2, &thing{id: 2, name: "garbage"})
	}()

	for i := 0; i < 5 && m.Get(2) != nil; i++ {
		runtime.GC()
	}

	assert.Nil(t, m.Get(2))
	m.Put(3, &thing{id: 3})
	for i := 0; i < 5; i++ {
		runtime.GC()
	}
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
	assert.Same(t, kept, m.Get(1))
	runtime.KeepAlive(kept)
}

func TestRange(t *testing.T) {
	t.Parallel()

	m := New[thing]("things")
	a, b := &thing{id: 1}, &thing{id: 2}
	m.Put(1, a)
	m.Put(2, b)

	seen := map[uint64]*thing{}
	m.Range(func(id uint64, v *thing) bool {
		seen[id] = v
		return true
	})
	assert.Len(t, seen, 2)

	count := 0
	m.Range(func(uint64, *thing) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

package history

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type msg struct {
	id   uint64
	body string
}

func (m *msg) ID() uint64 { return m.id }

func idsOf(b *Buffer[*msg]) []uint64 {
	out := make([]uint64, 0, b.Len())
	for _, m := range b.Items() {
		out = append(out, m.id)
	}
	return out
}

func strictlyDescending(t *testing.T, b *Buffer[*msg]) {
	t.Helper()
	ids := idsOf(b)
	for i := 1; i < len(ids); i++ {
		require.Greater(t, ids[i-1], ids[i], "buffer %v", ids)
	}
}

func TestSequentialInsertEvictsOldest(t *testing.T) {
	t.Parallel()

	b := New[*msg](10)
	for id := uint64(1); id <= 15; id++ {
		got, inserted := b.InsertNew(&msg{id: id})
		assert.True(t, inserted)
		assert.Equal(t, id, got.id)
	}

	assert.Equal(t, 10, b.Len())
	assert.Equal(t, []uint64{15, 14, 13, 12, 11, 10, 9, 8, 7, 6}, idsOf(b))
}

func TestDuplicateReturnsOriginal(t *testing.T) {
	t.Parallel()

	b := New[*msg](10)
	original := &msg{id: 50, body: "original"}
	b.InsertNew(original)
	b.InsertNew(&msg{id: 40})
	older := &msg{id: 40, body: "first"}

	got, inserted := b.InsertNew(&msg{id: 50, body: "replacement"})
	assert.False(t, inserted)
	assert.Same(t, original, got)

	first, _ := b.Get(40)
	got, inserted = b.InsertOutOfOrder(older)
	assert.False(t, inserted)
	assert.Same(t, first, got)

	got, inserted = b.InsertOlder(&msg{id: 50})
	assert.False(t, inserted)
	assert.Same(t, original, got)
	assert.Equal(t, 2, b.Len())
}

func TestRandomInsertsStayOrdered(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	for _, capacity := range []int{0, 1, 5, 10} {
		b := New[*msg](capacity)
		if capacity == 5 {
			b.Grow(time.Now(), time.Minute)
		}
		for i := 0; i < 500; i++ {
			m := &msg{id: uint64(rng.Intn(300) + 1)}
			switch rng.Intn(3) {
			case 0:
				b.InsertNew(m)
			case 1:
				b.InsertOutOfOrder(m)
			default:
				b.InsertOlder(m)
			}
			strictlyDescending(t, b)
			if !b.Unbounded() {
				require.LessOrEqual(t, b.Len(), capacity)
			}
		}
	}
}

func TestBoundedDropsMessagesPastWindow(t *testing.T) {
	t.Parallel()

	b := New[*msg](3)
	for _, id := range []uint64{30, 20, 10} {
		b.InsertOlder(&msg{id: id})
	}

	_, inserted := b.InsertOlder(&msg{id: 5})
	assert.False(t, inserted)
	_, inserted = b.InsertOutOfOrder(&msg{id: 1})
	assert.False(t, inserted)

	// Lands inside the window and pushes the oldest out
	_, inserted = b.InsertOutOfOrder(&msg{id: 25})
	assert.True(t, inserted)
	assert.Equal(t, []uint64{30, 25, 20}, idsOf(b))

	zero := New[*msg](0)
	_, inserted = zero.InsertNew(&msg{id: 1})
	assert.False(t, inserted)
	assert.Zero(t, zero.Len())
}

func TestRemoveBatchMergesWithFallback(t *testing.T) {
	t.Parallel()

	b := New[*msg](10)
	for id := uint64(10); id <= 50; id += 10 {
		b.InsertNew(&msg{id: id})
	}
	global := map[uint64]*msg{7: {id: 7}, 45: {id: 45}}
	fallback := func(id uint64) (*msg, bool) {
		m, ok := global[id]
		return m, ok
	}

	// 30 is local, 7 only global, 99 nowhere
	got := b.RemoveBatch([]uint64{7, 99, 30}, fallback)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(30), got[0].id)
	assert.Equal(t, uint64(7), got[1].id)
	assert.Equal(t, []uint64{50, 40, 20, 10}, idsOf(b))

	// Duplicates collapse, interleaved misses resolve through fallback
	got = b.RemoveBatch([]uint64{10, 45, 50, 10, 60}, fallback)
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{50, 45, 10}, []uint64{got[0].id, got[1].id, got[2].id})
	assert.Equal(t, []uint64{40, 20}, idsOf(b))

	assert.Empty(t, b.RemoveBatch([]uint64{1, 2}, nil))
	assert.Nil(t, b.RemoveBatch(nil, fallback))
}

func TestRemoveBatchLastComparisonExhaustsWindow(t *testing.T) {
	t.Parallel()

	b := New[*msg](10)
	b.InsertNew(&msg{id: 5})
	b.InsertNew(&msg{id: 9})

	global := map[uint64]*msg{3: {id: 3}, 1: {id: 1}}
	got := b.RemoveBatch([]uint64{5, 3, 1}, func(id uint64) (*msg, bool) {
		m, ok := global[id]
		return m, ok
	})
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{9}, idsOf(b))
}

func TestGrowAndDemote(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := New[*msg](3)
	b.Grow(now, time.Minute)
	for id := uint64(1); id <= 8; id++ {
		b.InsertNew(&msg{id: id})
	}
	b.MarkEnd()
	assert.Equal(t, 8, b.Len())
	assert.False(t, b.Expired(now.Add(59*time.Second)))
	assert.True(t, b.Expired(now.Add(time.Minute)))

	assert.Equal(t, 5, b.Demote())
	assert.Equal(t, []uint64{8, 7, 6}, idsOf(b))
	assert.False(t, b.Unbounded())
	assert.False(t, b.ReachedEnd())
	assert.True(t, b.Deadline().IsZero())
	assert.False(t, b.Expired(now.Add(time.Hour)))
}

func TestRemoveDemotesOnceBackUnderCapacity(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := New[*msg](3)
	b.Grow(now, time.Minute)
	for id := uint64(1); id <= 4; id++ {
		b.InsertNew(&msg{id: id})
	}
	b.MarkEnd()

	_, ok := b.Remove(2)
	require.True(t, ok)
	assert.False(t, b.Unbounded())
	assert.True(t, b.Deadline().IsZero())
	assert.True(t, b.ReachedEnd())
	assert.Equal(t, []uint64{4, 3, 1}, idsOf(b))

	_, ok = b.Remove(2)
	assert.False(t, ok)
}

func TestSetCapacity(t *testing.T) {
	t.Parallel()

	b := New[*msg](-1)
	assert.Equal(t, DefaultCapacity, b.Capacity())
	for id := uint64(1); id <= 10; id++ {
		b.InsertNew(&msg{id: id})
	}
	b.SetCapacity(4)
	assert.Equal(t, []uint64{10, 9, 8, 7}, idsOf(b))

	newest, _ := b.Newest()
	oldest, _ := b.Oldest()
	assert.Equal(t, uint64(10), newest.id)
	assert.Equal(t, uint64(7), oldest.id)
	assert.Equal(t, 2, b.Index(8))
	assert.Equal(t, -1, b.Index(3))

	assert.Equal(t, 0, b.Below(11))
	assert.Equal(t, 3, b.Below(8))
	assert.Equal(t, 4, b.Below(2))

	b.Clear()
	assert.Zero(t, b.Len())
}

func BenchmarkInsertNew(b *testing.B) {
	buf := New[*msg](DefaultCapacity)
	msgs := make([]*msg, 1024)
	for i := range msgs {
		msgs[i] = &msg{id: uint64(i)}
	}
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m := msgs[i%len(msgs)]
		if i%len(msgs) == 0 {
			buf.Clear()
		}
		buf.InsertNew(m)
	}
}

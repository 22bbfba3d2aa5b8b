// Package history holds the per-channel message window.
//
// A Buffer keeps messages newest first, strictly descending by ID. In bounded
// mode it retains at most Capacity messages; when a consumer pages further back
// the buffer is grown to unbounded mode and a demotion deadline is scheduled so
// repeated scrolling does not thrash between the two modes. The periodic sweep
// demotes expired buffers back to their capacity.
package history

import (
	"slices"
	"sort"
	"time"

	"discord-entity-cache/internal/ring"
)

// DefaultCapacity is the window kept per channel unless configured otherwise
const DefaultCapacity = 10

// Identifiable is anything keyed by a snowflake
type Identifiable interface {
	ID() uint64
}

// Buffer is a message window. Not safe for concurrent use.
type Buffer[M Identifiable] struct {
	items      *ring.Deque[M]
	capacity   int
	unbounded  bool
	reachedEnd bool
	deadline   time.Time
}

// New creates a bounded buffer; negative capacity means DefaultCapacity
func New[M Identifiable](capacity int) *Buffer[M] {
	if capacity < 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[M]{
		items:    ring.New[M](capacity),
		capacity: capacity,
	}
}

func (b *Buffer[M]) Len() int {
	return b.items.Len()
}

func (b *Buffer[M]) Capacity() int {
	return b.capacity
}

// SetCapacity changes the bounded window size, truncating immediately when bounded
func (b *Buffer[M]) SetCapacity(capacity int) {
	if capacity < 0 {
		capacity = DefaultCapacity
	}
	b.capacity = capacity
	if !b.unbounded && b.items.Len() > capacity {
		b.items.Truncate(capacity)
		b.reachedEnd = false
	}
}

// Unbounded reports whether the buffer is temporarily holding more than its capacity
func (b *Buffer[M]) Unbounded() bool {
	return b.unbounded
}

// ReachedEnd reports whether upstream history is known to be exhausted
func (b *Buffer[M]) ReachedEnd() bool {
	return b.reachedEnd
}

// MarkEnd records that a backward page came back short
func (b *Buffer[M]) MarkEnd() {
	b.reachedEnd = true
}

// Deadline is the scheduled demotion time, zero when none
func (b *Buffer[M]) Deadline() time.Time {
	return b.deadline
}

func (b *Buffer[M]) At(i int) M {
	return b.items.At(i)
}

// Items returns a newest-first snapshot
func (b *Buffer[M]) Items() []M {
	out := make([]M, b.items.Len())
	for i := range out {
		out[i] = b.items.At(i)
	}
	return out
}

func (b *Buffer[M]) Newest() (M, bool) {
	return b.items.Front()
}

func (b *Buffer[M]) Oldest() (M, bool) {
	return b.items.Back()
}

// Index returns the slot of id or -1
func (b *Buffer[M]) Index(id uint64) int {
	i := b.search(id)
	if i < b.items.Len() && b.items.At(i).ID() == id {
		return i
	}
	return -1
}

// Below returns the first slot holding a message older than id. Iterators
// use it to resume after a message that may since have been removed.
func (b *Buffer[M]) Below(id uint64) int {
	return sort.Search(b.items.Len(), func(i int) bool {
		return b.items.At(i).ID() < id
	})
}

// Get returns the buffered message with id
func (b *Buffer[M]) Get(id uint64) (M, bool) {
	if i := b.Index(id); i >= 0 {
		return b.items.At(i), true
	}
	var zero M
	return zero, false
}

// InsertNew handles real-time arrival. The common case is a message newer than
// everything buffered and costs O(1). The returned message is authoritative:
// for a duplicate ID it is the original, not m.
func (b *Buffer[M]) InsertNew(m M) (M, bool) {
	newest, ok := b.items.Front()
	if !ok {
		if !b.fits(0) {
			return m, false
		}
		b.items.PushFront(m)
		return m, true
	}

	id := m.ID()
	switch newestID := newest.ID(); {
	case id > newestID:
		if !b.fits(0) {
			return m, false
		}
		b.items.PushFront(m)
		b.evict()
		return m, true
	case id == newestID:
		return newest, false
	default:
		return b.InsertOutOfOrder(m)
	}
}

// InsertOutOfOrder binary-searches the slot for m. A message that would land
// past the bounded window is not kept.
func (b *Buffer[M]) InsertOutOfOrder(m M) (M, bool) {
	id := m.ID()
	i := b.search(id)
	if i < b.items.Len() {
		if existing := b.items.At(i); existing.ID() == id {
			return existing, false
		}
	}
	if !b.fits(i) {
		return m, false
	}

	b.items.Insert(i, m)
	b.evict()
	return m, true
}

// InsertOlder is used while paging backward; strictly older messages are a tail push
func (b *Buffer[M]) InsertOlder(m M) (M, bool) {
	oldest, ok := b.items.Back()
	if ok && m.ID() >= oldest.ID() {
		return b.InsertOutOfOrder(m)
	}
	if !b.fits(b.items.Len()) {
		return m, false
	}
	b.items.PushBack(m)
	return m, true
}

// Remove drops the message with id from the window
func (b *Buffer[M]) Remove(id uint64) (M, bool) {
	i := b.Index(id)
	if i < 0 {
		var zero M
		return zero, false
	}
	m := b.items.RemoveAt(i)
	b.afterRemove()
	return m, true
}

// RemoveBatch removes every id in one linear merge over the window and the
// descending-sorted id list. IDs not in the window are resolved with fallback
// (which may be nil). The result is newest first, one entry per id found.
func (b *Buffer[M]) RemoveBatch(ids []uint64, fallback func(id uint64) (M, bool)) []M {
	if len(ids) == 0 {
		return nil
	}

	targets := slices.Clone(ids)
	slices.SortFunc(targets, func(a, c uint64) int {
		switch {
		case a > c:
			return -1
		case a < c:
			return 1
		default:
			return 0
		}
	})
	targets = slices.Compact(targets)

	out := make([]M, 0, len(targets))
	miss := func(id uint64) {
		if fallback == nil {
			return
		}
		if m, ok := fallback(id); ok {
			out = append(out, m)
		}
	}

	n := b.items.Len()
	w, j := 0, 0
	for r := 0; r < n; r++ {
		m := b.items.At(r)
		id := m.ID()

		// Targets newer than this entry are not in the window
		for j < len(targets) && targets[j] > id {
			miss(targets[j])
			j++
		}
		if j < len(targets) && targets[j] == id {
			out = append(out, m)
			j++
			continue
		}
		if w != r {
			b.items.Set(w, m)
		}
		w++
	}

	// Window exhausted, everything left is older than the oldest entry
	for ; j < len(targets); j++ {
		miss(targets[j])
	}

	if w < n {
		b.items.Truncate(w)
		b.afterRemove()
	}
	return out
}

// Grow switches to unbounded mode until now+idle, extending an existing deadline
func (b *Buffer[M]) Grow(now time.Time, idle time.Duration) {
	b.unbounded = true
	b.deadline = now.Add(idle)
}

// Expired reports whether the scheduled demotion is due
func (b *Buffer[M]) Expired(now time.Time) bool {
	return b.unbounded && !b.deadline.IsZero() && !now.Before(b.deadline)
}

// Demote returns to bounded mode, keeping the newest Capacity messages.
// The end-of-history mark is reset so the next backward scroll re-validates it.
// It returns the messages dropped.
func (b *Buffer[M]) Demote() int {
	dropped := 0
	if n := b.items.Len(); n > b.capacity {
		dropped = n - b.capacity
		b.items.Truncate(b.capacity)
	}
	b.unbounded = false
	b.reachedEnd = false
	b.deadline = time.Time{}
	b.items.Shrink()
	return dropped
}

// Clear empties the window and forgets the end mark
func (b *Buffer[M]) Clear() {
	b.items.Clear()
	b.items.Shrink()
	b.unbounded = false
	b.reachedEnd = false
	b.deadline = time.Time{}
}

// search returns the first slot whose ID is <= id
func (b *Buffer[M]) search(id uint64) int {
	return sort.Search(b.items.Len(), func(i int) bool {
		return b.items.At(i).ID() <= id
	})
}

// fits reports whether a message may occupy slot i
func (b *Buffer[M]) fits(i int) bool {
	return b.unbounded || i < b.capacity
}

func (b *Buffer[M]) evict() {
	if b.unbounded {
		return
	}
	for b.items.Len() > b.capacity {
		b.items.PopBack()
	}
}

// afterRemove demotes early once a grown buffer is back within its capacity
func (b *Buffer[M]) afterRemove() {
	if b.unbounded && !b.deadline.IsZero() && b.items.Len() <= b.capacity {
		// Nothing is truncated, so the end mark still holds
		end := b.reachedEnd
		b.Demote()
		b.reachedEnd = end
	}
}

package ring

// minSize must be power of 2 for fast modulo
const minSize = 8

// Deque is a double-ended ring buffer with random access.
// Storage length is always a power of 2 so wraparound is a mask, not a modulo.
// Not safe for concurrent use.
type Deque[T any] struct {
	data []T
	head int // index of the front element
	n    int
	mask int
}

// New creates a deque with room for at least size elements before growing
func New[T any](size int) *Deque[T] {
	d := &Deque[T]{}
	if size > 0 {
		d.resize(roundUp(size))
	}
	return d
}

func (d *Deque[T]) Len() int {
	return d.n
}

// Cap is the current storage length
func (d *Deque[T]) Cap() int {
	return len(d.data)
}

// At returns the i-th element from the front
func (d *Deque[T]) At(i int) T {
	if i < 0 || i >= d.n {
		panic("ring: index out of range")
	}
	return d.data[(d.head+i)&d.mask]
}

// Set overwrites the i-th element from the front
func (d *Deque[T]) Set(i int, v T) {
	if i < 0 || i >= d.n {
		panic("ring: index out of range")
	}
	d.data[(d.head+i)&d.mask] = v
}

func (d *Deque[T]) Front() (T, bool) {
	if d.n == 0 {
		var zero T
		return zero, false
	}
	return d.data[d.head], true
}

func (d *Deque[T]) Back() (T, bool) {
	if d.n == 0 {
		var zero T
		return zero, false
	}
	return d.data[(d.head+d.n-1)&d.mask], true
}

func (d *Deque[T]) PushFront(v T) {
	d.grow()
	d.head = (d.head - 1) & d.mask
	d.data[d.head] = v
	d.n++
}

func (d *Deque[T]) PushBack(v T) {
	d.grow()
	d.data[(d.head+d.n)&d.mask] = v
	d.n++
}

func (d *Deque[T]) PopFront() (T, bool) {
	var zero T
	if d.n == 0 {
		return zero, false
	}
	v := d.data[d.head]
	d.data[d.head] = zero // release reference for GC
	d.head = (d.head + 1) & d.mask
	d.n--
	return v, true
}

func (d *Deque[T]) PopBack() (T, bool) {
	var zero T
	if d.n == 0 {
		return zero, false
	}
	idx := (d.head + d.n - 1) & d.mask
	v := d.data[idx]
	d.data[idx] = zero
	d.n--
	return v, true
}

// Insert places v so that it becomes the i-th element, shifting the shorter side
func (d *Deque[T]) Insert(i int, v T) {
	if i < 0 || i > d.n {
		panic("ring: index out of range")
	}
	if i == 0 {
		d.PushFront(v)
		return
	}
	if i == d.n {
		d.PushBack(v)
		return
	}

	d.grow()
	if i < d.n/2 {
		// Shift the front part one slot left
		d.head = (d.head - 1) & d.mask
		for j := 0; j < i; j++ {
			d.data[(d.head+j)&d.mask] = d.data[(d.head+j+1)&d.mask]
		}
	} else {
		// Shift the back part one slot right
		for j := d.n; j > i; j-- {
			d.data[(d.head+j)&d.mask] = d.data[(d.head+j-1)&d.mask]
		}
	}
	d.data[(d.head+i)&d.mask] = v
	d.n++
}

// RemoveAt deletes and returns the i-th element
func (d *Deque[T]) RemoveAt(i int) T {
	if i < 0 || i >= d.n {
		panic("ring: index out of range")
	}
	v := d.data[(d.head+i)&d.mask]
	var zero T

	if i < d.n/2 {
		for j := i; j > 0; j-- {
			d.data[(d.head+j)&d.mask] = d.data[(d.head+j-1)&d.mask]
		}
		d.data[d.head] = zero
		d.head = (d.head + 1) & d.mask
	} else {
		for j := i; j < d.n-1; j++ {
			d.data[(d.head+j)&d.mask] = d.data[(d.head+j+1)&d.mask]
		}
		d.data[(d.head+d.n-1)&d.mask] = zero
	}
	d.n--
	return v
}

// Truncate keeps the first n elements
func (d *Deque[T]) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	var zero T
	for d.n > n {
		d.data[(d.head+d.n-1)&d.mask] = zero
		d.n--
	}
}

// Shrink reallocates storage to the smallest power of 2 holding the elements
func (d *Deque[T]) Shrink() {
	size := roundUp(d.n)
	if d.n == 0 {
		size = 0
	}
	if size < len(d.data) {
		d.resize(size)
	}
}

func (d *Deque[T]) Clear() {
	clear(d.data)
	d.head = 0
	d.n = 0
}

func (d *Deque[T]) grow() {
	if d.n < len(d.data) {
		return
	}
	size := len(d.data) * 2
	if size < minSize {
		size = minSize
	}
	d.resize(size)
}

func (d *Deque[T]) resize(size int) {
	data := make([]T, size)
	for i := 0; i < d.n; i++ {
		data[i] = d.data[(d.head+i)&d.mask]
	}
	d.data = data
	d.head = 0
	d.mask = size - 1
	if size == 0 {
		d.mask = 0
	}
}

func roundUp(n int) int {
	size := minSize
	for size < n {
		size <<= 1
	}
	return size
}

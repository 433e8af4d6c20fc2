package queue

// Ring is a fixed-capacity FIFO ring buffer. It is not safe for concurrent
// use; Outbound serializes access.
type Ring[T any] struct {
	buf   []T
	head  int // read position
	tail  int // write position
	count int
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends item. When the ring is full the oldest item is removed first
// and returned with evicted=true.
func (r *Ring[T]) Push(item T) (old T, evicted bool) {
	if r.count == len(r.buf) {
		old, _ = r.Pop()
		evicted = true
	}

	r.buf[r.tail] = item
	r.tail = (r.tail + 1) % len(r.buf)
	r.count++
	return old, evicted
}

// Pop removes and returns the oldest item.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}

	item := r.buf[r.head]
	r.buf[r.head] = zero // Clear reference for GC
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return item, true
}

// Drain removes every item and returns them oldest first.
func (r *Ring[T]) Drain() []T {
	if r.count == 0 {
		return nil
	}

	result := make([]T, 0, r.count)
	for r.count > 0 {
		item, _ := r.Pop()
		result = append(result, item)
	}
	r.head, r.tail = 0, 0
	return result
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

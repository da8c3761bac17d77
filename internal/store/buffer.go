package store

import "sync"

// growable is an unbounded ring buffer that doubles its capacity as it
// approaches full. The async writer uses it so a slow or down database
// backpressures into memory instead of stalling the decision loop.
type growable[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int
	tail     int
	count    int
	capacity int
	closed   bool
}

func newGrowable[T any](initialCapacity int) *growable[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &growable[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
}

// push appends an item. Returns false once the buffer is closed.
func (b *growable[T]) push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	// Grow at 70% so pushes never block on a full ring.
	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	return true
}

// drain removes and returns up to max items, all items when max <= 0.
func (b *growable[T]) drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.buf[b.head]
		var zero T
		b.buf[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.count--
	}
	return out
}

func (b *growable[T]) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *growable[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// grow doubles capacity. Caller holds the lock.
func (b *growable[T]) grow() {
	newBuf := make([]T, b.capacity*2)
	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}
	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity *= 2
}

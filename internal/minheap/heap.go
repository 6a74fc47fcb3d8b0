// Package minheap provides a binary min-heap ordered by a caller supplied
// comparator.
package minheap

// Comparator reports the order of a and b: negative when a sorts first,
// positive when b does, and zero when they are equal.
type Comparator[T any] func(a, b T) int

// Heap is a binary min-heap. The zero value is not usable; build one with New.
// It only supports insertion, peeking at the minimum and removing it. Removal
// of arbitrary elements is left to the owner (typically by lazy deletion).
type Heap[T any] struct {
	items []T
	cmp   Comparator[T]
}

// New returns an empty heap ordered by cmp.
func New[T any](cmp Comparator[T]) *Heap[T] {
	return &Heap[T]{cmp: cmp}
}

// Len returns the number of elements in the heap.
func (h *Heap[T]) Len() int { return len(h.items) }

// Push inserts item.
func (h *Heap[T]) Push(item T) {
	h.items = append(h.items, item)
	h.siftUp(len(h.items) - 1)
}

// Peek returns the minimum without removing it. ok is false when the heap is
// empty.
func (h *Heap[T]) Peek() (item T, ok bool) {
	if len(h.items) == 0 {
		return item, false
	}
	return h.items[0], true
}

// Pop removes and returns the minimum. ok is false when the heap is empty.
func (h *Heap[T]) Pop() (item T, ok bool) {
	n := len(h.items)
	if n == 0 {
		return item, false
	}

	first := h.items[0]
	last := h.items[n-1]

	var zero T
	h.items[n-1] = zero // avoid holding a reference
	h.items = h.items[:n-1]

	if n > 1 {
		h.items[0] = last
		h.siftDown(0)
	}
	return first, true
}

func (h *Heap[T]) siftUp(i int) {
	node := h.items[i]
	for i > 0 {
		parent := (i - 1) / 2
		if h.cmp(h.items[parent], node) <= 0 {
			break
		}
		h.items[i] = h.items[parent]
		i = parent
	}
	h.items[i] = node
}

func (h *Heap[T]) siftDown(i int) {
	n := len(h.items)
	node := h.items[i]
	half := n / 2

	for i < half {
		left := 2*i + 1
		right := left + 1

		// pick the smaller child, then stop once it no longer beats node
		child := left
		if right < n && h.cmp(h.items[right], h.items[left]) < 0 {
			child = right
		}
		if h.cmp(h.items[child], node) >= 0 {
			break
		}
		h.items[i] = h.items[child]
		i = child
	}
	h.items[i] = node
}

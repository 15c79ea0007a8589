package circularbuffer

import "sync"

type CircularBuffer[T any] struct {
	values   []T
	position int
	full     bool
	mu       sync.Mutex
}

func New[T any](size int) *CircularBuffer[T] {
	if size < 1 {
		size = 1
	}
	v := make([]T, size)

	return &CircularBuffer[T]{
		values:   v,
		position: 0,
	}
}

func (cb *CircularBuffer[T]) Push(element T) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.values[cb.position] = element
	cb.position++

	if cb.position >= len(cb.values) {
		cb.position = 0
		cb.full = true
	}
}

// Len is the number of pushed elements still held
func (cb *CircularBuffer[T]) Len() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.full {
		return len(cb.values)
	}
	return cb.position
}

// Each iterates over the held elements in the order they were inserted
func (cb *CircularBuffer[T]) Each(fn func(T)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	count := cb.position
	i := 0
	if cb.full {
		count = len(cb.values)
		i = cb.position
	}

	for n := 0; n < count; n++ {
		fn(cb.values[i])

		i++
		if i >= len(cb.values) {
			i = 0
		}
	}
}

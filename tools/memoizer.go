package tools

import "sync"

// Memoizer is a read-through cache over a single enumerator. Every cursor
// returned by Enumerate replays the cached prefix and then pulls new items
// from the source, so many consumers can walk one lazily produced sequence.
type Memoizer[T any] struct {
	mu       sync.Mutex
	source   Enumerator[T]
	cache    []T
	finished bool
}

func NewMemoizer[T any](source Enumerator[T]) *Memoizer[T] {
	return &Memoizer[T]{source: source}
}

// itemAt returns the cached item at index, pulling from the source when the
// cache is short.
func (m *Memoizer[T]) itemAt(index int) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for index >= len(m.cache) && !m.finished {
		if m.source.MoveNext() {
			m.cache = append(m.cache, m.source.Current())
			continue
		}
		m.finished = true
		_ = m.source.Close()
	}

	if index < len(m.cache) {
		return m.cache[index], true
	}
	var zero T
	return zero, false
}

// Enumerate returns an independent cursor over the memoized sequence.
func (m *Memoizer[T]) Enumerate() Enumerator[T] {
	pos := -1
	return NewFuncEnumerator(func() (T, bool) {
		item, ok := m.itemAt(pos + 1)
		if ok {
			pos++
		}
		return item, ok
	})
}

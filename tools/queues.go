package tools

// DedupQueue remembers the last capacity keys and rejects re-adds, used to
// deliver at-most-once auxiliary events per symbol-date.
type DedupQueue[T comparable] struct {
	capacity int
	order    []T
	present  map[T]struct{}
}

func NewDedupQueue[T comparable](capacity int) *DedupQueue[T] {
	return &DedupQueue[T]{
		capacity: capacity,
		present:  make(map[T]struct{}, capacity),
	}
}

// TryAdd inserts item and reports whether it was new. When the queue is full
// the oldest key is evicted first.
func (q *DedupQueue[T]) TryAdd(item T) bool {
	if _, ok := q.present[item]; ok {
		return false
	}
	if len(q.order) >= q.capacity {
		oldest := q.order[0]
		q.order = q.order[1:]
		delete(q.present, oldest)
	}
	q.order = append(q.order, item)
	q.present[item] = struct{}{}
	return true
}

func (q *DedupQueue[T]) Contains(item T) bool {
	_, ok := q.present[item]
	return ok
}

func (q *DedupQueue[T]) Len() int { return len(q.order) }

// CircularQueue walks a fixed item set forever, signalling each completed
// pass through the optional circle-completed callback.
type CircularQueue[T any] struct {
	items           []T
	head            int
	circleCompleted func()
}

func NewCircularQueue[T any](items ...T) *CircularQueue[T] {
	return &CircularQueue[T]{items: items}
}

// OnCircleCompleted registers the callback fired after the last item of each
// pass is returned.
func (q *CircularQueue[T]) OnCircleCompleted(fn func()) {
	q.circleCompleted = fn
}

// Next returns the next item, wrapping around the end of the set.
func (q *CircularQueue[T]) Next() T {
	item := q.items[q.head]
	q.head++
	if q.head == len(q.items) {
		q.head = 0
		if q.circleCompleted != nil {
			q.circleCompleted()
		}
	}
	return item
}

func (q *CircularQueue[T]) Len() int { return len(q.items) }

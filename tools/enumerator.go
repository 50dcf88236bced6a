package tools

// Enumerator is the explicit iterator used across the feed pipeline.
// MoveNext advances the cursor and reports whether Current is valid; once it
// returns false the sequence is finished. Close releases the underlying
// source and is safe to call more than once.
type Enumerator[T any] interface {
	MoveNext() bool
	Current() T
	Close() error
}

// SliceEnumerator adapts a slice to the Enumerator interface.
type SliceEnumerator[T any] struct {
	items []T
	pos   int
}

func NewSliceEnumerator[T any](items ...T) *SliceEnumerator[T] {
	return &SliceEnumerator[T]{items: items, pos: -1}
}

func (e *SliceEnumerator[T]) MoveNext() bool {
	if e.pos+1 >= len(e.items) {
		return false
	}
	e.pos++
	return true
}

func (e *SliceEnumerator[T]) Current() T {
	var zero T
	if e.pos < 0 || e.pos >= len(e.items) {
		return zero
	}
	return e.items[e.pos]
}

func (e *SliceEnumerator[T]) Close() error { return nil }

// FuncEnumerator wraps a pull function returning (item, ok).
type FuncEnumerator[T any] struct {
	pull    func() (T, bool)
	current T
	closed  bool
	onClose func() error
}

func NewFuncEnumerator[T any](pull func() (T, bool)) *FuncEnumerator[T] {
	return &FuncEnumerator[T]{pull: pull}
}

// WithClose registers a close hook invoked once.
func (e *FuncEnumerator[T]) WithClose(fn func() error) *FuncEnumerator[T] {
	e.onClose = fn
	return e
}

func (e *FuncEnumerator[T]) MoveNext() bool {
	if e.closed {
		return false
	}
	item, ok := e.pull()
	if !ok {
		return false
	}
	e.current = item
	return true
}

func (e *FuncEnumerator[T]) Current() T { return e.current }

func (e *FuncEnumerator[T]) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.onClose != nil {
		return e.onClose()
	}
	return nil
}

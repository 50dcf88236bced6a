package feed

import (
	"sync"

	"github.com/aricooperman/golean/model"
)

// StreamEnumerator buffers pushed data points for non-blocking consumption.
// The fan-out exchange pushes from its worker; the live driver drains from
// its own loop. MoveNext returning false means "nothing buffered", not end
// of stream.
type StreamEnumerator struct {
	mu      sync.Mutex
	buf     []*model.DataPoint
	current *model.DataPoint
	closed  bool
}

func NewStreamEnumerator() *StreamEnumerator {
	return &StreamEnumerator{}
}

// Push appends a datum; pushes after Close are dropped.
func (e *StreamEnumerator) Push(dp *model.DataPoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.buf = append(e.buf, dp)
}

func (e *StreamEnumerator) MoveNext() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buf) == 0 {
		e.current = nil
		return false
	}
	e.current = e.buf[0]
	e.buf = e.buf[1:]
	return true
}

func (e *StreamEnumerator) Current() *model.DataPoint { return e.current }

func (e *StreamEnumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.buf = nil
	return nil
}

// Finish marks the end of the pushed sequence; buffered data still drains,
// after which Exhausted reports true.
func (e *StreamEnumerator) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Exhausted reports whether the sequence ended and the buffer is drained.
func (e *StreamEnumerator) Exhausted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed && len(e.buf) == 0
}

// Len reports the buffered count.
func (e *StreamEnumerator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buf)
}

package tools

import "sync"

// ScopedLock wraps an RWMutex behind acquire functions that return release
// tokens, so every exit path releases exactly once.
type ScopedLock struct {
	mu sync.RWMutex
}

// Read acquires the read lock and returns its release token.
func (l *ScopedLock) Read() func() {
	l.mu.RLock()
	var once sync.Once
	return func() { once.Do(l.mu.RUnlock) }
}

// Write acquires the write lock and returns its release token.
func (l *ScopedLock) Write() func() {
	l.mu.Lock()
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }
}

package tools

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeLoopLimit bounds one algorithm iteration.
const DefaultTimeLoopLimit = 10 * time.Minute

// TimeLimitError is the failure outcome of an isolated run whose monitor
// reported trouble.
type TimeLimitError struct {
	Reason string
}

func (e *TimeLimitError) Error() string { return e.Reason }

// TimeMonitor tracks the elapsed time of the current loop iteration. The
// algorithm manager restarts it each slice; the isolator polls it from its
// own goroutine.
type TimeMonitor struct {
	mu             sync.Mutex
	limit          time.Duration
	iterationStart time.Time
	now            func() time.Time
}

func NewTimeMonitor(limit time.Duration) *TimeMonitor {
	if limit <= 0 {
		limit = DefaultTimeLoopLimit
	}
	m := &TimeMonitor{limit: limit, now: time.Now}
	m.StartNewIteration()
	return m
}

// StartNewIteration resets the iteration clock.
func (m *TimeMonitor) StartNewIteration() {
	m.mu.Lock()
	m.iterationStart = m.now()
	m.mu.Unlock()
}

// Elapsed returns the time spent in the current iteration.
func (m *TimeMonitor) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.iterationStart)
}

// Violation returns a human-readable reason when the current iteration has
// exceeded the limit, empty otherwise.
func (m *TimeMonitor) Violation() string {
	if m.Elapsed() <= m.limit {
		return ""
	}
	return fmt.Sprintf("Algorithm took longer than %.0f minutes on a single time loop.",
		m.limit.Minutes())
}

// Isolator supervises a unit of work under a monitor predicate and aborts it
// when the predicate reports trouble.
type Isolator struct {
	// PollInterval is how often the monitor is consulted; defaults to one
	// second.
	PollInterval time.Duration
}

// ExecuteWithTimeLimit runs work with a context that is cancelled as soon as
// monitor returns a non-empty reason. If the monitor trips, the reason is
// returned as a TimeLimitError even when work has not observed the
// cancellation yet; the abandoned work goroutine may drain afterwards.
func (i Isolator) ExecuteWithTimeLimit(ctx context.Context, monitor func() string,
	work func(ctx context.Context) error) error {

	interval := i.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- work(workCtx)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			<-done
			return ctx.Err()
		case <-ticker.C:
			if reason := monitor(); reason != "" {
				cancel()
				return &TimeLimitError{Reason: reason}
			}
		}
	}
}

// Package realtime fires named scheduled events at UTC instants: scanned per
// slice in backtests, per second in live mode.
package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/aricooperman/golean/tools/log"
)

// Callback runs when the event's next trigger time is reached.
type Callback func(name string, at time.Time)

// ScheduledEvent is a named sequence of sorted UTC trigger times with a
// cursor over the next one to fire.
type ScheduledEvent struct {
	Name     string
	times    []time.Time
	cursor   int
	callback Callback
}

func NewScheduledEvent(name string, times []time.Time, callback Callback) *ScheduledEvent {
	sorted := append([]time.Time{}, times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return &ScheduledEvent{Name: name, times: sorted, callback: callback}
}

// NextTime returns the next pending trigger; ok is false once exhausted.
func (e *ScheduledEvent) NextTime() (time.Time, bool) {
	if e.cursor >= len(e.times) {
		return time.Time{}, false
	}
	return e.times[e.cursor], true
}

// SkipForward drops triggers earlier than now without firing them; used for
// events registered after the algorithm already advanced.
func (e *ScheduledEvent) SkipForward(now time.Time) {
	for e.cursor < len(e.times) && e.times[e.cursor].Before(now) {
		e.cursor++
	}
}

// Scan fires every trigger at or before frontier, advancing the cursor. A
// panicking callback is logged and swallowed.
func (e *ScheduledEvent) Scan(frontier time.Time) {
	for e.cursor < len(e.times) && !e.times[e.cursor].After(frontier) {
		at := e.times[e.cursor]
		e.cursor++
		e.fire(at)
	}
}

func (e *ScheduledEvent) fire(at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("realtime: scheduled event %s: %v", e.Name, r)
		}
	}()
	e.callback(e.Name, at)
}

// Exhausted reports whether no trigger remains.
func (e *ScheduledEvent) Exhausted() bool {
	return e.cursor >= len(e.times)
}

// Scheduler holds the registered events. The backtest driver advances it
// with SetTime; Run is the live per-second loop.
type Scheduler struct {
	mu          sync.Mutex
	events      []*ScheduledEvent
	currentTime time.Time
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Add registers the event; late registrations skip forward to the current
// algorithm time so stale triggers never fire.
func (s *Scheduler) Add(event *ScheduledEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentTime.IsZero() {
		event.SkipForward(s.currentTime)
	}
	s.events = append(s.events, event)
}

// Remove unregisters the named event.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = lo.Filter(s.events, func(event *ScheduledEvent, _ int) bool {
		return event.Name != name
	})
}

// SetTime advances every event's cursor to the frontier, firing due
// triggers. Idempotent for monotone frontiers.
func (s *Scheduler) SetTime(frontier time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTime = frontier
	for _, event := range s.events {
		event.Scan(frontier)
	}
	s.events = lo.Filter(s.events, func(event *ScheduledEvent, _ int) bool {
		return !event.Exhausted()
	})
}

// Run wakes at each second boundary and scans with the wall clock until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(time.Second).Add(time.Second)
		select {
		case <-time.After(next.Sub(now)):
			s.SetTime(time.Now().UTC())
		case <-ctx.Done():
			return
		}
	}
}

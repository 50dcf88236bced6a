package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(hour int) time.Time {
	return time.Date(2023, 1, 6, hour, 0, 0, 0, time.UTC)
}

func TestScanFiresDueTriggersOnce(t *testing.T) {
	var fired []time.Time
	event := NewScheduledEvent("eod", []time.Time{day(10), day(12), day(16)},
		func(_ string, at time.Time) { fired = append(fired, at) })

	scheduler := NewScheduler()
	scheduler.Add(event)

	scheduler.SetTime(day(12))
	require.Len(t, fired, 2)
	assert.Equal(t, day(10), fired[0])
	assert.Equal(t, day(12), fired[1])

	// same frontier again: nothing new
	scheduler.SetTime(day(12))
	assert.Len(t, fired, 2)

	scheduler.SetTime(day(18))
	assert.Len(t, fired, 3)
}

func TestLateRegistrationSkipsForward(t *testing.T) {
	scheduler := NewScheduler()
	scheduler.SetTime(day(12))

	var fired []time.Time
	scheduler.Add(NewScheduledEvent("late", []time.Time{day(10), day(14)},
		func(_ string, at time.Time) { fired = append(fired, at) }))

	scheduler.SetTime(day(15))
	require.Len(t, fired, 1)
	assert.Equal(t, day(14), fired[0])
}

func TestUnsortedTimesAreOrdered(t *testing.T) {
	event := NewScheduledEvent("shuffle", []time.Time{day(16), day(10), day(12)}, nil)

	next, ok := event.NextTime()
	require.True(t, ok)
	assert.Equal(t, day(10), next)
}

func TestPanickingCallbackIsSwallowed(t *testing.T) {
	calls := 0
	scheduler := NewScheduler()
	scheduler.Add(NewScheduledEvent("boom", []time.Time{day(10)},
		func(string, time.Time) { panic("callback failure") }))
	scheduler.Add(NewScheduledEvent("ok", []time.Time{day(10)},
		func(string, time.Time) { calls++ }))

	assert.NotPanics(t, func() { scheduler.SetTime(day(11)) })
	assert.Equal(t, 1, calls)
}

func TestRemoveAndExhaustionPrune(t *testing.T) {
	calls := 0
	scheduler := NewScheduler()
	scheduler.Add(NewScheduledEvent("once", []time.Time{day(10)},
		func(string, time.Time) { calls++ }))
	scheduler.Add(NewScheduledEvent("dropped", []time.Time{day(11)},
		func(string, time.Time) { calls += 100 }))

	scheduler.Remove("dropped")
	scheduler.SetTime(day(12))
	assert.Equal(t, 1, calls)

	// exhausted event was pruned, advancing further fires nothing
	scheduler.SetTime(day(20))
	assert.Equal(t, 1, calls)
}

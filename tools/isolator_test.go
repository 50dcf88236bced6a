package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeMonitorViolationMessage(t *testing.T) {
	monitor := NewTimeMonitor(10 * time.Minute)

	start := time.Date(2020, 1, 2, 14, 30, 0, 0, time.UTC)
	current := start
	monitor.now = func() time.Time { return current }
	monitor.StartNewIteration()

	current = start.Add(9 * time.Minute)
	assert.Empty(t, monitor.Violation())

	current = start.Add(11 * time.Minute)
	assert.Equal(t, "Algorithm took longer than 10 minutes on a single time loop.",
		monitor.Violation())

	// a new iteration resets the clock
	monitor.StartNewIteration()
	assert.Empty(t, monitor.Violation())
}

func TestIsolatorAbortsOnViolation(t *testing.T) {
	monitor := NewTimeMonitor(30 * time.Millisecond)
	isolator := Isolator{PollInterval: 5 * time.Millisecond}

	released := make(chan struct{})
	err := isolator.ExecuteWithTimeLimit(context.Background(), monitor.Violation,
		func(ctx context.Context) error {
			defer close(released)
			<-ctx.Done()
			return ctx.Err()
		})

	var limitErr *TimeLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Contains(t, limitErr.Reason, "on a single time loop")

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("work was not cancelled")
	}
}

func TestIsolatorReturnsWorkResult(t *testing.T) {
	monitor := NewTimeMonitor(time.Minute)
	isolator := Isolator{PollInterval: 5 * time.Millisecond}

	err := isolator.ExecuteWithTimeLimit(context.Background(), monitor.Violation,
		func(context.Context) error { return nil })
	assert.NoError(t, err)
}

package results

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aricooperman/golean/model"
)

type stubNotifier struct {
	texts  []string
	orders []model.Order
	errs   []error
}

func (n *stubNotifier) Notify(text string)    { n.texts = append(n.texts, text) }
func (n *stubNotifier) OnOrder(o model.Order) { n.orders = append(n.orders, o) }
func (n *stubNotifier) OnError(err error)     { n.errs = append(n.errs, err) }

func TestBacktestKeys(t *testing.T) {
	assert.Equal(t, "backtests/u1/p2/bt3.json", BacktestResultKey("u1", "p2", "bt3"))
	assert.Equal(t, "backtests/u1/p2/algo-log.txt", BacktestLogKey("u1", "p2", "algo"))
}

func TestLiveKeys(t *testing.T) {
	at := time.Date(2020, 1, 6, 15, 4, 5, 0, time.UTC)

	assert.Equal(t, "live/u1/p2/d3-minute_2020-01-06.json",
		LiveResultKey("u1", "p2", "d3", ChartSuffixMinute, at))
	assert.Equal(t, "live/u1/p2/d3-10minute_2020-01-06.json",
		LiveResultKey("u1", "p2", "d3", ChartSuffixTenMinute, at))

	// per-chart second snapshots carry the hour and escape the chart name
	suffix := SecondChartSuffix("Strategy Equity")
	assert.Equal(t, "second_Strategy%20Equity", suffix)
	assert.Equal(t, "live/u1/p2/d3-second_Strategy%20Equity_2020-01-06-15.json",
		LiveResultKey("u1", "p2", "d3", suffix, at))
}

func TestHandledVersusRuntimeErrors(t *testing.T) {
	handler := NewHandler(Job{AlgorithmID: "algo"})

	handler.HandledError(errors.New("recoverable"))
	handler.RuntimeError(errors.New("fatal"), "stack")
	// only the first runtime error sticks
	handler.RuntimeError(errors.New("second"), "")

	result := handler.Result()
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "recoverable", result.Errors[0])
	assert.Equal(t, "fatal\nstack", result.RuntimeErr)
}

func TestProcessSynchronousEventsFlushesToNotifier(t *testing.T) {
	notifier := &stubNotifier{}
	handler := NewHandler(Job{}, WithNotifier(notifier))

	handler.DebugMessage("first")
	handler.DebugMessage("second")
	handler.ProcessSynchronousEvents()

	assert.Equal(t, []string{"first", "second"}, notifier.texts)

	// drained: a second flush emits nothing
	handler.ProcessSynchronousEvents()
	assert.Len(t, notifier.texts, 2)
}

func TestOrderEventsForwarded(t *testing.T) {
	notifier := &stubNotifier{}
	handler := NewHandler(Job{}, WithNotifier(notifier))

	handler.OrderEvent(model.Order{ID: 7, Symbol: "FOO"})
	require.Len(t, notifier.orders, 1)
	assert.Equal(t, int64(7), notifier.orders[0].ID)
}

func TestFinalizePersistsBacktestResult(t *testing.T) {
	dir := t.TempDir()
	handler := NewHandler(Job{
		AlgorithmID: "algo", UserID: "u1", ProjectID: "p2", BacktestID: "bt3",
	}, WithOutputDir(dir))

	day := time.Date(2020, 1, 2, 21, 0, 0, 0, time.UTC)
	handler.SampleEquity(day, 101_000)
	handler.SamplePerformance(day, 0.01)
	handler.LogMessage("hello")
	handler.StatusUpdate(model.StatusCompleted, "")
	handler.Finalize()

	payload, err := os.ReadFile(filepath.Join(dir, "backtests", "u1", "p2", "bt3.json"))
	require.NoError(t, err)
	assert.Contains(t, string(payload), "\"status\": \"completed\"")
	assert.Contains(t, string(payload), "101000")

	logContent, err := os.ReadFile(filepath.Join(dir, "backtests", "u1", "p2", "algo-log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(logContent))
}

func TestSummaryRendersReturnsAndIntervals(t *testing.T) {
	handler := NewHandler(Job{AlgorithmID: "algo"})
	day := time.Date(2020, 1, 2, 21, 0, 0, 0, time.UTC)
	handler.SampleEquity(day, 100_000)
	handler.SampleEquity(day.Add(24*time.Hour), 101_000)
	for i := 0; i < 10; i++ {
		handler.SamplePerformance(day.Add(time.Duration(i)*24*time.Hour), 0.001*float64(i-4))
	}

	var buffer bytes.Buffer
	handler.Summary(&buffer)
	output := buffer.String()

	assert.Contains(t, output, "algo")
	assert.Contains(t, output, "1.00 %")
	assert.Contains(t, output, "CONFIDENCE INTERVAL")
	assert.Contains(t, output, "PROF.FACTOR")
}

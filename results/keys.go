// Package results implements the result handler: equity and performance
// sampling, message forwarding, persisted run state and the final console
// summary.
package results

import (
	"fmt"
	"strings"
	"time"
)

// ChartSuffixMinute and friends select the live result key variant.
const (
	ChartSuffixMinute    = "minute"
	ChartSuffixTenMinute = "10minute"
)

// BacktestResultKey is the storage key of a finished backtest result.
func BacktestResultKey(userID, projectID, backtestID string) string {
	return fmt.Sprintf("backtests/%s/%s/%s.json", userID, projectID, backtestID)
}

// BacktestLogKey is the storage key of a backtest's log file.
func BacktestLogKey(userID, projectID, algorithmID string) string {
	return fmt.Sprintf("backtests/%s/%s/%s-log.txt", userID, projectID, algorithmID)
}

// LiveResultKey is the storage key of a live snapshot. Minute and ten-minute
// snapshots are stamped with the date, per-chart second snapshots with the
// date and hour.
func LiveResultKey(userID, projectID, deployID, suffix string, at time.Time) string {
	stamp := at.Format("2006-01-02")
	if strings.HasPrefix(suffix, "second_") {
		stamp = at.Format("2006-01-02-15")
	}
	return fmt.Sprintf("live/%s/%s/%s-%s_%s.json", userID, projectID, deployID, suffix, stamp)
}

// SecondChartSuffix builds the per-chart suffix for second snapshots.
func SecondChartSuffix(chartName string) string {
	escaped := strings.NewReplacer(" ", "%20", "/", "%2F").Replace(chartName)
	return "second_" + escaped
}

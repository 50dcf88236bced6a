package metrics

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// BootstrapInterval holds a bootstrapped confidence interval for a measure.
type BootstrapInterval struct {
	Lower  float64
	Upper  float64
	StdDev float64
	Mean   float64
}

// Bootstrap estimates the confidence interval of measure over values by
// resampling with replacement sampleSize times.
func Bootstrap(values []float64, measure func([]float64) float64, sampleSize int,
	confidence float64) BootstrapInterval {
	var data []float64

	for i := 0; i < sampleSize; i++ {
		samples := make([]float64, len(values))
		for j := 0; j < len(values); j++ {
			samples[j] = lo.Sample(values)
		}
		data = append(data, measure(samples))
	}

	tail := 1 - confidence
	sort.Float64s(data)
	mean, stdDev := stat.MeanStdDev(data, nil)
	upper := stat.Quantile(1-tail/2, stat.LinInterp, data, nil)
	lower := stat.Quantile(tail/2, stat.LinInterp, data, nil)

	return BootstrapInterval{
		Lower:  lower,
		Upper:  upper,
		StdDev: stdDev,
		Mean:   mean,
	}
}

// Mean is the arithmetic mean measure.
func Mean(values []float64) float64 {
	return stat.Mean(values, nil)
}

// Payoff is the ratio between the average win and the average loss.
func Payoff(values []float64) float64 {
	wins := lo.Filter(values, func(v float64, _ int) bool { return v > 0 })
	losses := lo.Filter(values, func(v float64, _ int) bool { return v < 0 })
	if len(wins) == 0 || len(losses) == 0 {
		return 0
	}
	avgLoss := stat.Mean(losses, nil)
	if avgLoss == 0 {
		return 0
	}
	return stat.Mean(wins, nil) / -avgLoss
}

// ProfitFactor is the ratio between total profit and total loss.
func ProfitFactor(values []float64) float64 {
	var profit, loss float64
	for _, v := range values {
		if v > 0 {
			profit += v
		} else {
			loss -= v
		}
	}
	if loss == 0 {
		return 0
	}
	return profit / loss
}

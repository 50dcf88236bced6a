package results

import (
	"fmt"
	"io"
	"strconv"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"

	"github.com/aricooperman/golean/tools/metrics"
)

// Summary renders the run statistics: an overview table, the daily return
// distribution and bootstrapped confidence intervals.
func (h *Handler) Summary(w io.Writer) {
	result := h.Result()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Algorithm", "Status", "Days", "Orders", "Final Equity", "Return"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)

	var finalEquity, totalReturn float64
	if n := len(result.Equity); n > 0 {
		finalEquity = result.Equity[n-1].Value
		if first := result.Equity[0].Value; first != 0 {
			totalReturn = (finalEquity - result.Equity[0].Value) / first
		}
	}
	table.Append([]string{
		result.AlgorithmID,
		string(result.Status),
		strconv.Itoa(len(result.Equity)),
		strconv.Itoa(len(result.Orders)),
		fmt.Sprintf("%.2f", finalEquity),
		fmt.Sprintf("%.2f %%", totalReturn*100),
	})
	table.Render()

	returns := make([]float64, 0, len(result.Performance))
	for _, sample := range result.Performance {
		returns = append(returns, sample.Value*100)
	}
	if len(returns) == 0 {
		return
	}

	fmt.Fprintln(w, "------ DAILY RETURN (%) -------")
	hist := histogram.Hist(15, returns)
	_ = histogram.Fprint(w, hist, histogram.Linear(10))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "------ CONFIDENCE INTERVAL (95%) -------")
	returnInterval := metrics.Bootstrap(returns, metrics.Mean, 10000, 0.95)
	payoffInterval := metrics.Bootstrap(returns, metrics.Payoff, 10000, 0.95)
	profitFactorInterval := metrics.Bootstrap(returns, metrics.ProfitFactor, 10000, 0.95)

	fmt.Fprintf(w, "RETURN:      %.2f%% (%.2f%% ~ %.2f%%)\n",
		returnInterval.Mean, returnInterval.Lower, returnInterval.Upper)
	fmt.Fprintf(w, "PAYOFF:      %.2f (%.2f ~ %.2f)\n",
		payoffInterval.Mean, payoffInterval.Lower, payoffInterval.Upper)
	fmt.Fprintf(w, "PROF.FACTOR: %.2f (%.2f ~ %.2f)\n",
		profitFactorInterval.Mean, profitFactorInterval.Lower, profitFactorInterval.Upper)
	fmt.Fprintln(w)
}

package download

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aricooperman/golean/data"
	"github.com/aricooperman/golean/model"
)

func TestParseTimeframe(t *testing.T) {
	for timeframe, want := range map[string]model.Resolution{
		"1s":  model.ResolutionSecond,
		"1m":  model.ResolutionMinute,
		"1h":  model.ResolutionHour,
		"1d":  model.ResolutionDaily,
		"24h": model.ResolutionDaily,
	} {
		resolution, err := ParseTimeframe(timeframe)
		require.NoError(t, err)
		assert.Equal(t, want, resolution, timeframe)
	}

	_, err := ParseTimeframe("bogus")
	assert.Error(t, err)
}

func TestRowRoundTripsThroughParser(t *testing.T) {
	symbol := model.NewSymbol("BTCUSDT", model.SecurityTypeCrypto, "binance")
	config := model.NewSubscriptionConfig(symbol, model.ResolutionMinute, time.UTC, time.UTC)

	start := time.Date(2021, 4, 1, 9, 30, 0, 0, time.UTC)
	bar := model.NewTradeBar(symbol, start.Add(time.Minute), model.Bar{
		Open: 100.5, High: 101, Low: 99.5, Close: 100.75, Volume: 12.5,
		Period: time.Minute,
	})

	row := rowFor(config, bar)
	assert.Equal(t, "34200000", row[0]) // 09:30 in millis

	parsed, err := data.ParseRow(config, midnight(start), row)
	require.NoError(t, err)
	assert.Equal(t, bar.EndTime, parsed.EndTime)
	assert.Equal(t, bar.Bar.Open, parsed.Bar.Open)
	assert.Equal(t, bar.Bar.Close, parsed.Bar.Close)
	assert.Equal(t, bar.Bar.Volume, parsed.Bar.Volume)
}

func TestEquityRowsStoreScaledPrices(t *testing.T) {
	symbol := model.NewSymbol("AAPL", model.SecurityTypeEquity, "usa")
	config := model.NewSubscriptionConfig(symbol, model.ResolutionDaily, time.UTC, time.UTC)
	config.Normalization = model.NormalizationRaw

	start := time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC)
	bar := model.NewTradeBar(symbol, start.Add(24*time.Hour), model.Bar{
		Open: 120.5, High: 121, Low: 119.75, Close: 120, Volume: 1000,
		Period: 24 * time.Hour,
	})

	row := rowFor(config, bar)
	assert.Equal(t, "20210401 00:00", row[0])
	assert.Equal(t, "1205000", row[1])

	parsed, err := data.ParseRow(config, time.Time{}, row)
	require.NoError(t, err)
	assert.Equal(t, 120.5, parsed.Bar.Open)
	assert.Equal(t, 120.0, parsed.Bar.Close)
}

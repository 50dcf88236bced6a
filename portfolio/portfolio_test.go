package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aricooperman/golean/model"
)

func newTestSecurity(value string, price, quantity float64) *Security {
	symbol := model.NewSymbol(value, model.SecurityTypeEquity, "usa")
	config := model.NewSubscriptionConfig(symbol, model.ResolutionMinute, time.UTC, time.UTC)
	security := NewSecurity(config, nil)
	security.Price = price
	security.Holdings = Holdings{Quantity: quantity, AveragePrice: price}
	return security
}

func TestTotalPortfolioValue(t *testing.T) {
	p := New("USD", 10000)
	p.Securities.Add(newTestSecurity("FOO", 100, 10))

	assert.Equal(t, 11000.0, p.TotalPortfolioValue())
}

func TestApplySplitRescalesHoldings(t *testing.T) {
	p := New("USD", 0)
	security := newTestSecurity("FOO", 100, 10)
	p.Securities.Add(security)

	p.ApplySplit(security.Symbol, 0.5)

	assert.Equal(t, 20.0, security.Holdings.Quantity)
	assert.Equal(t, 50.0, security.Holdings.AveragePrice)
	assert.Equal(t, 50.0, security.Price)
	// market value unchanged
	assert.Equal(t, 1000.0, p.TotalPortfolioValue())
}

func TestApplyDividendPaysIntoCash(t *testing.T) {
	p := New("USD", 1000)
	security := newTestSecurity("FOO", 100, 10)
	p.Securities.Add(security)

	p.ApplyDividend(security.Symbol, 1.5)
	assert.Equal(t, 1015.0, p.Cash.Balance("USD"))

	// no holding, no payout
	flat := newTestSecurity("BAR", 50, 0)
	p.Securities.Add(flat)
	p.ApplyDividend(flat.Symbol, 2)
	assert.Equal(t, 1015.0, p.Cash.Balance("USD"))
}

func TestCashSettlementScan(t *testing.T) {
	now := time.Date(2020, 1, 2, 16, 0, 0, 0, time.UTC)
	p := New("USD", 100, WithSettlementDelay(48*time.Hour))

	p.AddUnsettledProceeds("USD", 500, now)
	assert.Equal(t, 100.0, p.Cash.Balance("USD"))
	assert.Equal(t, 500.0, p.Unsettled.TotalUnsettled("USD"))

	p.ScanForCashSettlement(now.Add(24 * time.Hour))
	assert.Equal(t, 100.0, p.Cash.Balance("USD"))

	p.ScanForCashSettlement(now.Add(48 * time.Hour))
	assert.Equal(t, 600.0, p.Cash.Balance("USD"))
	assert.Zero(t, p.Unsettled.TotalUnsettled("USD"))
}

func TestMarginCallScan(t *testing.T) {
	p := New("USD", 0)
	security := newTestSecurity("FOO", 100, 10)
	security.Leverage = 2
	p.Securities.Add(security)

	// value 1000, used 500: healthy
	requests, warning := p.ScanForMarginCall()
	assert.Empty(t, requests)
	assert.False(t, warning)

	// price collapse pushes used margin above value
	security.Price = 100
	security.Holdings.Quantity = 10
	security.Leverage = 0.5
	requests, warning = p.ScanForMarginCall()
	require.Len(t, requests, 1)
	assert.False(t, warning)
	assert.Equal(t, "FOO", requests[0].Symbol)
	assert.Equal(t, model.SideTypeSell, requests[0].Side)
	assert.Greater(t, requests[0].Quantity, 0.0)
	assert.LessOrEqual(t, requests[0].Quantity, 10.0)
}

func TestCashBookConversionRates(t *testing.T) {
	book := NewCashBook("USD", 1000)
	book.Deposit("EUR", 100)
	book.Apply([]model.CashUpdate{{
		Currency: "EUR",
		Data:     &model.DataPoint{Value: 1.2},
	}})

	assert.Equal(t, 1120.0, book.TotalValue())
	assert.Equal(t, "USD", book.AccountCurrency())
}

func TestCashBookTrackedConversionUpdatesRate(t *testing.T) {
	book := NewCashBook("USDT", 1000)
	book.Deposit("BTC", 0.5)
	book.TrackConversion("BTC", "BTCUSDT")
	book.TrackConversion("BTC", "BTCUSDT") // registering twice keeps one entry

	pair := model.NewSymbol("BTCUSDT", model.SecurityTypeCrypto, "binance")
	currencies := book.CurrenciesFor(pair)
	require.Equal(t, []string{"BTC"}, currencies)
	assert.Empty(t, book.CurrenciesFor(model.NewSymbol("ETHUSDT", model.SecurityTypeCrypto, "binance")))

	book.Apply([]model.CashUpdate{{
		Currency: "BTC",
		Data:     &model.DataPoint{Symbol: pair, Value: 40000},
	}})

	assert.Equal(t, 1000+0.5*40000, book.TotalValue())
}

package golean

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aricooperman/golean/data"
	"github.com/aricooperman/golean/engine"
	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/portfolio"
	"github.com/aricooperman/golean/service"
	"github.com/aricooperman/golean/storage"
	"github.com/aricooperman/golean/tools"
)

type fakeBroker struct{}

func (fakeBroker) Account() (model.Account, error)           { return model.Account{}, nil }
func (fakeBroker) Position(string) (float64, float64, error) { return 0, 0, nil }
func (fakeBroker) Order(string, int64) (model.Order, error)  { return model.Order{}, nil }
func (fakeBroker) OpenOrders(string) ([]model.Order, error)  { return nil, nil }

func (fakeBroker) CreateOrderMarket(model.SideType, string, float64) (model.Order, error) {
	return model.Order{}, nil
}

func (fakeBroker) CreateOrderMarketOnClose(model.SideType, string, float64) (model.Order, error) {
	return model.Order{}, nil
}

func (fakeBroker) CreateOrderLimit(model.SideType, string, float64, float64) (model.Order, error) {
	return model.Order{}, nil
}

func (fakeBroker) Update(o model.Order) (model.Order, error) { return o, nil }
func (fakeBroker) Cancel(model.Order, string) error          { return nil }

type fakeFeeder struct {
	data chan *model.DataPoint
	errs chan error
}

func (fakeFeeder) LastQuote(context.Context, string) (float64, error) { return 0, nil }

func (f *fakeFeeder) DataSubscription(context.Context, *model.SubscriptionConfig) (chan *model.DataPoint, chan error) {
	return f.data, f.errs
}

func (fakeFeeder) History(context.Context, *model.SubscriptionConfig, time.Time, time.Time) ([]*model.DataPoint, error) {
	return nil, nil
}

func cryptoConfig(value string) *model.SubscriptionConfig {
	symbol := model.NewSymbol(value, model.SecurityTypeCrypto, "binance")
	return model.NewSubscriptionConfig(symbol, model.ResolutionMinute, time.UTC, time.UTC)
}

func minuteBar(config *model.SubscriptionConfig, at time.Time, close float64) *model.DataPoint {
	return model.NewTradeBar(config.Symbol, at, model.Bar{
		Open: close, High: close, Low: close, Close: close, Period: time.Minute,
	})
}

func TestNewWiresCashConversionTracking(t *testing.T) {
	book := portfolio.New("USDT", 10_000)
	eng, err := New(context.Background(),
		engine.Job{AlgorithmID: "test", TimeZone: time.UTC},
		service.BaseAlgorithm{}, fakeBroker{},
		WithPortfolio(book),
		WithBacktest(time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2021, 4, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	config := cryptoConfig("BTCUSDT")
	at := time.Date(2021, 4, 1, 0, 1, 0, 0, time.UTC)
	dp := minuteBar(config, at, 40_000)
	eng.AddSubscription(config, data.AlwaysOpenHours(time.UTC), tools.NewSliceEnumerator(dp))

	// the pair quoted in the account currency feeds the BTC conversion rate
	assert.Equal(t, []string{"BTC"}, book.Cash.CurrenciesFor(config.Symbol))

	ts := eng.assembler.Assemble(at,
		[]*model.Packet{{Config: config, Data: []*model.DataPoint{dp}}},
		model.SecurityChanges{})
	require.Len(t, ts.CashUpdates, 1)
	assert.Equal(t, "BTC", ts.CashUpdates[0].Currency)
	assert.Same(t, dp, ts.CashUpdates[0].Data)

	book.Cash.Deposit("BTC", 1)
	book.Cash.Apply(ts.CashUpdates)
	assert.Equal(t, 50_000.0, book.Cash.TotalValue())
}

func TestAddLiveSubscriptionRoutesThroughFanOut(t *testing.T) {
	store, err := storage.FromMemory()
	require.NoError(t, err)
	feeder := &fakeFeeder{data: make(chan *model.DataPoint, 8), errs: make(chan error)}

	eng, err := New(context.Background(),
		engine.Job{AlgorithmID: "test", Live: true, TimeZone: time.UTC},
		service.BaseAlgorithm{}, fakeBroker{},
		WithStorage(store), WithFeeder(feeder))
	require.NoError(t, err)

	config := cryptoConfig("BTCUSDT")
	require.NoError(t, eng.AddLiveSubscription(config, data.AlwaysOpenHours(time.UTC)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.fanout.Start(ctx)
	defer eng.fanout.Stop()

	dp := minuteBar(config, time.Date(2021, 4, 1, 0, 1, 0, 0, time.UTC), 40_000)
	feeder.data <- dp

	sub, ok := eng.subscriptions.Get(config)
	require.True(t, ok)
	require.Eventually(t, func() bool { return sub.Advance() },
		2*time.Second, 5*time.Millisecond)
	assert.Same(t, dp, sub.Current)
	assert.False(t, sub.Finished())
}

func TestWarmUpHistoryReplaysMemoizedSubscriptions(t *testing.T) {
	start := time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC)
	eng, err := New(context.Background(),
		engine.Job{AlgorithmID: "test", TimeZone: time.UTC, WarmUpStart: start},
		service.BaseAlgorithm{}, fakeBroker{},
		WithPortfolio(portfolio.New("USD", 10_000)),
		WithBacktest(start, start.Add(24*time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, eng.history)

	btc := cryptoConfig("BTCBUSD")
	eth := cryptoConfig("ETHBUSD")
	t1 := start.Add(time.Minute)
	t2 := start.Add(2 * time.Minute)
	t3 := start.Add(3 * time.Minute)
	hours := data.AlwaysOpenHours(time.UTC)
	eng.AddSubscription(btc, hours, tools.NewSliceEnumerator(
		minuteBar(btc, t1, 100), minuteBar(btc, t3, 102)))
	eng.AddSubscription(eth, hours, tools.NewSliceEnumerator(
		minuteBar(eth, t2, 10), minuteBar(eth, t3, 11)))

	configs := []*model.SubscriptionConfig{btc, eth}
	slices, err := eng.history.History(context.Background(), configs, start, t3)
	require.NoError(t, err)

	// merged in time order, equal end times collapsed into one slice
	require.Len(t, slices, 3)
	assert.Equal(t, t1, slices[0].Time)
	assert.Equal(t, t2, slices[1].Time)
	assert.Equal(t, t3, slices[2].Time)
	assert.Equal(t, 1, slices[0].DataCount)
	assert.Equal(t, 2, slices[2].DataCount)

	// the memoized sources replay, so a second request sees the same data
	again, err := eng.history.History(context.Background(), configs, start, t3)
	require.NoError(t, err)
	require.Len(t, again, 3)
	assert.Equal(t, t1, again[0].Time)

	// and the run's own cursor still starts at the first datum
	sub, ok := eng.subscriptions.Get(btc)
	require.True(t, ok)
	require.True(t, sub.Advance())
	assert.Equal(t, t1, sub.Current.EndTime)
}

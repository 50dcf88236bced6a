package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aricooperman/golean/feed"
	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/order"
	"github.com/aricooperman/golean/portfolio"
	"github.com/aricooperman/golean/realtime"
	"github.com/aricooperman/golean/storage"
	"github.com/aricooperman/golean/tools"
)

type stubAlgorithm struct {
	dataCalls      int
	endOfDayCalls  int
	marginWarnings int
	splitCalls     int
	renameCalls    int

	onData       func(slice *model.Slice) error
	onMarginCall func(requests []model.Order) ([]model.Order, error)
}

func (a *stubAlgorithm) Initialize(context.Context) error { return nil }

func (a *stubAlgorithm) OnData(slice *model.Slice) error {
	a.dataCalls++
	if a.onData != nil {
		return a.onData(slice)
	}
	return nil
}

func (a *stubAlgorithm) OnTradeBars(map[string]*model.DataPoint) error   { return nil }
func (a *stubAlgorithm) OnQuoteBars(map[string]*model.DataPoint) error   { return nil }
func (a *stubAlgorithm) OnTicks(map[string][]*model.DataPoint) error     { return nil }
func (a *stubAlgorithm) OnCustomData([]*model.DataPoint) error           { return nil }
func (a *stubAlgorithm) OnDividends(map[string]*model.DataPoint) error   { return nil }
func (a *stubAlgorithm) OnDelistings(map[string]*model.DataPoint) error  { return nil }
func (a *stubAlgorithm) OnSecuritiesChanged(model.SecurityChanges) error { return nil }
func (a *stubAlgorithm) OnOrderEvent(model.Order) error                  { return nil }
func (a *stubAlgorithm) OnEndOfAlgorithm() error                         { return nil }

func (a *stubAlgorithm) OnSplits(map[string]*model.DataPoint) error {
	a.splitCalls++
	return nil
}

func (a *stubAlgorithm) OnSymbolChanged(map[string]*model.DataPoint) error {
	a.renameCalls++
	return nil
}

func (a *stubAlgorithm) OnMarginCall(requests []model.Order) ([]model.Order, error) {
	if a.onMarginCall != nil {
		return a.onMarginCall(requests)
	}
	return requests, nil
}

func (a *stubAlgorithm) OnMarginCallWarning() error {
	a.marginWarnings++
	return nil
}

func (a *stubAlgorithm) OnEndOfDay(model.Symbol) error {
	a.endOfDayCalls++
	return nil
}

type resultRecorder struct {
	mu           sync.Mutex
	equityTimes  []time.Time
	equity       []float64
	performance  []float64
	statuses     []model.AlgorithmStatus
	messages     []string
	handled      []error
	runtimeErrs  []error
	orderEvents  []model.Order
	finalized    bool
	syncRequests int
}

func (r *resultRecorder) SampleEquity(at time.Time, equity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.equityTimes = append(r.equityTimes, at)
	r.equity = append(r.equity, equity)
}

func (r *resultRecorder) SamplePerformance(_ time.Time, percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.performance = append(r.performance, percent)
}

func (r *resultRecorder) DebugMessage(string) {}
func (r *resultRecorder) LogMessage(string)   {}

func (r *resultRecorder) HandledError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = append(r.handled, err)
}

func (r *resultRecorder) RuntimeError(err error, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimeErrs = append(r.runtimeErrs, err)
}

func (r *resultRecorder) StatusUpdate(status model.AlgorithmStatus, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.messages = append(r.messages, message)
}

func (r *resultRecorder) OrderEvent(o model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orderEvents = append(r.orderEvents, o)
}

func (r *resultRecorder) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = true
}

func (r *resultRecorder) ProcessSynchronousEvents() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncRequests++
}

func (r *resultRecorder) lastStatus() model.AlgorithmStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *resultRecorder) statusMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// engineBroker accepts everything, for exercising the transaction steps.
type engineBroker struct {
	mu        sync.Mutex
	counter   int64
	orders    map[int64]model.Order
	cancelled []string
}

func newEngineBroker() *engineBroker {
	return &engineBroker{orders: make(map[int64]model.Order)}
}

func (b *engineBroker) Account() (model.Account, error)           { return model.Account{}, nil }
func (b *engineBroker) Position(string) (float64, float64, error) { return 0, 0, nil }

func (b *engineBroker) Order(_ string, id int64) (model.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("order %d not found", id)
	}
	return o, nil
}

func (b *engineBroker) OpenOrders(symbol string) ([]model.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var open []model.Order
	for _, o := range b.orders {
		if o.Symbol == symbol && o.IsOpen() {
			open = append(open, o)
		}
	}
	return open, nil
}

func (b *engineBroker) create(side model.SideType, symbol string, quantity float64,
	orderType model.OrderType, price float64) (model.Order, error) {

	b.mu.Lock()
	defer b.mu.Unlock()
	b.counter++
	o := model.Order{
		ID: b.counter, Symbol: symbol, Side: side, Type: orderType,
		Status: model.OrderStatusTypeNew, Quantity: quantity, Price: price,
	}
	b.orders[b.counter] = o
	return o, nil
}

func (b *engineBroker) CreateOrderMarket(side model.SideType, symbol string, quantity float64) (model.Order, error) {
	return b.create(side, symbol, quantity, model.OrderTypeMarket, 0)
}

func (b *engineBroker) CreateOrderMarketOnClose(side model.SideType, symbol string, quantity float64) (model.Order, error) {
	return b.create(side, symbol, quantity, model.OrderTypeMarketOnClose, 0)
}

func (b *engineBroker) CreateOrderLimit(side model.SideType, symbol string, quantity, limit float64) (model.Order, error) {
	return b.create(side, symbol, quantity, model.OrderTypeLimit, limit)
}

func (b *engineBroker) Update(o model.Order) (model.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[o.ID] = o
	return o, nil
}

func (b *engineBroker) Cancel(o model.Order, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, reason)
	o.Status = model.OrderStatusTypeCanceled
	b.orders[o.ID] = o
	return nil
}

func (b *engineBroker) fill(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.orders[id]
	o.Status = model.OrderStatusTypeFilled
	o.Filled = o.Quantity
	b.orders[id] = o
}

type managerFixture struct {
	manager   *Manager
	algorithm *stubAlgorithm
	results   *resultRecorder
	broker    *engineBroker
	portfolio *portfolio.Portfolio
	store     storage.Storage
}

func newManagerFixture(t *testing.T, cash float64) *managerFixture {
	t.Helper()

	store, err := storage.FromMemory()
	require.NoError(t, err)
	broker := newEngineBroker()
	algorithm := &stubAlgorithm{}
	results := &resultRecorder{}
	book := portfolio.New("USD", cash)

	manager := &Manager{
		Job:          Job{AlgorithmID: "test", TimeZone: time.UTC},
		Algorithm:    algorithm,
		Queue:        feed.NewHandoffQueue[*model.TimeSlice](16),
		Portfolio:    book,
		Transactions: order.NewController(context.Background(), broker, store, order.NewOrderFeed()),
		Results:      results,
		Realtime:     realtime.NewScheduler(),
		Isolator:     tools.Isolator{PollInterval: 10 * time.Millisecond},
	}
	return &managerFixture{
		manager: manager, algorithm: algorithm, results: results,
		broker: broker, portfolio: book, store: store,
	}
}

func (f *managerFixture) run(t *testing.T, slices ...*model.TimeSlice) {
	t.Helper()
	go func() {
		for _, ts := range slices {
			_ = f.manager.Queue.Add(context.Background(), ts)
		}
		f.manager.Queue.CompleteAdding()
	}()
	require.NoError(t, f.manager.Run(context.Background()))
}

func barSlice(at time.Time, symbol string, close float64) *model.TimeSlice {
	sym := model.NewSymbol(symbol, model.SecurityTypeEquity, "usa")
	dp := model.NewTradeBar(sym, at, model.Bar{
		Open: close, High: close, Low: close, Close: close, Period: time.Minute,
	})
	slice := model.NewSlice(at)
	slice.Bars[symbol] = dp
	return &model.TimeSlice{
		Time:      at,
		DataCount: 1,
		Slice:     slice,
		Data:      []*model.DataPoint{dp},
		SecuritiesUpdates: []model.SecurityUpdate{
			{Symbol: sym, Data: []*model.DataPoint{dp}},
		},
	}
}

func emptySlice(at time.Time) *model.TimeSlice {
	return &model.TimeSlice{Time: at, Slice: model.NewSlice(at)}
}

func addSecurity(book *portfolio.Portfolio, symbol string, price, quantity, leverage float64,
	normalization model.NormalizationMode) *portfolio.Security {

	sym := model.NewSymbol(symbol, model.SecurityTypeEquity, "usa")
	config := model.NewSubscriptionConfig(sym, model.ResolutionMinute, time.UTC, time.UTC)
	config.Normalization = normalization
	security := portfolio.NewSecurity(config, nil)
	security.Price = price
	security.Leverage = leverage
	security.Holdings = portfolio.Holdings{Quantity: quantity, AveragePrice: price}
	book.Securities.Add(security)
	return security
}

// stubHistory hands back canned slices and records the request.
type stubHistory struct {
	slices  []*model.TimeSlice
	configs []*model.SubscriptionConfig
	start   time.Time
	end     time.Time
}

func (h *stubHistory) History(_ context.Context, configs []*model.SubscriptionConfig,
	start, end time.Time) ([]*model.TimeSlice, error) {
	h.configs, h.start, h.end = configs, start, end
	return h.slices, nil
}

func TestWarmUpReplaysHistoryWithFlagAndProgress(t *testing.T) {
	fixture := newManagerFixture(t, 100_000)
	addSecurity(fixture.portfolio, "FOO", 100, 0, 1, model.NormalizationAdjusted)

	start := time.Date(2020, 1, 2, 14, 30, 0, 0, time.UTC)
	end := start.Add(60 * time.Minute)
	var history []*model.TimeSlice
	for i := 0; i < 60; i++ {
		history = append(history, barSlice(start.Add(time.Duration(i)*time.Minute), "FOO", 100))
	}
	provider := &stubHistory{slices: history}
	fixture.manager.History = provider
	fixture.manager.Job.WarmUpStart = start
	fixture.manager.Job.WarmUpEnd = end

	var warmFlags []bool
	fixture.algorithm.onData = func(*model.Slice) error {
		warmFlags = append(warmFlags, fixture.manager.IsWarmingUp())
		return nil
	}

	fixture.run(t, barSlice(end, "FOO", 101))

	// replayed slices see the flag up, the first real slice sees it down
	require.Len(t, warmFlags, 61)
	for i := 0; i < 60; i++ {
		assert.True(t, warmFlags[i])
	}
	assert.False(t, warmFlags[60])
	assert.False(t, fixture.manager.IsWarmingUp())

	require.Len(t, provider.configs, 1)
	assert.Equal(t, start, provider.start)
	assert.Equal(t, end, provider.end)

	messages := fixture.results.statusMessages()
	assert.Contains(t, messages, "Processing warm-up data 1/60")
	assert.Contains(t, messages, "Processing warm-up data 51/60")
	assert.Contains(t, messages, "Warm-up finished")
	assert.Equal(t, model.StatusCompleted, fixture.results.lastStatus())
}

func TestFullTradingDayDispatchesEveryMinute(t *testing.T) {
	fixture := newManagerFixture(t, 100_000)
	addSecurity(fixture.portfolio, "FOO", 100, 0, 1, model.NormalizationAdjusted)

	open := time.Date(2020, 1, 2, 14, 30, 0, 0, time.UTC)
	var slices []*model.TimeSlice
	for i := 0; i < 391; i++ {
		slices = append(slices, barSlice(open.Add(time.Duration(i)*time.Minute), "FOO", 100))
	}

	fixture.run(t, slices...)

	assert.Equal(t, 391, fixture.algorithm.dataCalls)
	assert.Equal(t, model.StatusCompleted, fixture.results.lastStatus())
	assert.True(t, fixture.results.finalized)

	// flat book over one day: equity sampled once, performance zero
	require.Len(t, fixture.results.equity, 1)
	assert.Equal(t, slices[390].Time, fixture.results.equityTimes[0])
	assert.Equal(t, 100_000.0, fixture.results.equity[0])
	require.Len(t, fixture.results.performance, 1)
	assert.Equal(t, 0.0, fixture.results.performance[0])
	assert.Equal(t, 1, fixture.algorithm.endOfDayCalls)
}

func TestDayBoundarySamplesPreviousDayFirst(t *testing.T) {
	fixture := newManagerFixture(t, 100_000)
	security := addSecurity(fixture.portfolio, "FOO", 100, 100, 1, model.NormalizationAdjusted)
	_ = security

	day1 := time.Date(2020, 1, 2, 21, 0, 0, 0, time.UTC)
	day2 := time.Date(2020, 1, 3, 14, 31, 0, 0, time.UTC)

	fixture.run(t,
		barSlice(day1, "FOO", 100),
		barSlice(day2, "FOO", 110),
	)

	// boundary sample carries day-1 equity, final sample day-2 equity
	require.Len(t, fixture.results.equity, 2)
	assert.Equal(t, day1, fixture.results.equityTimes[0])
	assert.Equal(t, 110_000.0, fixture.results.equity[0])
	assert.Equal(t, day2, fixture.results.equityTimes[1])
	assert.Equal(t, 111_000.0, fixture.results.equity[1])
}

func TestCallbackErrorStopsRunWithRuntimeError(t *testing.T) {
	fixture := newManagerFixture(t, 100_000)
	fixture.algorithm.onData = func(*model.Slice) error {
		if fixture.algorithm.dataCalls == 3 {
			return errors.New("strategy blew up")
		}
		return nil
	}

	open := time.Date(2020, 1, 2, 14, 30, 0, 0, time.UTC)
	var slices []*model.TimeSlice
	for i := 0; i < 5; i++ {
		slices = append(slices, barSlice(open.Add(time.Duration(i)*time.Minute), "FOO", 100))
	}
	fixture.run(t, slices...)

	assert.Equal(t, 3, fixture.algorithm.dataCalls)
	assert.Equal(t, model.StatusRuntimeError, fixture.results.lastStatus())
	require.Len(t, fixture.results.runtimeErrs, 1)
	assert.Contains(t, fixture.results.runtimeErrs[0].Error(), "strategy blew up")
}

func TestTimeLimitAbortsIteration(t *testing.T) {
	fixture := newManagerFixture(t, 100_000)
	fixture.manager.Job.TimeLoopLimit = 50 * time.Millisecond
	fixture.algorithm.onData = func(*model.Slice) error {
		time.Sleep(time.Second)
		return nil
	}

	go func() {
		_ = fixture.manager.Queue.Add(context.Background(),
			barSlice(time.Date(2020, 1, 2, 14, 30, 0, 0, time.UTC), "FOO", 100))
		fixture.manager.Queue.CompleteAdding()
	}()

	err := fixture.manager.Run(context.Background())
	var limitErr *tools.TimeLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Contains(t, limitErr.Reason, "on a single time loop")
	assert.Equal(t, model.StatusRuntimeError, fixture.results.lastStatus())
	require.NotEmpty(t, fixture.results.runtimeErrs)
}

func TestMarginCallExecutesApprovedRequests(t *testing.T) {
	fixture := newManagerFixture(t, 0)
	addSecurity(fixture.portfolio, "FOO", 100, 10, 0.5, model.NormalizationAdjusted)

	var received []model.Order
	fixture.algorithm.onMarginCall = func(requests []model.Order) ([]model.Order, error) {
		received = requests
		return requests, nil
	}

	fixture.run(t, emptySlice(time.Date(2020, 1, 2, 14, 30, 0, 0, time.UTC)))

	require.Len(t, received, 1)
	assert.Equal(t, model.SideTypeSell, received[0].Side)

	orders, err := fixture.store.Orders(storage.WithSymbol("FOO"))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderTypeMarket, orders[0].Type)
}

func TestMarginWarningOnlyNotifies(t *testing.T) {
	fixture := newManagerFixture(t, 0)
	// fully used margin at leverage 1: remaining is zero, under the buffer
	addSecurity(fixture.portfolio, "FOO", 100, 10, 1, model.NormalizationAdjusted)

	fixture.run(t, emptySlice(time.Date(2020, 1, 2, 14, 30, 0, 0, time.UTC)))

	assert.Equal(t, 1, fixture.algorithm.marginWarnings)
	orders, err := fixture.store.Orders()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSplitAdjustsHoldingsAndRawOrders(t *testing.T) {
	fixture := newManagerFixture(t, 0)
	security := addSecurity(fixture.portfolio, "FOO", 100, 10, 1, model.NormalizationRaw)

	_, err := fixture.manager.Transactions.CreateOrderLimit(model.SideTypeBuy, "FOO", 10, 100)
	require.NoError(t, err)

	at := time.Date(2020, 1, 2, 21, 0, 0, 0, time.UTC)
	ts := emptySlice(at)
	sym := model.NewSymbol("FOO", model.SecurityTypeEquity, "usa")
	ts.Slice.Splits["FOO"] = model.NewSplit(sym, at, 100, 0.5)

	fixture.run(t, ts)

	assert.Equal(t, 1, fixture.algorithm.splitCalls)
	assert.Equal(t, 20.0, security.Holdings.Quantity)
	assert.Equal(t, 50.0, security.Price)

	orders, err := fixture.store.Orders(storage.WithSymbol("FOO"))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 20.0, orders[0].Quantity)
	assert.Equal(t, 50.0, orders[0].Price)
}

func TestSymbolChangeCancelsOpenOrders(t *testing.T) {
	fixture := newManagerFixture(t, 0)
	_, err := fixture.manager.Transactions.CreateOrderLimit(model.SideTypeBuy, "BAR", 10, 50)
	require.NoError(t, err)

	at := time.Date(2020, 1, 10, 14, 30, 0, 0, time.UTC)
	ts := emptySlice(at)
	sym := model.NewSymbol("BAR", model.SecurityTypeEquity, "usa")
	ts.Slice.SymbolChanges["BAR"] = model.NewSymbolChanged(sym, at, "BAR", "BAZ")

	fixture.run(t, ts)

	assert.Equal(t, 1, fixture.algorithm.renameCalls)
	require.Len(t, fixture.broker.cancelled, 1)
	assert.Equal(t, "Open order cancelled on symbol changed event", fixture.broker.cancelled[0])
}

func TestDelistingLiquidatesThenRemovesWhenFlat(t *testing.T) {
	fixture := newManagerFixture(t, 0)
	sym := model.NewSymbol("DEAD", model.SecurityTypeEquity, "usa")
	security := addSecurity(fixture.portfolio, "DEAD", 10, 5, 1, model.NormalizationAdjusted)

	warningDay := time.Date(2020, 1, 6, 21, 0, 0, 0, time.UTC)
	warning := emptySlice(warningDay)
	warning.Slice.Delistings["DEAD"] = model.NewDelisting(sym, warningDay, model.AuxDelistingWarning)

	go func() {
		_ = fixture.manager.Queue.Add(context.Background(), warning)

		// liquidation fills and the position flattens before the next slice
		time.Sleep(50 * time.Millisecond)
		fixture.broker.fill(1)
		security.Holdings.Quantity = 0

		_ = fixture.manager.Queue.Add(context.Background(), emptySlice(warningDay.Add(24*time.Hour)))
		fixture.manager.Queue.CompleteAdding()
	}()
	require.NoError(t, fixture.manager.Run(context.Background()))

	moc, err := fixture.store.Orders(storage.WithSymbol("DEAD"))
	require.NoError(t, err)
	require.Len(t, moc, 1)
	assert.Equal(t, model.OrderTypeMarketOnClose, moc[0].Type)
	assert.Equal(t, model.SideTypeSell, moc[0].Side)
	assert.Equal(t, 5.0, moc[0].Quantity)

	assert.False(t, fixture.portfolio.Securities.Contains(sym))
}

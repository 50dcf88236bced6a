package order

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/storage"
)

// fakeBroker accepts everything and lets tests flip order state.
type fakeBroker struct {
	counter   int64
	orders    map[int64]model.Order
	cancelled []string
	updates   []model.Order
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{orders: make(map[int64]model.Order)}
}

func (b *fakeBroker) Account() (model.Account, error) { return model.Account{}, nil }

func (b *fakeBroker) Position(string) (float64, float64, error) { return 0, 0, nil }

func (b *fakeBroker) Order(_ string, id int64) (model.Order, error) {
	order, ok := b.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("order %d not found", id)
	}
	return order, nil
}

func (b *fakeBroker) OpenOrders(symbol string) ([]model.Order, error) {
	var open []model.Order
	for _, order := range b.orders {
		if order.Symbol == symbol && order.IsOpen() {
			open = append(open, order)
		}
	}
	return open, nil
}

func (b *fakeBroker) create(side model.SideType, symbol string, quantity float64,
	orderType model.OrderType, price float64) (model.Order, error) {

	b.counter++
	order := model.Order{
		ID:       b.counter,
		Symbol:   symbol,
		Side:     side,
		Type:     orderType,
		Status:   model.OrderStatusTypeNew,
		Quantity: quantity,
		Price:    price,
	}
	b.orders[b.counter] = order
	return order, nil
}

func (b *fakeBroker) CreateOrderMarket(side model.SideType, symbol string, quantity float64) (model.Order, error) {
	return b.create(side, symbol, quantity, model.OrderTypeMarket, 0)
}

func (b *fakeBroker) CreateOrderMarketOnClose(side model.SideType, symbol string, quantity float64) (model.Order, error) {
	return b.create(side, symbol, quantity, model.OrderTypeMarketOnClose, 0)
}

func (b *fakeBroker) CreateOrderLimit(side model.SideType, symbol string, quantity, limit float64) (model.Order, error) {
	return b.create(side, symbol, quantity, model.OrderTypeLimit, limit)
}

func (b *fakeBroker) Update(order model.Order) (model.Order, error) {
	b.updates = append(b.updates, order)
	b.orders[order.ID] = order
	return order, nil
}

func (b *fakeBroker) Cancel(order model.Order, reason string) error {
	b.cancelled = append(b.cancelled, reason)
	order.Status = model.OrderStatusTypeCanceled
	b.orders[order.ID] = order
	return nil
}

func (b *fakeBroker) fill(id int64) {
	order := b.orders[id]
	order.Status = model.OrderStatusTypeFilled
	order.Filled = order.Quantity
	b.orders[id] = order
}

func newTestController(t *testing.T) (*Controller, *fakeBroker, storage.Storage) {
	t.Helper()
	store, err := storage.FromMemory()
	require.NoError(t, err)
	broker := newFakeBroker()
	controller := NewController(context.Background(), broker, store, NewOrderFeed())
	return controller, broker, store
}

func TestCreateOrderLimitPersists(t *testing.T) {
	controller, _, store := newTestController(t)

	order, err := controller.CreateOrderLimit(model.SideTypeBuy, "FOO", 10, 99.5)
	require.NoError(t, err)
	assert.Equal(t, model.OrderTypeLimit, order.Type)

	stored, err := store.Orders(storage.WithSymbol("FOO"))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 99.5, stored[0].Price)
}

func TestCancelOpenOrdersOnSymbolChange(t *testing.T) {
	controller, broker, store := newTestController(t)

	_, err := controller.CreateOrderLimit(model.SideTypeBuy, "BAR", 10, 50)
	require.NoError(t, err)
	_, err = controller.CreateOrderLimit(model.SideTypeBuy, "OTHER", 5, 10)
	require.NoError(t, err)

	require.NoError(t, controller.CancelOpenOrdersOnSymbolChange("BAR"))

	require.Len(t, broker.cancelled, 1)
	assert.Equal(t, "Open order cancelled on symbol changed event", broker.cancelled[0])

	pending, err := store.Orders(storage.WithSymbol("BAR"), storage.WithStatus(model.OrderStatusTypePendingCancel))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Open order cancelled on symbol changed event", pending[0].CancelReason)

	// unrelated symbol untouched
	open, err := store.Orders(storage.WithSymbol("OTHER"), storage.WithOpenStatus())
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestAdjustOrdersForSplit(t *testing.T) {
	controller, broker, store := newTestController(t)

	_, err := controller.CreateOrderLimit(model.SideTypeBuy, "FOO", 10, 100)
	require.NoError(t, err)

	// adjusted data already reflects the split, orders stay untouched
	require.NoError(t, controller.AdjustOrdersForSplit("FOO", 0.5, model.NormalizationAdjusted, false))
	assert.Empty(t, broker.updates)

	// raw backtest data needs the adjustment
	require.NoError(t, controller.AdjustOrdersForSplit("FOO", 0.5, model.NormalizationRaw, false))
	require.Len(t, broker.updates, 1)

	orders, err := store.Orders(storage.WithSymbol("FOO"))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 20.0, orders[0].Quantity)
	assert.Equal(t, 50.0, orders[0].Price)
}

func TestProcessSynchronousEventsDetectsFills(t *testing.T) {
	controller, broker, _ := newTestController(t)

	order, err := controller.CreateOrderMarket(model.SideTypeBuy, "FOO", 10)
	require.NoError(t, err)

	assert.Empty(t, controller.ProcessSynchronousEvents())

	broker.fill(order.ID)
	updated := controller.ProcessSynchronousEvents()
	require.Len(t, updated, 1)
	assert.Equal(t, model.OrderStatusTypeFilled, updated[0].Status)
	assert.Equal(t, 10.0, updated[0].Filled)

	// no double report
	assert.Empty(t, controller.ProcessSynchronousEvents())
}

func TestSweepDelistingTicketsWaitsForZeroQuantity(t *testing.T) {
	controller, broker, _ := newTestController(t)
	symbol := model.NewSymbol("DEAD", model.SecurityTypeEquity, "usa")

	require.NoError(t, controller.SubmitDelistingLiquidation(symbol, 10))

	holding := 10.0
	quantity := func(model.Symbol) float64 { return holding }

	// order not filled yet
	assert.Empty(t, controller.SweepDelistingTickets(quantity))

	broker.fill(1)

	// filled but partially flattened: keep the security
	holding = 4
	assert.Empty(t, controller.SweepDelistingTickets(quantity))

	holding = 0
	removed := controller.SweepDelistingTickets(quantity)
	require.Len(t, removed, 1)
	assert.Equal(t, symbol, removed[0])
}

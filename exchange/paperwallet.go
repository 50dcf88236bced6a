package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools/log"
)

// PaperWallet simulates a broker for backtests and dry runs: market orders
// fill at the last seen price, limit orders fill when the price crosses the
// limit and market-on-close orders fill on the next price update.
type PaperWallet struct {
	mu  sync.Mutex
	ctx context.Context

	cashAsset string
	cash      float64

	positions map[string]float64
	avgPrice  map[string]float64
	lastPrice map[string]float64
	volume    map[string]float64

	counter int64
	orders  []model.Order
}

type PaperWalletOption func(*PaperWallet)

// WithPaperCash funds the wallet with the given quote asset.
func WithPaperCash(asset string, amount float64) PaperWalletOption {
	return func(w *PaperWallet) {
		w.cashAsset = asset
		w.cash = amount
	}
}

// WithPaperPosition seeds an existing holding at the given entry price.
func WithPaperPosition(symbol string, quantity, price float64) PaperWalletOption {
	return func(w *PaperWallet) {
		w.positions[symbol] = quantity
		w.avgPrice[symbol] = price
		w.lastPrice[symbol] = price
	}
}

func NewPaperWallet(ctx context.Context, options ...PaperWalletOption) *PaperWallet {
	wallet := &PaperWallet{
		ctx:       ctx,
		cashAsset: "USD",
		positions: make(map[string]float64),
		avgPrice:  make(map[string]float64),
		lastPrice: make(map[string]float64),
		volume:    make(map[string]float64),
	}
	for _, option := range options {
		option(wallet)
	}
	return wallet
}

// OnPrice records the latest price and fills the resting orders it crosses.
// Call it once per symbol per time step, before the synchronous fill check.
func (w *PaperWallet) OnPrice(symbol string, price float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastPrice[symbol] = price

	for i, order := range w.orders {
		if order.Symbol != symbol || !order.IsOpen() {
			continue
		}

		switch order.Type {
		case model.OrderTypeMarketOnClose:
			w.fill(&w.orders[i], price)
		case model.OrderTypeLimit:
			if order.Side == model.SideTypeBuy && price <= order.Price ||
				order.Side == model.SideTypeSell && price >= order.Price {
				w.fill(&w.orders[i], order.Price)
			}
		}
	}
}

// fill settles the order at price. Callers hold the lock.
func (w *PaperWallet) fill(order *model.Order, price float64) {
	quantity := order.Remaining()
	if order.Side == model.SideTypeBuy {
		position := w.positions[order.Symbol]
		if position+quantity != 0 {
			w.avgPrice[order.Symbol] = (w.avgPrice[order.Symbol]*position + price*quantity) /
				(position + quantity)
		}
		w.positions[order.Symbol] = position + quantity
		w.cash -= quantity * price
	} else {
		w.positions[order.Symbol] -= quantity
		w.cash += quantity * price
	}

	w.volume[order.Symbol] += quantity * price
	order.Filled = order.Quantity
	order.Price = price
	order.Status = model.OrderStatusTypeFilled
	order.UpdatedAt = time.Now()
	log.Infof("[PAPER] filled %s", order)
}

func (w *PaperWallet) newOrder(side model.SideType, symbol string,
	orderType model.OrderType, quantity, price float64) model.Order {

	w.counter++
	now := time.Now()
	return model.Order{
		ID:        w.counter,
		BrokerID:  w.counter,
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Status:    model.OrderStatusTypeNew,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (w *PaperWallet) Account() (model.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	balances := []model.Balance{{Asset: w.cashAsset, Free: w.cash}}
	for symbol, quantity := range w.positions {
		if quantity == 0 {
			continue
		}
		balances = append(balances, model.Balance{Asset: symbol, Free: quantity})
	}
	return model.Account{Balances: balances}, nil
}

func (w *PaperWallet) Position(symbol string) (quantity, averagePrice float64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.positions[symbol], w.avgPrice[symbol], nil
}

func (w *PaperWallet) Order(symbol string, id int64) (model.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, order := range w.orders {
		if order.ID == id && order.Symbol == symbol {
			return order, nil
		}
	}
	return model.Order{}, fmt.Errorf("order %d not found", id)
}

func (w *PaperWallet) OpenOrders(symbol string) ([]model.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var open []model.Order
	for _, order := range w.orders {
		if order.Symbol == symbol && order.IsOpen() {
			open = append(open, order)
		}
	}
	return open, nil
}

func (w *PaperWallet) CreateOrderMarket(side model.SideType, symbol string, quantity float64) (model.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	price, ok := w.lastPrice[symbol]
	if !ok {
		return model.Order{}, fmt.Errorf("no price for %s", symbol)
	}
	if side == model.SideTypeBuy && quantity*price > w.cash {
		return model.Order{}, fmt.Errorf("insufficient %s: need %.2f, have %.2f",
			w.cashAsset, quantity*price, w.cash)
	}

	order := w.newOrder(side, symbol, model.OrderTypeMarket, quantity, price)
	w.fill(&order, price)
	w.orders = append(w.orders, order)
	return order, nil
}

func (w *PaperWallet) CreateOrderMarketOnClose(side model.SideType, symbol string, quantity float64) (model.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	order := w.newOrder(side, symbol, model.OrderTypeMarketOnClose, quantity, w.lastPrice[symbol])
	w.orders = append(w.orders, order)
	return order, nil
}

func (w *PaperWallet) CreateOrderLimit(side model.SideType, symbol string, quantity, limit float64) (model.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if side == model.SideTypeBuy && quantity*limit > w.cash {
		return model.Order{}, fmt.Errorf("insufficient %s: need %.2f, have %.2f",
			w.cashAsset, quantity*limit, w.cash)
	}

	order := w.newOrder(side, symbol, model.OrderTypeLimit, quantity, limit)
	w.orders = append(w.orders, order)
	return order, nil
}

func (w *PaperWallet) Update(order model.Order) (model.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.orders {
		if w.orders[i].ID != order.ID {
			continue
		}
		if !w.orders[i].IsOpen() {
			return model.Order{}, fmt.Errorf("order %d is not open", order.ID)
		}
		w.orders[i].Quantity = order.Quantity
		w.orders[i].Price = order.Price
		w.orders[i].Stop = order.Stop
		w.orders[i].UpdatedAt = time.Now()
		return w.orders[i], nil
	}
	return model.Order{}, fmt.Errorf("order %d not found", order.ID)
}

func (w *PaperWallet) Cancel(order model.Order, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.orders {
		if w.orders[i].ID != order.ID {
			continue
		}
		if !w.orders[i].IsOpen() {
			return fmt.Errorf("order %d is not open", order.ID)
		}
		w.orders[i].Status = model.OrderStatusTypeCanceled
		w.orders[i].CancelReason = reason
		w.orders[i].UpdatedAt = time.Now()
		return nil
	}
	return fmt.Errorf("order %d not found", order.ID)
}

// Equity values the wallet at the last seen prices.
func (w *PaperWallet) Equity() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	equity := w.cash
	for symbol, quantity := range w.positions {
		equity += quantity * w.lastPrice[symbol]
	}
	return equity
}

// Summary logs the wallet state and traded volume per symbol.
func (w *PaperWallet) Summary() {
	w.mu.Lock()
	defer w.mu.Unlock()

	equity := w.cash
	for symbol, quantity := range w.positions {
		equity += quantity * w.lastPrice[symbol]
	}

	log.Infof("[PAPER] %s %.2f, equity %.2f", w.cashAsset, w.cash, equity)
	for symbol, volume := range w.volume {
		log.Infof("[PAPER] %s volume %.2f", symbol, volume)
	}
}

package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/service"
	"github.com/aricooperman/golean/storage"
	"github.com/aricooperman/golean/tools/log"
)

// SymbolChangeCancelReason tags orders cancelled because their symbol was
// renamed mid-run.
const SymbolChangeCancelReason = "Open order cancelled on symbol changed event"

// DelistingLiquidationTag marks the market-on-close orders the engine
// submits when a security announces its delisting.
const DelistingLiquidationTag = "Liquidate from delisting"

// Controller is the transaction handler: it submits orders to the broker,
// keeps storage in sync, publishes order events and drives the synchronous
// fill checks the manager loop requests.
type Controller struct {
	mu        sync.Mutex
	ctx       context.Context
	broker    service.Broker
	storage   storage.Storage
	orderFeed *Feed

	lastPrice map[string]float64
	tickets   []model.OrderTicket
}

func NewController(ctx context.Context, broker service.Broker,
	store storage.Storage, orderFeed *Feed) *Controller {

	return &Controller{
		ctx:       ctx,
		broker:    broker,
		storage:   store,
		orderFeed: orderFeed,
		lastPrice: make(map[string]float64),
	}
}

// UpdatePrice records the latest market price of the symbol; used for
// logging and market-on-close estimation.
func (c *Controller) UpdatePrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPrice[symbol] = price
}

// Symbols lists the symbols the controller has seen a price for.
func (c *Controller) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	symbols := make([]string, 0, len(c.lastPrice))
	for symbol := range c.lastPrice {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (c *Controller) createAndPublish(order model.Order, err error) (model.Order, error) {
	if err != nil {
		log.Errorf("order/controller: %v", err)
		return model.Order{}, err
	}
	if storeErr := c.storage.CreateOrder(&order); storeErr != nil {
		return model.Order{}, fmt.Errorf("store order: %w", storeErr)
	}
	go c.orderFeed.Publish(order, true)
	log.Infof("[ORDER CREATED] %s", order)
	return order, nil
}

// CreateOrderMarket submits a market order.
func (c *Controller) CreateOrderMarket(side model.SideType, symbol string, quantity float64) (model.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	log.Infof("[ORDER] Creating MARKET %s order for %s", side, symbol)
	order, err := c.broker.CreateOrderMarket(side, symbol, quantity)
	return c.createAndPublish(order, err)
}

// CreateOrderMarketOnClose submits an order filling at the session close.
func (c *Controller) CreateOrderMarketOnClose(side model.SideType, symbol string, quantity float64) (model.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	log.Infof("[ORDER] Creating MOC %s order for %s", side, symbol)
	order, err := c.broker.CreateOrderMarketOnClose(side, symbol, quantity)
	return c.createAndPublish(order, err)
}

// CreateOrderLimit submits a limit order.
func (c *Controller) CreateOrderLimit(side model.SideType, symbol string, quantity, limit float64) (model.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	log.Infof("[ORDER] Creating LIMIT %s order for %s", side, symbol)
	order, err := c.broker.CreateOrderLimit(side, symbol, quantity, limit)
	return c.createAndPublish(order, err)
}

// Cancel asks the broker to cancel the order and records the reason.
func (c *Controller) Cancel(order model.Order, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	log.Infof("[ORDER] Cancelling order for %s: %s", order.Symbol, reason)

	if err := c.broker.Cancel(order, reason); err != nil {
		return err
	}
	order.Status = model.OrderStatusTypePendingCancel
	order.CancelReason = reason
	order.UpdatedAt = time.Now()
	if err := c.storage.UpdateOrder(&order); err != nil {
		log.Errorf("order/controller: %v", err)
	}
	return nil
}

// CancelOpenOrdersOnSymbolChange cancels every open order of a renamed
// symbol.
func (c *Controller) CancelOpenOrdersOnSymbolChange(symbol string) error {
	orders, err := c.storage.Orders(storage.WithSymbol(symbol), storage.WithOpenStatus())
	if err != nil {
		return err
	}
	for _, order := range orders {
		if err := c.Cancel(*order, SymbolChangeCancelReason); err != nil {
			return err
		}
	}
	return nil
}

// AdjustOrdersForSplit rescales the open orders of a split symbol. Holdings
// are always adjusted by the portfolio; open orders only when the data is
// unadjusted, i.e. live trading or raw normalization.
func (c *Controller) AdjustOrdersForSplit(symbol string, factor float64,
	normalization model.NormalizationMode, live bool) error {

	if factor == 0 || (!live && normalization != model.NormalizationRaw) {
		return nil
	}

	orders, err := c.storage.Orders(storage.WithSymbol(symbol), storage.WithOpenStatus())
	if err != nil {
		return err
	}
	for _, order := range orders {
		order.Quantity /= factor
		order.Price *= factor
		if order.Stop != nil {
			stop := *order.Stop * factor
			order.Stop = &stop
		}
		order.UpdatedAt = time.Now()

		if _, err := c.broker.Update(*order); err != nil {
			return fmt.Errorf("split adjust order %d: %w", order.ID, err)
		}
		if err := c.storage.UpdateOrder(order); err != nil {
			return err
		}
		log.Infof("[ORDER] Split-adjusted order %d: %.0f x $%.2f", order.ID, order.Quantity, order.Price)
	}
	return nil
}

// ProcessSynchronousEvents polls the broker for fills on open orders and
// returns the orders whose status changed.
func (c *Controller) ProcessSynchronousEvents() []model.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	orders, err := c.storage.Orders(storage.WithOpenStatus())
	if err != nil {
		log.Errorf("order/controller: %v", err)
		return nil
	}

	var updated []model.Order
	for _, order := range orders {
		latest, err := c.broker.Order(order.Symbol, order.ID)
		if err != nil {
			log.WithField("id", order.ID).Error(err)
			continue
		}
		if latest.Status == order.Status && latest.Filled == order.Filled {
			continue
		}

		latest.UpdatedAt = time.Now()
		latest.Tag = order.Tag
		if err := c.storage.UpdateOrder(&latest); err != nil {
			log.Errorf("order/controller: %v", err)
			continue
		}
		go c.orderFeed.Publish(latest, false)
		updated = append(updated, latest)
		log.Infof("[ORDER %s] %s", latest.Status, latest)
	}
	return updated
}

// SubmitDelistingLiquidation flattens the holding with a market-on-close
// order and remembers the ticket for the sweep.
func (c *Controller) SubmitDelistingLiquidation(symbol model.Symbol, quantity float64) error {
	if quantity == 0 {
		return nil
	}
	side := model.SideTypeSell
	if quantity < 0 {
		side = model.SideTypeBuy
		quantity = -quantity
	}
	order, err := c.CreateOrderMarketOnClose(side, symbol.Value, quantity)
	if err != nil {
		return err
	}
	order.Tag = DelistingLiquidationTag
	if err := c.storage.UpdateOrder(&order); err != nil {
		log.Errorf("order/controller: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickets = append(c.tickets, model.OrderTicket{
		OrderID: order.ID, Symbol: symbol, Tag: DelistingLiquidationTag,
	})
	return nil
}

// SweepDelistingTickets returns the delisted symbols whose liquidation
// filled and whose holding reached zero; partially flattened securities stay
// registered with their ticket pending.
func (c *Controller) SweepDelistingTickets(quantity func(model.Symbol) float64) []model.Symbol {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []model.Symbol
	var pending []model.OrderTicket
	for _, ticket := range c.tickets {
		order, err := c.broker.Order(ticket.Symbol.Value, ticket.OrderID)
		if err != nil {
			log.WithField("id", ticket.OrderID).Error(err)
			pending = append(pending, ticket)
			continue
		}
		if order.Status == model.OrderStatusTypeFilled && quantity(ticket.Symbol) == 0 {
			removed = append(removed, ticket.Symbol)
			continue
		}
		pending = append(pending, ticket)
	}
	c.tickets = pending
	return removed
}

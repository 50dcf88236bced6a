// Package exchange provides the live collaborators of the engine: the
// Binance data-queue/brokerage adapter and the paper wallet broker.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools/log"
)

// ErrUnsupportedResolution is returned for subscriptions Binance cannot
// stream, e.g. tick resolution through the kline channel.
var ErrUnsupportedResolution = errors.New("unsupported resolution")

// Binance is the crypto data queue and broker backed by the Binance spot
// API: kline websockets feed live subscriptions, the REST API serves history
// and order management.
type Binance struct {
	ctx    context.Context
	client *binance.Client
}

// BinanceOption customises the adapter at construction.
type BinanceOption func(*Binance)

// WithBinanceCredentials sets the API key pair used for trading endpoints.
func WithBinanceCredentials(key, secret string) BinanceOption {
	return func(b *Binance) { b.client = binance.NewClient(key, secret) }
}

// WithTestNet routes every request to the Binance spot test network.
func WithTestNet() BinanceOption {
	return func(*Binance) { binance.UseTestnet = true }
}

func NewBinance(ctx context.Context, options ...BinanceOption) (*Binance, error) {
	exchange := &Binance{ctx: ctx, client: binance.NewClient("", "")}
	for _, option := range options {
		option(exchange)
	}

	// ping before first use; a misconfigured endpoint should fail at setup
	if err := exchange.client.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("binance ping: %w", err)
	}
	return exchange, nil
}

func interval(resolution model.Resolution) (string, error) {
	switch resolution {
	case model.ResolutionSecond:
		return "1s", nil
	case model.ResolutionMinute:
		return "1m", nil
	case model.ResolutionHour:
		return "1h", nil
	case model.ResolutionDaily:
		return "1d", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedResolution, resolution)
	}
}

// LastQuote returns the latest traded price of the symbol.
func (b *Binance) LastQuote(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

// DataSubscription streams finalized klines of the subscription as trade
// bars. The websocket reconnects with exponential backoff until ctx is
// cancelled.
func (b *Binance) DataSubscription(ctx context.Context,
	config *model.SubscriptionConfig) (chan *model.DataPoint, chan error) {

	cdata := make(chan *model.DataPoint)
	cerr := make(chan error)

	period, err := interval(config.Resolution)
	if err != nil {
		go func() {
			cerr <- err
			close(cerr)
			close(cdata)
		}()
		return cdata, cerr
	}

	go func() {
		ba := &backoff.Backoff{
			Min: 100 * time.Millisecond,
			Max: 1 * time.Second,
		}

		for {
			done, _, err := binance.WsKlineServe(config.Symbol.Value, period,
				func(event *binance.WsKlineEvent) {
					ba.Reset()
					if !event.Kline.IsFinal {
						return
					}
					cdata <- barFromWsKline(config.Symbol, config.Resolution, event.Kline)
				}, func(err error) {
					cerr <- err
				})
			if err != nil {
				cerr <- err
				close(cerr)
				close(cdata)
				return
			}

			select {
			case <-ctx.Done():
				close(cerr)
				close(cdata)
				return
			case <-done:
				time.Sleep(ba.Duration())
			}
		}
	}()

	return cdata, cerr
}

// History fetches klines between start and end as trade bars.
func (b *Binance) History(ctx context.Context, config *model.SubscriptionConfig,
	start, end time.Time) ([]*model.DataPoint, error) {

	period, err := interval(config.Resolution)
	if err != nil {
		return nil, err
	}

	data, err := b.client.NewKlinesService().
		Symbol(config.Symbol.Value).
		Interval(period).
		StartTime(start.UnixNano() / int64(time.Millisecond)).
		EndTime(end.UnixNano() / int64(time.Millisecond)).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	bars := make([]*model.DataPoint, 0, len(data))
	for _, k := range data {
		bars = append(bars, barFromKline(config.Symbol, config.Resolution, *k))
	}
	return bars, nil
}

func (b *Binance) Account() (model.Account, error) {
	acc, err := b.client.NewGetAccountService().Do(b.ctx)
	if err != nil {
		return model.Account{}, err
	}

	balances := make([]model.Balance, 0, len(acc.Balances))
	for _, balance := range acc.Balances {
		free, _ := strconv.ParseFloat(balance.Free, 64)
		lock, _ := strconv.ParseFloat(balance.Locked, 64)
		if free == 0 && lock == 0 {
			continue
		}
		balances = append(balances, model.Balance{
			Asset: balance.Asset,
			Free:  free,
			Lock:  lock,
		})
	}
	return model.Account{Balances: balances}, nil
}

// Position reports the base-asset quantity held for the symbol. Binance does
// not expose an entry price for spot balances.
func (b *Binance) Position(symbol string) (quantity, averagePrice float64, err error) {
	acc, err := b.Account()
	if err != nil {
		return 0, 0, err
	}

	info, err := b.client.NewExchangeInfoService().Symbol(symbol).Do(b.ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		balance := acc.Balance(s.BaseAsset)
		return balance.Free + balance.Lock, 0, nil
	}
	return 0, 0, fmt.Errorf("symbol %s not found", symbol)
}

func (b *Binance) CreateOrderMarket(side model.SideType, symbol string, quantity float64) (model.Order, error) {
	response, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Type(binance.OrderTypeMarket).
		Side(binance.SideType(side)).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		Do(b.ctx)
	if err != nil {
		return model.Order{}, err
	}
	return orderFromResponse(symbol, response), nil
}

// CreateOrderMarketOnClose submits a plain market order; the spot API has no
// at-the-close order type, so the close timing is owned by the caller.
func (b *Binance) CreateOrderMarketOnClose(side model.SideType, symbol string, quantity float64) (model.Order, error) {
	order, err := b.CreateOrderMarket(side, symbol, quantity)
	if err != nil {
		return model.Order{}, err
	}
	order.Type = model.OrderTypeMarketOnClose
	return order, nil
}

func (b *Binance) CreateOrderLimit(side model.SideType, symbol string, quantity, limit float64) (model.Order, error) {
	response, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Side(binance.SideType(side)).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		Price(strconv.FormatFloat(limit, 'f', -1, 64)).
		Do(b.ctx)
	if err != nil {
		return model.Order{}, err
	}
	return orderFromResponse(symbol, response), nil
}

// Update replaces the open order; the spot API has no modify endpoint, so
// the order is cancelled and resubmitted with the new quantity and price.
func (b *Binance) Update(order model.Order) (model.Order, error) {
	if err := b.Cancel(order, "replaced"); err != nil {
		return model.Order{}, err
	}
	if order.Type == model.OrderTypeLimit {
		return b.CreateOrderLimit(order.Side, order.Symbol, order.Quantity, order.Price)
	}
	return b.CreateOrderMarket(order.Side, order.Symbol, order.Quantity)
}

func (b *Binance) Cancel(order model.Order, reason string) error {
	log.Infof("[BINANCE] cancel order %d: %s", order.BrokerID, reason)
	_, err := b.client.NewCancelOrderService().
		Symbol(order.Symbol).
		OrderID(order.BrokerID).
		Do(b.ctx)
	return err
}

func (b *Binance) Order(symbol string, id int64) (model.Order, error) {
	order, err := b.client.NewGetOrderService().
		Symbol(symbol).
		OrderID(id).
		Do(b.ctx)
	if err != nil {
		return model.Order{}, err
	}
	return orderFromBinance(symbol, order), nil
}

func (b *Binance) OpenOrders(symbol string) ([]model.Order, error) {
	data, err := b.client.NewListOpenOrdersService().Symbol(symbol).Do(b.ctx)
	if err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(data))
	for _, order := range data {
		orders = append(orders, orderFromBinance(symbol, order))
	}
	return orders, nil
}

func orderFromResponse(symbol string, response *binance.CreateOrderResponse) model.Order {
	price, _ := strconv.ParseFloat(response.Price, 64)
	quantity, _ := strconv.ParseFloat(response.OrigQuantity, 64)
	filled, _ := strconv.ParseFloat(response.ExecutedQuantity, 64)

	return model.Order{
		ID:        response.OrderID,
		BrokerID:  response.OrderID,
		Symbol:    symbol,
		Side:      model.SideType(response.Side),
		Type:      model.OrderType(response.Type),
		Status:    model.OrderStatusType(response.Status),
		Price:     price,
		Quantity:  quantity,
		Filled:    filled,
		CreatedAt: time.Unix(0, response.TransactTime*int64(time.Millisecond)),
		UpdatedAt: time.Unix(0, response.TransactTime*int64(time.Millisecond)),
	}
}

func orderFromBinance(symbol string, order *binance.Order) model.Order {
	price, _ := strconv.ParseFloat(order.Price, 64)
	quantity, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	filled, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return model.Order{
		ID:        order.OrderID,
		BrokerID:  order.OrderID,
		Symbol:    symbol,
		Side:      model.SideType(order.Side),
		Type:      model.OrderType(order.Type),
		Status:    model.OrderStatusType(order.Status),
		Price:     price,
		Quantity:  quantity,
		Filled:    filled,
		CreatedAt: time.Unix(0, order.Time*int64(time.Millisecond)),
		UpdatedAt: time.Unix(0, order.UpdateTime*int64(time.Millisecond)),
	}
}

func barFromKline(symbol model.Symbol, resolution model.Resolution, k binance.Kline) *model.DataPoint {
	open, _ := strconv.ParseFloat(k.Open, 64)
	high, _ := strconv.ParseFloat(k.High, 64)
	low, _ := strconv.ParseFloat(k.Low, 64)
	closePrice, _ := strconv.ParseFloat(k.Close, 64)
	volume, _ := strconv.ParseFloat(k.Volume, 64)

	start := time.Unix(0, k.OpenTime*int64(time.Millisecond)).UTC()
	return model.NewTradeBar(symbol, start.Add(resolution.Duration()), model.Bar{
		Open: open, High: high, Low: low, Close: closePrice, Volume: volume,
		Period: resolution.Duration(),
	})
}

func barFromWsKline(symbol model.Symbol, resolution model.Resolution, k binance.WsKline) *model.DataPoint {
	open, _ := strconv.ParseFloat(k.Open, 64)
	high, _ := strconv.ParseFloat(k.High, 64)
	low, _ := strconv.ParseFloat(k.Low, 64)
	closePrice, _ := strconv.ParseFloat(k.Close, 64)
	volume, _ := strconv.ParseFloat(k.Volume, 64)

	start := time.Unix(0, k.StartTime*int64(time.Millisecond)).UTC()
	return model.NewTradeBar(symbol, start.Add(resolution.Duration()), model.Bar{
		Open: open, High: high, Low: low, Close: closePrice, Volume: volume,
		Period: resolution.Duration(),
	})
}

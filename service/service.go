// Package service defines the contracts between the engine and its pluggable
// parts: the user algorithm, brokerages, live data queues, history providers,
// result handlers and notifiers.
package service

import (
	"context"
	"time"

	"github.com/aricooperman/golean/model"
)

// Algorithm is the user strategy driven by the manager loop. Every callback
// runs on the manager goroutine; a returned error is recorded as a handled
// error and, for slice-level callbacks, ends the run.
type Algorithm interface {
	Initialize(ctx context.Context) error

	// OnData receives the full slice after the typed callbacks.
	OnData(slice *model.Slice) error
	OnTradeBars(bars map[string]*model.DataPoint) error
	OnQuoteBars(quotes map[string]*model.DataPoint) error
	OnTicks(ticks map[string][]*model.DataPoint) error
	OnCustomData(data []*model.DataPoint) error

	OnSplits(splits map[string]*model.DataPoint) error
	OnDividends(dividends map[string]*model.DataPoint) error
	OnDelistings(delistings map[string]*model.DataPoint) error
	OnSymbolChanged(changes map[string]*model.DataPoint) error

	OnSecuritiesChanged(changes model.SecurityChanges) error
	OnOrderEvent(order model.Order) error

	// OnMarginCall may modify or veto the liquidation requests.
	OnMarginCall(requests []model.Order) ([]model.Order, error)
	OnMarginCallWarning() error

	OnEndOfDay(symbol model.Symbol) error
	OnEndOfAlgorithm() error
}

// Exchange joins trading and data access the way a full brokerage does.
type Exchange interface {
	Broker
	Feeder
}

// Feeder provides market data: live subscriptions and historical lookups.
type Feeder interface {
	LastQuote(ctx context.Context, symbol string) (float64, error)
	DataSubscription(ctx context.Context, config *model.SubscriptionConfig) (chan *model.DataPoint, chan error)
	History(ctx context.Context, config *model.SubscriptionConfig, start, end time.Time) ([]*model.DataPoint, error)
}

// Broker executes and manages orders.
type Broker interface {
	Account() (model.Account, error)
	Position(symbol string) (quantity, averagePrice float64, err error)
	Order(symbol string, id int64) (model.Order, error)
	OpenOrders(symbol string) ([]model.Order, error)
	CreateOrderMarket(side model.SideType, symbol string, quantity float64) (model.Order, error)
	CreateOrderMarketOnClose(side model.SideType, symbol string, quantity float64) (model.Order, error)
	CreateOrderLimit(side model.SideType, symbol string, quantity, limit float64) (model.Order, error)
	Update(order model.Order) (model.Order, error)
	Cancel(order model.Order, reason string) error
}

// HistoryProvider feeds the warm-up phase before live data starts.
type HistoryProvider interface {
	History(ctx context.Context, configs []*model.SubscriptionConfig, start, end time.Time) ([]*model.TimeSlice, error)
}

// ResultHandler receives everything the outside world sees about a run.
type ResultHandler interface {
	SampleEquity(at time.Time, equity float64)
	SamplePerformance(at time.Time, percent float64)
	DebugMessage(message string)
	LogMessage(message string)
	// HandledError records a recoverable user-code failure.
	HandledError(err error)
	// RuntimeError records the fatal failure ending the run.
	RuntimeError(err error, stack string)
	StatusUpdate(status model.AlgorithmStatus, message string)
	OrderEvent(order model.Order)
	Finalize()
}

// Notifier pushes human-facing messages.
type Notifier interface {
	Notify(text string)
	OnOrder(order model.Order)
	OnError(err error)
}

// Telegram is a notifier with a polling loop of its own.
type Telegram interface {
	Notifier
	Start()
}

// Command is an external control request drained between iterations.
type Command interface {
	// Apply runs against the algorithm on the manager goroutine.
	Apply(algorithm Algorithm) error
	String() string
}

// CommandQueue hands external commands to the manager loop.
type CommandQueue interface {
	// TryDequeue never blocks; ok is false when the queue is empty.
	TryDequeue() (Command, bool)
}

// Package order implements the transaction handler: order creation and
// cancellation against a broker, synchronous fill processing, split
// adjustments, delisting liquidation tickets and the order event feed.
package order

import (
	"sync"

	"github.com/aricooperman/golean/model"
)

// FeedConsumer receives published order events.
type FeedConsumer func(order model.Order)

type orderQueue struct {
	data chan model.Order
	err  chan error
}

type subscription struct {
	onlyNewOrder bool
	consumer     FeedConsumer
}

// Feed fans order events out to per-symbol subscribers.
type Feed struct {
	mu            sync.Mutex
	queues        map[string]*orderQueue
	subscriptions map[string][]subscription
	started       bool
}

func NewOrderFeed() *Feed {
	return &Feed{
		queues:        make(map[string]*orderQueue),
		subscriptions: make(map[string][]subscription),
	}
}

// Subscribe registers a consumer for the symbol's order events; with
// onlyNewOrder set, only freshly created orders are delivered.
func (f *Feed) Subscribe(symbol string, consumer FeedConsumer, onlyNewOrder bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.queues[symbol]; !ok {
		f.queues[symbol] = &orderQueue{
			data: make(chan model.Order, 64),
			err:  make(chan error),
		}
	}
	f.subscriptions[symbol] = append(f.subscriptions[symbol], subscription{
		onlyNewOrder: onlyNewOrder,
		consumer:     consumer,
	})
}

// Publish pushes the order to its symbol's queue.
func (f *Feed) Publish(order model.Order, newOrder bool) {
	f.mu.Lock()
	queue, ok := f.queues[order.Symbol]
	f.mu.Unlock()
	if !ok {
		return
	}
	if newOrder {
		order.IsNew = true
	}
	queue.data <- order
}

// Start launches one dispatch goroutine per subscribed symbol.
func (f *Feed) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return
	}
	f.started = true

	for symbol := range f.queues {
		go func(queue *orderQueue, subs []subscription) {
			for order := range queue.data {
				for _, sub := range subs {
					if sub.onlyNewOrder && !order.IsNew {
						continue
					}
					sub.consumer(order)
				}
			}
		}(f.queues[symbol], f.subscriptions[symbol])
	}
}

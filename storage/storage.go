// Package storage persists orders behind a small filterable interface with
// in-memory, file and SQL backends.
package storage

import (
	"time"

	"github.com/aricooperman/golean/model"
)

// OrderFilter selects orders from a query result.
type OrderFilter func(model.Order) bool

// Storage persists and queries orders.
type Storage interface {
	CreateOrder(order *model.Order) error
	UpdateOrder(order *model.Order) error
	Orders(filters ...OrderFilter) ([]*model.Order, error)
}

// WithStatusIn keeps orders whose status is any of the given ones.
func WithStatusIn(status ...model.OrderStatusType) OrderFilter {
	return func(order model.Order) bool {
		for _, s := range status {
			if s == order.Status {
				return true
			}
		}
		return false
	}
}

// WithStatus keeps orders with exactly the given status.
func WithStatus(status model.OrderStatusType) OrderFilter {
	return func(order model.Order) bool {
		return order.Status == status
	}
}

// WithSymbol keeps orders for the given symbol.
func WithSymbol(symbol string) OrderFilter {
	return func(order model.Order) bool {
		return order.Symbol == symbol
	}
}

// WithOpenStatus keeps orders that can still fill.
func WithOpenStatus() OrderFilter {
	return func(order model.Order) bool {
		return order.IsOpen()
	}
}

// WithUpdateAtBeforeOrEqual keeps orders last touched at or before t.
func WithUpdateAtBeforeOrEqual(t time.Time) OrderFilter {
	return func(order model.Order) bool {
		return !order.UpdatedAt.After(t)
	}
}

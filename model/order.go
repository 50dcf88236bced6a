package model

import (
	"fmt"
	"time"
)

type SideType string

type OrderType string

type OrderStatusType string

var (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"
)

var (
	OrderTypeLimit         OrderType = "LIMIT"
	OrderTypeMarket        OrderType = "MARKET"
	OrderTypeMarketOnClose OrderType = "MARKET_ON_CLOSE"
	OrderTypeStopLoss      OrderType = "STOP_LOSS"
	OrderTypeStopLossLimit OrderType = "STOP_LOSS_LIMIT"
)

var (
	OrderStatusTypeNew             OrderStatusType = "NEW"
	OrderStatusTypeSubmitted       OrderStatusType = "SUBMITTED"
	OrderStatusTypePartiallyFilled OrderStatusType = "PARTIALLY_FILLED"
	OrderStatusTypeFilled          OrderStatusType = "FILLED"
	OrderStatusTypeCanceled        OrderStatusType = "CANCELED"
	OrderStatusTypePendingCancel   OrderStatusType = "PENDING_CANCEL"
	OrderStatusTypeRejected        OrderStatusType = "REJECTED"
	OrderStatusTypeExpired         OrderStatusType = "EXPIRED"
)

// Order is a request against the transaction handler. Tag and CancelReason
// are engine bookkeeping and not persisted.
type Order struct {
	ID       int64           `db:"id" json:"id" gorm:"primaryKey,autoIncrement"`
	BrokerID int64           `db:"broker_id" json:"broker_id"`
	Symbol   string          `db:"symbol" json:"symbol"`
	Side     SideType        `db:"side" json:"side"`
	Type     OrderType       `db:"type" json:"type"`
	Status   OrderStatusType `db:"status" json:"status"`
	Price    float64         `db:"price" json:"price"`
	Quantity float64         `db:"quantity" json:"quantity"`
	Filled   float64         `db:"filled" json:"filled"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Stop    *float64 `db:"stop" json:"stop"`
	GroupID *int64   `db:"group_id" json:"group_id"`

	Tag          string `json:"tag" gorm:"-"`
	CancelReason string `json:"cancel_reason" gorm:"-"`
	IsNew        bool   `json:"-" gorm:"-"`
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() float64 { return o.Quantity - o.Filled }

// IsOpen reports whether the order can still fill.
func (o Order) IsOpen() bool {
	switch o.Status {
	case OrderStatusTypeNew, OrderStatusTypeSubmitted, OrderStatusTypePartiallyFilled:
		return true
	}
	return false
}

func (o Order) String() string {
	return fmt.Sprintf("[%s] %s %s | ID: %d, Type: %s, %f x $%f (~$%.f)",
		o.Status, o.Side, o.Symbol, o.ID, o.Type, o.Quantity, o.Price, o.Quantity*o.Price)
}

// OrderTicket tracks an order the engine itself submitted, e.g. a delisting
// liquidation.
type OrderTicket struct {
	OrderID int64
	Symbol  Symbol
	Tag     string
}

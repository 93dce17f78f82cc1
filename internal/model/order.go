package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// OrderStatus is the persisted lifecycle state of an order row.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) IsAvailable() bool {
	switch s {
	case OrderStatusCreated, OrderStatusExecuted, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsFinal reports whether no transition may leave s.
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusExecuted || s == OrderStatusFailed || s == OrderStatusCancelled
}

// CanTransition reports whether s may move to next. Only created orders move.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s != OrderStatusCreated || !next.IsAvailable() {
		return false
	}
	return next != OrderStatusCreated
}

// OrderSide buy, sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func (s OrderSide) Normalize() OrderSide {
	return OrderSide(strings.ToUpper(strings.TrimSpace(string(s))))
}

func (s OrderSide) IsAvailable() bool {
	n := s.Normalize()
	return n == OrderSideBuy || n == OrderSideSell
}

// Order is a row of the upstream-owned orders table. The processing core
// reads id and status to claim, and writes status only. The remaining
// columns are read to build an executor request.
type Order struct {
	ID         string              `gorm:"column:id;primaryKey;size:36"`
	Status     OrderStatus         `gorm:"column:status;size:32;not null;index"`
	Symbol     string              `gorm:"column:symbol;size:32"`
	Side       OrderSide           `gorm:"column:side;size:8"`
	Volume     decimal.NullDecimal `gorm:"column:volume;type:numeric(24,8)"`
	StopLoss   decimal.NullDecimal `gorm:"column:stop_loss;type:numeric(24,8)"`
	TakeProfit decimal.NullDecimal `gorm:"column:take_profit;type:numeric(24,8)"`
}

func (Order) TableName() string {
	return "orders"
}

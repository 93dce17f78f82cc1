package executor

import (
	"context"

	"ordercore/internal/errors"
	"ordercore/internal/model"
	"ordercore/pkg/exception"

	"github.com/shopspring/decimal"
)

// Reason classifies a failed Result.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonConnectivity
	ReasonRejected
	ReasonInvalidParams
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonConnectivity:
		return "connectivity"
	case ReasonRejected:
		return "rejected"
	case ReasonInvalidParams:
		return "invalid_params"
	default:
		return "unknown"
	}
}

// Venue error codes. Local failures reuse the codes venues send for the same
// condition so one rule table covers both.
const (
	CodeOK                    = 0
	CodeConnectivity          = -1001
	CodeInvalidParams         = -1102
	CodeInvalidSymbol         = -1121
	CodeInvalidLeverage       = -4028
	CodeMarginTypeUnchanged   = -4046
	CodePositionSideUnchanged = -4059
)

// Result is the outcome of a venue call. Venue calls never panic or return
// bare errors; failures travel in the Result.
type Result struct {
	OK            bool
	Code          int
	Message       string
	Reason        Reason
	BrokerOrderID string
}

func (r Result) Succeeded() bool { return r.OK }

func (r Result) ErrorCode() int { return r.Code }

func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return errors.Wrapf(exception.ErrExecutorFailed, "%s: code %d, %s", r.Reason, r.Code, r.Message)
}

func Accepted(brokerOrderID string) Result {
	return Result{OK: true, Code: CodeOK, BrokerOrderID: brokerOrderID}
}

func Failure(reason Reason, code int, message string) Result {
	return Result{Reason: reason, Code: code, Message: message}
}

// Request carries what a venue needs to open a market order. Zero StopLoss or
// TakeProfit means none.
type Request struct {
	OrderID    string
	Symbol     string
	Side       model.OrderSide
	Volume     decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

func RequestFromOrder(o model.Order) Request {
	return Request{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side.Normalize(),
		Volume:     o.Volume.Decimal,
		StopLoss:   o.StopLoss.Decimal,
		TakeProfit: o.TakeProfit.Decimal,
	}
}

func (r Request) Validate() error {
	if r.OrderID == "" {
		return exception.ErrOrderEmptyID
	}
	if r.Symbol == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "empty symbol")
	}
	if !r.Side.IsAvailable() {
		return errors.Wrapf(exception.ErrInvalidArgument, "side %q", r.Side)
	}
	if !r.Volume.IsPositive() {
		return errors.Wrapf(exception.ErrInvalidArgument, "volume %s", r.Volume)
	}
	if r.StopLoss.IsNegative() || r.TakeProfit.IsNegative() {
		return errors.Wrapf(exception.ErrInvalidArgument, "stop loss %s, take profit %s", r.StopLoss, r.TakeProfit)
	}
	if r.StopLoss.IsZero() || r.TakeProfit.IsZero() {
		return nil
	}

	switch r.Side.Normalize() {
	case model.OrderSideBuy:
		if !r.StopLoss.LessThan(r.TakeProfit) {
			return errors.Wrapf(exception.ErrInvalidArgument, "buy stop loss %s must be below take profit %s", r.StopLoss, r.TakeProfit)
		}
	case model.OrderSideSell:
		if !r.StopLoss.GreaterThan(r.TakeProfit) {
			return errors.Wrapf(exception.ErrInvalidArgument, "sell stop loss %s must be above take profit %s", r.StopLoss, r.TakeProfit)
		}
	}
	return nil
}

// Executor submits claimed orders to a trading venue. It is built once at
// process start, injected, and closed at shutdown.
type Executor interface {
	Submit(ctx context.Context, req Request) Result
	Close() error
}

// Venue exposes the per-symbol account settings applied before trading.
type Venue interface {
	SetMarginType(ctx context.Context, symbol, marginType string) Result
	SetLeverage(ctx context.Context, symbol string, leverage int) Result
}

func invalid(err error) Result {
	return Failure(ReasonInvalidParams, CodeInvalidParams, err.Error())
}

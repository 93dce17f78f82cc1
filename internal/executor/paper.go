package executor

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	_ Executor = (*Paper)(nil)
	_ Venue    = (*Paper)(nil)
)

const maxPaperLeverage = 125

// Paper is a simulated venue that fills every valid order. It is safe for
// concurrent use.
type Paper struct {
	mu        sync.Mutex
	closed    bool
	rejects   map[string]Result
	submitted []Request
	margin    map[string]string
	leverage  map[string]int
}

func NewPaper() *Paper {
	return &Paper{
		rejects:  make(map[string]Result),
		margin:   make(map[string]string),
		leverage: make(map[string]int),
	}
}

// Reject makes every order on symbol fail with the given venue code.
func (p *Paper) Reject(symbol string, code int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejects[strings.ToUpper(symbol)] = Failure(ReasonRejected, code, message)
}

func (p *Paper) Submit(ctx context.Context, req Request) Result {
	if err := ctx.Err(); err != nil {
		return Failure(ReasonConnectivity, CodeConnectivity, err.Error())
	}
	if err := req.Validate(); err != nil {
		return invalid(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Failure(ReasonConnectivity, CodeConnectivity, "paper venue closed")
	}
	if res, ok := p.rejects[strings.ToUpper(req.Symbol)]; ok {
		return res
	}
	p.submitted = append(p.submitted, req)
	return Accepted(uuid.NewString())
}

// Submitted returns a copy of the accepted requests.
func (p *Paper) Submitted() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.submitted))
	copy(out, p.submitted)
	return out
}

func (p *Paper) SetMarginType(ctx context.Context, symbol, marginType string) Result {
	if err := ctx.Err(); err != nil {
		return Failure(ReasonConnectivity, CodeConnectivity, err.Error())
	}
	marginType = strings.ToUpper(marginType)
	if symbol == "" || (marginType != "ISOLATED" && marginType != "CROSSED") {
		return Failure(ReasonInvalidParams, CodeInvalidParams, "invalid margin setting")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.margin[symbol] == marginType {
		return Failure(ReasonRejected, CodeMarginTypeUnchanged, "No need to change margin type.")
	}
	p.margin[symbol] = marginType
	return Accepted("")
}

func (p *Paper) SetLeverage(ctx context.Context, symbol string, leverage int) Result {
	if err := ctx.Err(); err != nil {
		return Failure(ReasonConnectivity, CodeConnectivity, err.Error())
	}
	if symbol == "" {
		return Failure(ReasonInvalidParams, CodeInvalidSymbol, "invalid symbol")
	}
	if leverage < 1 || leverage > maxPaperLeverage {
		return Failure(ReasonInvalidParams, CodeInvalidLeverage, "leverage not valid")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage[symbol] = leverage
	return Accepted("")
}

func (p *Paper) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

package executor

import (
	"context"

	"ordercore/internal/errors"
	"ordercore/internal/retry"
	"ordercore/pkg/exception"

	"github.com/yanun0323/logs"
)

// SymbolSettings are the account settings applied to a symbol before trading.
// A zero Leverage or empty MarginType skips that step.
type SymbolSettings struct {
	Symbol     string
	MarginType string
	Leverage   int
}

// DefaultVenueRules says which venue codes end a configuration step early.
func DefaultVenueRules() retry.Rules {
	return retry.Rules{
		CodeMarginTypeUnchanged:   retry.Success,
		CodePositionSideUnchanged: retry.Success,
		CodeInvalidSymbol:         retry.Fatal,
		CodeInvalidLeverage:       retry.Fatal,
		CodeInvalidParams:         retry.Fatal,
	}
}

func DefaultPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Backoff:     retry.DefaultBackoff(),
		Rules:       DefaultVenueRules(),
		Default:     retry.Retry,
	}
}

// Configurator applies SymbolSettings through a retry policy.
type Configurator struct {
	venue  Venue
	policy retry.Policy
}

func NewConfigurator(venue Venue, policy retry.Policy) (*Configurator, error) {
	if venue == nil {
		return nil, exception.ErrExecutorNil
	}
	return &Configurator{venue: venue, policy: policy}, nil
}

func (c *Configurator) Configure(ctx context.Context, settings ...SymbolSettings) error {
	for _, s := range settings {
		if s.Symbol == "" {
			return errors.Wrap(exception.ErrInvalidArgument, "empty symbol")
		}

		if s.MarginType != "" {
			res, err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) Result {
				return c.venue.SetMarginType(ctx, s.Symbol, s.MarginType)
			})
			if err != nil {
				logs.Errorf("configure margin failed, symbol: %s, code: %d, msg: %s", s.Symbol, res.Code, res.Message)
				return errors.Wrapf(err, "margin type %s for %s", s.MarginType, s.Symbol)
			}
			logs.Infof("margin configured, symbol: %s, type: %s, code: %d", s.Symbol, s.MarginType, res.Code)
		}

		if s.Leverage != 0 {
			res, err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) Result {
				return c.venue.SetLeverage(ctx, s.Symbol, s.Leverage)
			})
			if err != nil {
				logs.Errorf("configure leverage failed, symbol: %s, code: %d, msg: %s", s.Symbol, res.Code, res.Message)
				return errors.Wrapf(err, "leverage %d for %s", s.Leverage, s.Symbol)
			}
			logs.Infof("leverage configured, symbol: %s, leverage: %d", s.Symbol, s.Leverage)
		}
	}
	return nil
}

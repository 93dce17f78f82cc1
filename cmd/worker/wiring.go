package main

import (
	"context"
	"fmt"

	"ordercore/internal/errors"
	"ordercore/internal/executor"
	"ordercore/internal/model"
	"ordercore/internal/ops"
	"ordercore/internal/store"
	"ordercore/pkg/exception"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// buildExecutor returns nil for the none kind, which only records orders.
func buildExecutor(spec ops.ExecutorSpec) (executor.Executor, error) {
	switch spec.Kind {
	case ops.ExecutorNone, "":
		return nil, nil
	case ops.ExecutorPaper:
		return executor.NewPaper(), nil
	case ops.ExecutorHTTP:
		h, err := executor.NewHTTP(nil, spec.HTTPConfig)
		if err != nil {
			return nil, fmt.Errorf("http executor: %w", err)
		}
		return h, nil
	default:
		return nil, errors.Wrapf(exception.ErrExecutorUnsupported, "kind %q", spec.Kind)
	}
}

func configureVenue(ctx context.Context, exec executor.Executor, symbols []executor.SymbolSettings) error {
	if len(symbols) == 0 {
		return nil
	}
	venue, ok := exec.(executor.Venue)
	if !ok {
		return nil
	}
	cfg, err := executor.NewConfigurator(venue, executor.DefaultPolicy())
	if err != nil {
		return err
	}
	if err := cfg.Configure(ctx, symbols...); err != nil {
		return fmt.Errorf("configure venue: %w", err)
	}
	return nil
}

var demoSymbols = []string{"BTCUSD", "ETHUSD", "XAUUSD"}

func seedMemory(mem *store.Memory, n int) error {
	if n < 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "seed %d must be >= 0", n)
	}
	orders := make([]model.Order, 0, n)
	for i := range n {
		side := model.OrderSideBuy
		if i%2 == 1 {
			side = model.OrderSideSell
		}
		orders = append(orders, model.Order{
			ID:     uuid.NewString(),
			Status: model.OrderStatusCreated,
			Symbol: demoSymbols[i%len(demoSymbols)],
			Side:   side,
			Volume: decimal.NewNullDecimal(decimal.New(1, -2)),
		})
	}
	return mem.Insert(orders...)
}

package retry

import (
	"context"
	"time"

	"ordercore/internal/errors"
	"ordercore/pkg/exception"
)

// Decision is what a policy does with a failed attempt.
type Decision uint8

const (
	Retry Decision = iota
	Success
	Fatal
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Success:
		return "success"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result of one attempt.
type Outcome interface {
	Succeeded() bool
	ErrorCode() int
}

// Rules maps venue error codes to decisions.
type Rules map[int]Decision

// Policy is a table-driven retry policy.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	Rules       Rules
	// Default applies to codes without a rule.
	Default Decision

	sleep func(ctx context.Context, d time.Duration) error
}

func (p Policy) Decide(o Outcome) Decision {
	if o.Succeeded() {
		return Success
	}
	if d, ok := p.Rules[o.ErrorCode()]; ok {
		return d
	}
	return p.Default
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs op until the policy settles. The last outcome is always returned;
// the error is nil when it was settled as Success, ErrRetryFatal or
// ErrRetryExhausted otherwise, or the context error.
func Do[T Outcome](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) T) (T, error) {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var last T
	attempts := p.maxAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		last = op(ctx, attempt)
		switch p.Decide(last) {
		case Success:
			return last, nil
		case Fatal:
			return last, errors.Wrapf(exception.ErrRetryFatal, "attempt %d, code %d", attempt, last.ErrorCode())
		}

		if attempt < attempts {
			if err := sleep(ctx, p.Backoff.Next(attempt)); err != nil {
				return last, err
			}
		}
	}
	return last, errors.Wrapf(exception.ErrRetryExhausted, "%d attempts, code %d", attempts, last.ErrorCode())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

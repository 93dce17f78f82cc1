package scheduler

import (
	"context"
	"time"

	"ordercore/internal/errors"
	"ordercore/pkg/exception"

	"github.com/yanun0323/logs"
)

// Every runs fn once immediately and then on each tick of interval until ctx
// is done. Cycles never overlap: a tick that fires while fn is still running
// is dropped. A cycle that already started runs to completion even when ctx
// is cancelled meanwhile; fn errors are logged and do not stop the loop.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.Wrap(exception.ErrNilInstance, "cycle func")
	}
	if interval <= 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "interval %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := fn(context.WithoutCancel(ctx)); err != nil {
			logs.Errorf("cycle failed, err: %+v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

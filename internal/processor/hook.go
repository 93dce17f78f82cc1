package processor

import (
	"context"
	"io"

	"github.com/yanun0323/logs"
)

// Hook observes finished cycles. Hooks run synchronously on the processing
// goroutine and cannot change the outcome of a cycle.
type Hook interface {
	OnCycle(ctx context.Context, s Summary)
}

type HookFunc func(ctx context.Context, s Summary)

func (f HookFunc) OnCycle(ctx context.Context, s Summary) {
	f(ctx, s)
}

// BellHook rings the terminal bell once per cycle that executed at least
// one order.
func BellHook(w io.Writer) Hook {
	return HookFunc(func(_ context.Context, s Summary) {
		if w == nil || s.Executed == 0 {
			return
		}
		if _, err := w.Write([]byte{'\a'}); err != nil {
			logs.Errorf("bell hook, err: %+v", err)
		}
	})
}

package processor

import (
	"context"
	"time"

	"ordercore/internal/errors"
	"ordercore/internal/executor"
	"ordercore/internal/obs"
	"ordercore/internal/store"
	"ordercore/pkg/exception"

	"github.com/yanun0323/logs"
)

// State is where one claimed order ended up after a cycle.
type State uint8

const (
	StateExecuted State = iota + 1
	StateSkipped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateExecuted:
		return "executed"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome records what happened to one claimed order. Dispatch is set when
// an executor was called after the order committed.
type Outcome struct {
	OrderID  string
	State    State
	Err      error
	Dispatch *executor.Result
}

// Summary describes one cycle. Err is set only for setup and claim failures.
type Summary struct {
	Cycle          uint64
	Claimed        int
	Executed       int
	Skipped        int
	Failed         int
	Dispatched     int
	DispatchFailed int
	Duration       time.Duration
	Outcomes       []Outcome
	Err            error
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.State {
	case StateExecuted:
		s.Executed++
	case StateSkipped:
		s.Skipped++
	case StateFailed:
		s.Failed++
	}
	if o.Dispatch == nil {
		return
	}
	if o.Dispatch.OK {
		s.Dispatched++
	} else {
		s.DispatchFailed++
	}
}

type Config struct {
	// Executor receives each order after it committed. Nil only records.
	Executor executor.Executor
	Metrics  *obs.Metrics
	Hooks    []Hook
	Sequence *obs.CycleSequence
	Now      func() time.Time
}

// Processor runs claim, execute and log cycles against a Store.
type Processor struct {
	store   store.Store
	exec    executor.Executor
	metrics *obs.Metrics
	hooks   []Hook
	seq     *obs.CycleSequence
	now     func() time.Time
}

func New(s store.Store, cfg Config) (*Processor, error) {
	if s == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "store")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	seq := cfg.Sequence
	if seq == nil {
		seq = obs.NewCycleSequence(0)
	}
	return &Processor{
		store:   s,
		exec:    cfg.Executor,
		metrics: cfg.Metrics,
		hooks:   cfg.Hooks,
		seq:     seq,
		now:     now,
	}, nil
}

// ProcessOrders runs one full cycle. Per-order failures are contained and
// reported in the Summary; the returned error is non-nil only when the
// schema setup or the claim failed, in which case nothing was executed.
func (p *Processor) ProcessOrders(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{Cycle: p.seq.Next()}

	if err := p.store.EnsureSchema(ctx); err != nil {
		logs.Errorf("cycle %d: ensure orders_log, err: %+v", summary.Cycle, err)
		return p.finish(ctx, summary, start, err)
	}

	orders, err := p.store.ClaimBatch(ctx)
	if err != nil {
		logs.Errorf("cycle %d: claim batch, err: %+v", summary.Cycle, err)
		return p.finish(ctx, summary, start, err)
	}

	summary.Claimed = len(orders)
	p.metrics.AddClaimed(len(orders))
	if len(orders) != 0 {
		logs.Infof("cycle %d: claimed %d orders", summary.Cycle, len(orders))
	}

	for _, o := range orders {
		summary.add(p.processOne(ctx, summary.Cycle, o.ID))
	}

	return p.finish(ctx, summary, start, nil)
}

func (p *Processor) processOne(ctx context.Context, cycle uint64, id string) Outcome {
	begin := time.Now()
	order, err := p.store.Execute(ctx, id, p.now())
	p.metrics.ObserveOrder(time.Since(begin))

	if err != nil {
		if errors.Is(err, exception.ErrOrderUnavailable) || errors.Is(err, exception.ErrOrderAlreadyLogged) {
			logs.Infof("cycle %d: order %s skipped, reason: %v", cycle, id, err)
			p.metrics.IncOutcome(obs.OutcomeSkipped)
			return Outcome{OrderID: id, State: StateSkipped, Err: err}
		}
		logs.Errorf("cycle %d: order %s rolled back, err: %+v", cycle, id, err)
		p.metrics.IncOutcome(obs.OutcomeFailed)
		return Outcome{OrderID: id, State: StateFailed, Err: err}
	}

	p.metrics.IncOutcome(obs.OutcomeExecuted)
	out := Outcome{OrderID: id, State: StateExecuted}
	if p.exec == nil {
		logs.Infof("cycle %d: order %s executed and logged", cycle, id)
		return out
	}

	res := p.exec.Submit(ctx, executor.RequestFromOrder(order))
	out.Dispatch = &res
	if !res.OK {
		p.metrics.IncOutcome(obs.OutcomeDispatchFailed)
		logs.Errorf("cycle %d: order %s logged but dispatch failed, err: %+v", cycle, id, res.Err())
		return out
	}

	p.metrics.IncOutcome(obs.OutcomeDispatched)
	logs.Infof("cycle %d: order %s executed and logged, broker order: %s", cycle, id, res.BrokerOrderID)
	return out
}

func (p *Processor) finish(ctx context.Context, summary Summary, start time.Time, err error) (Summary, error) {
	summary.Duration = time.Since(start)
	summary.Err = err
	p.metrics.ObserveCycle(summary.Duration, err)

	if summary.Claimed != 0 {
		logs.Infof("cycle %d: done in %s, executed: %d, skipped: %d, failed: %d, dispatch failed: %d",
			summary.Cycle, summary.Duration, summary.Executed, summary.Skipped, summary.Failed, summary.DispatchFailed)
	}

	for _, h := range p.hooks {
		if h != nil {
			h.OnCycle(ctx, summary)
		}
	}
	return summary, err
}

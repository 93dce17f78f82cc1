package obs

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ordercore"

// Order outcomes used as the label of the orders counter.
const (
	OutcomeClaimed        = "claimed"
	OutcomeExecuted       = "executed"
	OutcomeSkipped        = "skipped"
	OutcomeFailed         = "failed"
	OutcomeDispatched     = "dispatched"
	OutcomeDispatchFailed = "dispatch_failed"
)

// Metrics collects processing counters and latency stats. A nil *Metrics is
// a valid no-op recorder.
type Metrics struct {
	cycles         uint64
	cycleErrors    uint64
	claimed        uint64
	executed       uint64
	skipped        uint64
	failed         uint64
	dispatched     uint64
	dispatchFailed uint64

	cycleLatency LatencyStats
	orderLatency LatencyStats

	prom atomic.Pointer[collectors]
}

type collectors struct {
	cycles        *prometheus.CounterVec
	orders        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	orderDuration prometheus.Histogram
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Cycles         uint64
	CycleErrors    uint64
	Claimed        uint64
	Executed       uint64
	Skipped        uint64
	Failed         uint64
	Dispatched     uint64
	DispatchFailed uint64
	CycleLatency   LatencySnapshot
	OrderLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Register exports the metrics to reg. Counters start from the moment of
// registration.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil || reg == nil {
		return nil
	}

	c := &collectors{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Processing cycles by result.",
		}, []string{"result"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders by processing outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full processing cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		orderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_duration_seconds",
			Help:      "Duration of one per-order transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	for _, col := range []prometheus.Collector{c.cycles, c.orders, c.cycleDuration, c.orderDuration} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	m.prom.Store(c)
	return nil
}

// ObserveCycle records one processing cycle.
func (m *Metrics) ObserveCycle(d time.Duration, err error) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.cycles, 1)
	result := "ok"
	if err != nil {
		atomic.AddUint64(&m.cycleErrors, 1)
		result = "error"
	}
	m.cycleLatency.Observe(d)

	if c := m.prom.Load(); c != nil {
		c.cycles.WithLabelValues(result).Inc()
		c.cycleDuration.Observe(d.Seconds())
	}
}

// ObserveOrder records the duration of one per-order transaction.
func (m *Metrics) ObserveOrder(d time.Duration) {
	if m == nil {
		return
	}
	m.orderLatency.Observe(d)
	if c := m.prom.Load(); c != nil {
		c.orderDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) AddClaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.claimed, uint64(n))
	m.addOutcome(OutcomeClaimed, n)
}

// IncOutcome counts one order with the given outcome.
func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	switch outcome {
	case OutcomeExecuted:
		atomic.AddUint64(&m.executed, 1)
	case OutcomeSkipped:
		atomic.AddUint64(&m.skipped, 1)
	case OutcomeFailed:
		atomic.AddUint64(&m.failed, 1)
	case OutcomeDispatched:
		atomic.AddUint64(&m.dispatched, 1)
	case OutcomeDispatchFailed:
		atomic.AddUint64(&m.dispatchFailed, 1)
	default:
		return
	}
	m.addOutcome(outcome, 1)
}

func (m *Metrics) addOutcome(outcome string, n int) {
	if c := m.prom.Load(); c != nil {
		c.orders.WithLabelValues(outcome).Add(float64(n))
	}
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Cycles:         atomic.LoadUint64(&m.cycles),
		CycleErrors:    atomic.LoadUint64(&m.cycleErrors),
		Claimed:        atomic.LoadUint64(&m.claimed),
		Executed:       atomic.LoadUint64(&m.executed),
		Skipped:        atomic.LoadUint64(&m.skipped),
		Failed:         atomic.LoadUint64(&m.failed),
		Dispatched:     atomic.LoadUint64(&m.dispatched),
		DispatchFailed: atomic.LoadUint64(&m.dispatchFailed),
		CycleLatency:   m.cycleLatency.Snapshot(),
		OrderLatency:   m.orderLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}

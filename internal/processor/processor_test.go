package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ordercore/internal/executor"
	"ordercore/internal/model"
	"ordercore/internal/obs"
	"ordercore/internal/store"
	"ordercore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

// stubStore wraps a memory store to inject setup failures and races.
type stubStore struct {
	*store.Memory

	schemaErr  error
	claimErr   error
	afterClaim func(orders []model.Order)
	claims     int
}

func (s *stubStore) EnsureSchema(ctx context.Context) error {
	if s.schemaErr != nil {
		return s.schemaErr
	}
	return s.Memory.EnsureSchema(ctx)
}

func (s *stubStore) ClaimBatch(ctx context.Context) ([]model.Order, error) {
	s.claims++
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	orders, err := s.Memory.ClaimBatch(ctx)
	if err == nil && s.afterClaim != nil {
		s.afterClaim(orders)
	}
	return orders, err
}

func newMemory(t *testing.T, ids ...string) *store.Memory {
	t.Helper()
	m := store.NewMemory(0)
	for _, id := range ids {
		require.NoError(t, m.Insert(model.Order{
			ID:     id,
			Symbol: "BTCUSD",
			Side:   model.OrderSideBuy,
			Volume: decimal.NewNullDecimal(decimal.RequireFromString("0.01")),
		}))
	}
	return m
}

func newProcessor(t *testing.T, s store.Store, cfg Config) *Processor {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	p, err := New(s, cfg)
	require.NoError(t, err)
	return p
}

func assertStatus(t *testing.T, m *store.Memory, id string, want model.OrderStatus) {
	t.Helper()
	o, ok := m.Order(id)
	require.True(t, ok, id)
	assert.Equal(t, want, o.Status, id)
}

func TestProcessOrdersRoundTrip(t *testing.T) {
	m := newMemory(t, "A1")
	p := newProcessor(t, m, Config{})

	summary, err := p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Claimed)
	assert.Equal(t, 1, summary.Executed)
	assert.True(t, m.SchemaReady())

	assertStatus(t, m, "A1", model.OrderStatusExecuted)
	logs := m.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "A1", logs[0].OrderID)
	assert.Equal(t, fixedNow, logs[0].ProcessedAt)

	summary, err = p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Zero(t, summary.Claimed)
	assert.Len(t, m.Logs(), 1)
}

func TestProcessOrdersEmpty(t *testing.T) {
	p := newProcessor(t, store.NewMemory(0), Config{})
	summary, err := p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Zero(t, summary.Claimed)
	assert.Empty(t, summary.Outcomes)
}

func TestProcessOrdersIsolatesFailures(t *testing.T) {
	m := newMemory(t, "O1", "O2", "O3", "O4", "O5")
	violation := errors.New(`duplicate key value violates unique constraint "orders_pkey"`)
	m.FailOn("O3", violation)

	metrics := obs.NewMetrics()
	p := newProcessor(t, m, Config{Metrics: metrics})

	summary, err := p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Claimed)
	assert.Equal(t, 4, summary.Executed)
	assert.Equal(t, 1, summary.Failed)

	for _, id := range []string{"O1", "O2", "O4", "O5"} {
		assertStatus(t, m, id, model.OrderStatusExecuted)
	}
	assertStatus(t, m, "O3", model.OrderStatusCreated)
	assert.Len(t, m.Logs(), 4)

	require.Len(t, summary.Outcomes, 5)
	failed := summary.Outcomes[2]
	assert.Equal(t, "O3", failed.OrderID)
	assert.Equal(t, StateFailed, failed.State)
	assert.True(t, errors.Is(failed.Err, violation))

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(4), snap.Executed)
	assert.Equal(t, uint64(1), snap.Failed)
	assert.Equal(t, uint64(1), snap.Cycles)

	m.FailOn("O3", nil)
	summary, err = p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Executed)
	assertStatus(t, m, "O3", model.OrderStatusExecuted)
}

func TestProcessOrdersExecutedXorCreated(t *testing.T) {
	ids := make([]string, 0, 20)
	for i := range 20 {
		ids = append(ids, fmt.Sprintf("X%02d", i))
	}
	m := newMemory(t, ids...)
	for i, id := range ids {
		if i%3 == 0 {
			m.FailOn(id, errors.New("lock timeout"))
		}
	}

	p := newProcessor(t, m, Config{})
	summary, err := p.ProcessOrders(t.Context())
	require.NoError(t, err)

	logged := make(map[string]bool)
	for _, e := range m.Logs() {
		logged[e.OrderID] = true
	}
	for _, out := range summary.Outcomes {
		o, _ := m.Order(out.OrderID)
		switch out.State {
		case StateExecuted:
			assert.Equal(t, model.OrderStatusExecuted, o.Status)
			assert.True(t, logged[out.OrderID])
		case StateFailed:
			assert.Equal(t, model.OrderStatusCreated, o.Status)
			assert.False(t, logged[out.OrderID])
			assert.Error(t, out.Err)
		default:
			t.Fatalf("unexpected state %s for %s", out.State, out.OrderID)
		}
	}
}

func TestProcessOrdersConcurrentAtMostOnce(t *testing.T) {
	ids := make([]string, 0, 200)
	for i := range 200 {
		ids = append(ids, fmt.Sprintf("C%03d", i))
	}
	m := newMemory(t, ids...)

	const workers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := New(m, Config{})
			if !assert.NoError(t, err) {
				return
			}
			for range 3 {
				summary, err := p.ProcessOrders(context.Background())
				assert.NoError(t, err)
				mu.Lock()
				total += summary.Executed
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(ids), total)
	seen := make(map[string]int)
	for _, e := range m.Logs() {
		seen[e.OrderID]++
	}
	assert.Len(t, seen, len(ids))
	for id, n := range seen {
		assert.Equalf(t, 1, n, "order %s logged %d times", id, n)
	}
}

func TestProcessOrdersLockedOrderRetriedNextCycle(t *testing.T) {
	m := newMemory(t, "A1", "A2")
	p := newProcessor(t, m, Config{})

	release := m.Hold("A1")
	summary, err := p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Claimed)
	assertStatus(t, m, "A1", model.OrderStatusCreated)

	// the holder crashed before committing
	release()

	summary, err = p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Claimed)
	assert.Equal(t, "A1", summary.Outcomes[0].OrderID)
	assertStatus(t, m, "A1", model.OrderStatusExecuted)
}

func TestProcessOrdersDuplicateLogIsNoop(t *testing.T) {
	m := newMemory(t, "A1", "A2")
	s := &stubStore{Memory: m}
	s.afterClaim = func(orders []model.Order) {
		require.NoError(t, m.AppendLog("A1", fixedNow))
	}
	p := newProcessor(t, s, Config{})

	summary, err := p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Claimed)
	assert.Equal(t, 1, summary.Executed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
	assert.True(t, errors.Is(summary.Outcomes[0].Err, exception.ErrOrderAlreadyLogged))
	assert.Len(t, m.Logs(), 2)
}

func TestProcessOrdersRaceWithOtherWorker(t *testing.T) {
	m := newMemory(t, "A1")
	s := &stubStore{Memory: m}
	s.afterClaim = func(orders []model.Order) {
		_, err := m.Execute(context.Background(), "A1", fixedNow)
		require.NoError(t, err)
	}
	p := newProcessor(t, s, Config{})

	summary, err := p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, errors.Is(summary.Outcomes[0].Err, exception.ErrOrderUnavailable))
	assert.Len(t, m.Logs(), 1)
}

func TestProcessOrdersSetupFailures(t *testing.T) {
	schemaErr := fmt.Errorf("%w: permission denied for schema public", exception.ErrSchema)
	connErr := fmt.Errorf("%w: dial tcp 127.0.0.1:5432: connection refused", exception.ErrConnectivity)

	t.Run("schema", func(t *testing.T) {
		s := &stubStore{Memory: newMemory(t, "A1"), schemaErr: schemaErr}
		p := newProcessor(t, s, Config{})
		summary, err := p.ProcessOrders(t.Context())
		assert.True(t, errors.Is(err, exception.ErrSchema))
		assert.Equal(t, err, summary.Err)
		assert.Zero(t, s.claims)
		assertStatus(t, s.Memory, "A1", model.OrderStatusCreated)
	})

	t.Run("claim", func(t *testing.T) {
		metrics := obs.NewMetrics()
		s := &stubStore{Memory: newMemory(t, "A1"), claimErr: connErr}
		p := newProcessor(t, s, Config{Metrics: metrics})
		_, err := p.ProcessOrders(t.Context())
		assert.True(t, errors.Is(err, exception.ErrConnectivity))
		assertStatus(t, s.Memory, "A1", model.OrderStatusCreated)
		assert.Equal(t, uint64(1), metrics.Snapshot().CycleErrors)
	})
}

func TestProcessOrdersDispatch(t *testing.T) {
	m := newMemory(t, "A1", "A2")
	require.NoError(t, m.Insert(model.Order{
		ID:     "E1",
		Symbol: "ETHUSD",
		Side:   model.OrderSideSell,
		Volume: decimal.NewNullDecimal(decimal.RequireFromString("2")),
	}))

	paper := executor.NewPaper()
	paper.Reject("ETHUSD", -2019, "margin is insufficient")
	p := newProcessor(t, m, Config{Executor: paper})

	summary, err := p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Executed)
	assert.Equal(t, 2, summary.Dispatched)
	assert.Equal(t, 1, summary.DispatchFailed)

	submitted := paper.Submitted()
	require.Len(t, submitted, 2)
	assert.Equal(t, "A1", submitted[0].OrderID)
	assert.True(t, submitted[0].Volume.Equal(decimal.RequireFromString("0.01")))

	rejected := summary.Outcomes[2]
	require.NotNil(t, rejected.Dispatch)
	assert.Equal(t, executor.ReasonRejected, rejected.Dispatch.Reason)
	// dispatch failures never revert the committed transition
	assertStatus(t, m, "E1", model.OrderStatusExecuted)

	summary, err = p.ProcessOrders(t.Context())
	require.NoError(t, err)
	assert.Zero(t, summary.Claimed)
	assert.Len(t, paper.Submitted(), 2)
}

func TestProcessOrdersHooks(t *testing.T) {
	m := newMemory(t, "A1")
	var (
		bell bytes.Buffer
		seen []Summary
	)
	p := newProcessor(t, m, Config{
		Sequence: obs.NewCycleSequence(10),
		Hooks: []Hook{
			nil,
			BellHook(&bell),
			HookFunc(func(_ context.Context, s Summary) { seen = append(seen, s) }),
		},
	})

	_, err := p.ProcessOrders(t.Context())
	require.NoError(t, err)
	_, err = p.ProcessOrders(t.Context())
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, uint64(11), seen[0].Cycle)
	assert.Equal(t, uint64(12), seen[1].Cycle)
	assert.Equal(t, 1, seen[0].Executed)
	assert.Equal(t, "\a", bell.String())
}

func TestNewNilStore(t *testing.T) {
	_, err := New(nil, Config{})
	assert.True(t, errors.Is(err, exception.ErrNilInstance))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "executed", StateExecuted.String())
	assert.Equal(t, "skipped", StateSkipped.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(0).String())
}

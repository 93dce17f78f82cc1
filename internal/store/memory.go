package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"ordercore/internal/errors"
	"ordercore/internal/model"
	"ordercore/pkg/exception"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store with the same claim and execution rules as
// Postgres. Rows held with Hold behave like rows locked by a concurrent
// transaction: claims and executions skip them.
type Memory struct {
	mu sync.Mutex

	ids     []string
	orders  map[string]*model.Order
	logs    map[string]model.LogEntry
	held    map[string]int
	faults  map[string]error
	nextLog uint64

	claimLimit  int
	schemaReady bool
}

func NewMemory(claimLimit int) *Memory {
	if claimLimit < 0 {
		claimLimit = 0
	}
	return &Memory{
		orders:     make(map[string]*model.Order),
		logs:       make(map[string]model.LogEntry),
		held:       make(map[string]int),
		faults:     make(map[string]error),
		claimLimit: claimLimit,
	}
}

// Insert places orders the way the upstream component does. An empty status
// becomes created.
func (m *Memory) Insert(orders ...model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range orders {
		if o.ID == "" {
			return exception.ErrOrderEmptyID
		}
		if _, ok := m.orders[o.ID]; ok {
			return errors.Wrapf(exception.ErrOrderDuplicateInsert, "order %s", o.ID)
		}
		if o.Status == "" {
			o.Status = model.OrderStatusCreated
		}
		if !o.Status.IsAvailable() {
			return errors.Wrapf(exception.ErrOrderInvalidStatus, "order %s status %q", o.ID, o.Status)
		}
		stored := o
		m.orders[o.ID] = &stored
		m.ids = append(m.ids, o.ID)
	}
	return nil
}

// Hold locks the row as another transaction would until release is called.
// Calling release more than once has no further effect.
func (m *Memory) Hold(id string) (release func()) {
	m.mu.Lock()
	m.held[id]++
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.held[id] <= 1 {
				delete(m.held, id)
				return
			}
			m.held[id]--
		})
	}
}

// FailOn makes every Execute of id fail with err before anything is written.
// A nil err clears the fault.
func (m *Memory) FailOn(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, id)
		return
	}
	m.faults[id] = err
}

// AppendLog writes a log entry directly, as a racing worker would.
func (m *Memory) AppendLog(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logs[id]; ok {
		return errors.Wrapf(exception.ErrOrderAlreadyLogged, "order %s", id)
	}
	m.appendLogLocked(id, at)
	return nil
}

func (m *Memory) Order(id string) (model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Orders returns a copy of every order in insertion order.
func (m *Memory) Orders() []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, *m.orders[id])
	}
	return out
}

// Logs returns the log entries in insertion order.
func (m *Memory) Logs() []model.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]model.LogEntry, 0, len(m.logs))
	for _, e := range m.logs {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b model.LogEntry) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return entries
}

func (m *Memory) SchemaReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schemaReady
}

func (m *Memory) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(exception.ErrConnectivity, err)
	}
	m.mu.Lock()
	m.schemaReady = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) ClaimBatch(ctx context.Context) ([]model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(exception.ErrConnectivity, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	orders := []model.Order{}
	for _, id := range m.ids {
		if m.claimLimit > 0 && len(orders) >= m.claimLimit {
			break
		}
		o := m.orders[id]
		if o.Status != model.OrderStatusCreated || m.held[id] > 0 {
			continue
		}
		if _, logged := m.logs[id]; logged {
			continue
		}
		orders = append(orders, model.Order{ID: o.ID, Status: o.Status})
	}
	return orders, nil
}

func (m *Memory) Execute(ctx context.Context, id string, at time.Time) (model.Order, error) {
	if id == "" {
		return model.Order{}, exception.ErrOrderEmptyID
	}
	if err := ctx.Err(); err != nil {
		return model.Order{}, errors.Join(exception.ErrConnectivity, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.faults[id]; ok {
		return model.Order{}, errors.Join(exception.ErrOrderTransaction, errors.Wrapf(err, "order %s", id))
	}

	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, errors.Join(exception.ErrOrderUnavailable, errors.Wrapf(exception.ErrOrderNotFound, "order %s", id))
	}
	if m.held[id] > 0 || !o.Status.CanTransition(model.OrderStatusExecuted) {
		return model.Order{}, errors.Wrapf(exception.ErrOrderUnavailable, "order %s", id)
	}
	if _, logged := m.logs[id]; logged {
		return model.Order{}, errors.Wrapf(exception.ErrOrderAlreadyLogged, "order %s", id)
	}

	o.Status = model.OrderStatusExecuted
	m.appendLogLocked(id, at)
	return *o, nil
}

func (m *Memory) appendLogLocked(id string, at time.Time) {
	m.nextLog++
	m.logs[id] = model.LogEntry{ID: m.nextLog, OrderID: id, ProcessedAt: at.UTC()}
}

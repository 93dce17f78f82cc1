package chaos

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"ordercore/internal/errors"
	"ordercore/internal/model"
	"ordercore/internal/store"
	"ordercore/pkg/exception"
)

var (
	errInjectedClaim   = errors.New("chaos: injected claim failure")
	errInjectedExecute = errors.New("chaos: injected execute failure")
)

// Config controls fault injection. Rates are probabilities in [0, 1].
type Config struct {
	Seed int64
	// ClaimFailRate fails ClaimBatch as a dropped connection would.
	ClaimFailRate float64
	// FailRate rolls back Execute before anything is written.
	FailRate float64
	// RaceRate lets a phantom worker execute the order first.
	RaceRate float64
	// MaxDelay sleeps up to this long before each Execute.
	MaxDelay time.Duration
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	for name, rate := range map[string]float64{
		"claimFailRate": c.ClaimFailRate,
		"failRate":      c.FailRate,
		"raceRate":      c.RaceRate,
	} {
		if rate < 0 || rate > 1 {
			return errors.Wrapf(exception.ErrInvalidArgument, "%s must be between 0 and 1", name)
		}
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "maxDelay must be >= 0")
	}
	return nil
}

var _ store.Store = (*Store)(nil)

// Store wraps a Store and injects the failures a shared database produces
// under load. It is safe for concurrent use.
type Store struct {
	inner store.Store
	cfg   Config

	mu  sync.Mutex
	rng *rand.Rand
}

func NewStore(inner store.Store, cfg Config) (*Store, error) {
	if inner == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Store{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.inner.EnsureSchema(ctx)
}

func (s *Store) ClaimBatch(ctx context.Context) ([]model.Order, error) {
	if s.hit(s.cfg.ClaimFailRate) {
		return nil, errors.Join(exception.ErrConnectivity, errInjectedClaim)
	}
	return s.inner.ClaimBatch(ctx)
}

func (s *Store) Execute(ctx context.Context, id string, at time.Time) (model.Order, error) {
	if d := s.delay(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.Order{}, errors.Join(exception.ErrConnectivity, ctx.Err())
		case <-timer.C:
		}
	}

	if s.hit(s.cfg.FailRate) {
		return model.Order{}, errors.Join(exception.ErrOrderTransaction, errors.Wrapf(errInjectedExecute, "order %s", id))
	}
	if s.hit(s.cfg.RaceRate) {
		// the phantom's own outcome does not matter, only that it went first
		_, _ = s.inner.Execute(ctx, id, at)
	}
	return s.inner.Execute(ctx, id, at)
}

func (s *Store) hit(rate float64) bool {
	if rate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < rate
}

func (s *Store) delay() time.Duration {
	maxDelay := s.cfg.MaxDelay.Nanoseconds()
	if maxDelay <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.rng.Int63n(maxDelay + 1))
}

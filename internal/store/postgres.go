package store

import (
	"context"
	"time"

	"ordercore/internal/errors"
	"ordercore/internal/model"
	"ordercore/pkg/exception"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	_ Store = (*Postgres)(nil)

	skipLocked = clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}
)

// PostgresConfig tunes the claim query.
type PostgresConfig struct {
	// ClaimLimit caps the rows locked per claim. Zero claims every eligible row.
	ClaimLimit int
}

// Postgres implements Store on top of row-level locks.
type Postgres struct {
	db  *gorm.DB
	cfg PostgresConfig
}

func NewPostgres(db *gorm.DB, cfg PostgresConfig) (*Postgres, error) {
	if db == nil {
		return nil, exception.ErrStoreNilDatabase
	}
	if cfg.ClaimLimit < 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "claim limit %d", cfg.ClaimLimit)
	}
	return &Postgres{db: db, cfg: cfg}, nil
}

// EnsureSchema creates orders_log and its unique index if absent.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(&model.LogEntry{})
	if err == nil || isAlreadyExists(err) {
		return nil
	}
	if isConnectivity(err) {
		return errors.Join(exception.ErrConnectivity, err)
	}
	return errors.Join(exception.ErrSchema, err)
}

// ClaimBatch locks the eligible rows with SKIP LOCKED and commits right away,
// so no lock is held while orders execute. Execute re-checks each row.
func (s *Postgres) ClaimBatch(ctx context.Context) ([]model.Order, error) {
	orders := []model.Order{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return claimOrders(tx, s.cfg.ClaimLimit, &orders).Error
	})
	if err != nil {
		if isConnectivity(err) {
			return nil, errors.Join(exception.ErrConnectivity, err)
		}
		return nil, errors.Join(exception.ErrClaim, err)
	}
	return orders, nil
}

// Execute runs the per-order transaction: lock the row if it is still
// created and unlocked, mark it executed, append the log entry. Any failure
// rolls the whole transaction back.
func (s *Postgres) Execute(ctx context.Context, id string, at time.Time) (model.Order, error) {
	if id == "" {
		return model.Order{}, exception.ErrOrderEmptyID
	}

	var order model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := lockOrder(tx, id, &order)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return exception.ErrOrderUnavailable
		}

		res = markExecuted(tx, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return exception.ErrOrderUnavailable
		}

		entry := model.LogEntry{OrderID: id, ProcessedAt: at.UTC()}
		res = appendLog(tx, &entry)
		if res.Error != nil {
			if isDuplicateKey(res.Error) {
				return exception.ErrOrderAlreadyLogged
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return exception.ErrOrderAlreadyLogged
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, exception.ErrOrderUnavailable), errors.Is(err, exception.ErrOrderAlreadyLogged):
			return model.Order{}, errors.Wrapf(err, "order %s", id)
		case isConnectivity(err):
			return model.Order{}, errors.Join(exception.ErrConnectivity, errors.Wrapf(err, "order %s", id))
		default:
			return model.Order{}, errors.Join(exception.ErrOrderTransaction, errors.Wrapf(err, "order %s", id))
		}
	}

	order.Status = model.OrderStatusExecuted
	return order, nil
}

func claimOrders(tx *gorm.DB, limit int, dest *[]model.Order) *gorm.DB {
	logged := tx.Session(&gorm.Session{NewDB: true}).
		Model(&model.LogEntry{}).
		Select("order_id")

	q := tx.Model(&model.Order{}).
		Select("id", "status").
		Where("status = ?", model.OrderStatusCreated).
		Where("id NOT IN (?)", logged)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q.Clauses(skipLocked).Find(dest)
}

func lockOrder(tx *gorm.DB, id string, dest *model.Order) *gorm.DB {
	return tx.Clauses(skipLocked).
		Where("id = ? AND status = ?", id, model.OrderStatusCreated).
		Limit(1).
		Find(dest)
}

func markExecuted(tx *gorm.DB, id string) *gorm.DB {
	return tx.Model(&model.Order{}).
		Where("id = ? AND status = ?", id, model.OrderStatusCreated).
		Update("status", model.OrderStatusExecuted)
}

func appendLog(tx *gorm.DB, entry *model.LogEntry) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(entry)
}

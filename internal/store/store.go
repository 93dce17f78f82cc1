package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"ordercore/internal/model"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Store is the durable order store seen by the processing loop.
//
// ClaimBatch returns created orders that are not yet logged, skipping rows
// locked by other transactions. Execute moves one order to executed and
// appends its log entry in a single transaction.
type Store interface {
	EnsureSchema(ctx context.Context) error
	ClaimBatch(ctx context.Context) ([]model.Order, error)
	Execute(ctx context.Context, id string, at time.Time) (model.Order, error)
}

const (
	pgCodeUniqueViolation = "23505"
	pgCodeDuplicateTable  = "42P07"
	pgCodeDuplicateObject = "42710"
	pgClassConnection     = "08"

	// operator intervention: the server is closing or refusing sessions
	pgCodeAdminShutdown = "57P01"
	pgCodeCrashShutdown = "57P02"
	pgCodeCannotConnect = "57P03"
)

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgCodeUniqueViolation
}

// isAlreadyExists matches the errors concurrent CREATE TABLE IF NOT EXISTS
// raises when another session created the table first. The race on pg_type
// surfaces as a unique violation.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if isDuplicateKey(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgCodeDuplicateTable || pgErr.Code == pgCodeDuplicateObject
}

func isConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeAdminShutdown, pgCodeCrashShutdown, pgCodeCannotConnect:
			return true
		}
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == pgClassConnection
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

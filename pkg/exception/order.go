package exception

import "errors"

// Per-order errors. None of them stop the rest of a batch.
var (
	// ErrOrderUnavailable is returned when the row is no longer created or is
	// locked by another worker's transaction.
	ErrOrderUnavailable = errors.New("order: unavailable for execution")

	// ErrOrderAlreadyLogged is returned when orders_log already holds the id.
	ErrOrderAlreadyLogged = errors.New("order: already logged")

	ErrOrderTransaction     = errors.New("order: transaction failed")
	ErrOrderEmptyID         = errors.New("order: empty id")
	ErrOrderInvalidStatus   = errors.New("order: invalid status")
	ErrOrderNotFound        = errors.New("order: not found")
	ErrOrderDuplicateInsert = errors.New("order: duplicate id")
)

package exception

import "github.com/yanun0323/errors"

// Store errors. Connectivity and schema failures abort a processing cycle.
var (
	ErrConnectivity     = errors.New("store: connectivity failure")
	ErrSchema           = errors.New("store: schema setup failed")
	ErrClaim            = errors.New("store: claim batch failed")
	ErrStoreInvalidDSN  = errors.New("store: invalid connection option")
	ErrStoreNilDatabase = errors.New("store: nil database")
)

package exception

import "errors"

var (
	ErrExecutorNil         = errors.New("executor: nil executor")
	ErrExecutorEndpoint    = errors.New("executor: empty endpoint")
	ErrExecutorUnsupported = errors.New("executor: unsupported kind")
	ErrExecutorClosed      = errors.New("executor: closed")
	ErrExecutorFailed      = errors.New("executor: venue call failed")
)

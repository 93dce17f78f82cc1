package exception

import "errors"

var (
	ErrRetryExhausted = errors.New("retry: attempts exhausted")
	ErrRetryFatal     = errors.New("retry: fatal result")
)

package errors

import (
	"errors"
	"fmt"
)

var (
	_ error = (*wrappedError)(nil)
)

func New(text string) error {
	return errors.New(text)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap annotates err with text. A nil err stays nil so callers can wrap
// unconditionally on return paths.
func Wrap(err error, text string) error {
	if err == nil {
		return nil
	}

	if len(text) == 0 {
		return err
	}

	return &wrappedError{
		err: err,
		msg: text,
	}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return Wrap(err, fmt.Sprintf(format, args...))
}

// Join wraps cause under the sentinel kind, so both match with Is.
func Join(kind, cause error) error {
	if cause == nil {
		return kind
	}

	return &joinedError{kind: kind, cause: cause}
}

type wrappedError struct {
	err error
	msg string
}

const sep = ", err: "

func (err wrappedError) Error() string {
	if err.err == nil {
		return err.msg
	}

	return err.msg + sep + err.err.Error()
}

func (err wrappedError) Unwrap() error {
	if err.err == nil {
		return errors.New(err.msg)
	}

	return err.err
}

type joinedError struct {
	kind  error
	cause error
}

func (err joinedError) Error() string {
	return err.kind.Error() + sep + err.cause.Error()
}

func (err joinedError) Unwrap() []error {
	return []error{err.kind, err.cause}
}

package utils

import (
	"errors"
	"fmt"
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// ErrOp extracts the operation of the outermost AppError in err's chain, or
// "unknown" when none is present. Used for log and metric labels.
func ErrOp(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Op != "" {
		return appErr.Op
	}
	return "unknown"
}

package engine

import (
	"context"
	"errors"
	"fmt"
)

// ReconcileError is a failure of a whole reconcile pass, as opposed to a
// read failure, which degrades to "absent" and never aborts the pass.
type ReconcileError struct {
	// Code identifies the error category.
	Code ReconcileErrorCode

	// Message is a human-readable description.
	Message string

	// Directory is the project directory the pass was started for.
	Directory string

	// PassID correlates the error with the pass's log lines.
	PassID string

	Err error
}

// ReconcileErrorCode categorizes reconcile errors.
type ReconcileErrorCode string

const (
	// ErrCodeCancelled indicates the pass context was cancelled.
	ErrCodeCancelled ReconcileErrorCode = "CANCELLED"

	// ErrCodePanic indicates a collaborator or the pass itself panicked.
	ErrCodePanic ReconcileErrorCode = "PANIC"
)

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Directory != "" {
		msg += fmt.Sprintf(" (dir=%s, pass=%s)", e.Directory, e.PassID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// IsCancelled returns true if err is a cancelled reconcile pass.
// Uses errors.As to handle wrapped errors.
func IsCancelled(err error) bool {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCancelled
	}
	return false
}

// IsPanic returns true if err is a reconcile pass that panicked.
func IsPanic(err error) bool {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Code == ErrCodePanic
	}
	return false
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// panicError converts a recovered value into a ReconcileError.
func panicError(r any) *ReconcileError {
	err, _ := r.(error)
	return &ReconcileError{
		Code:    ErrCodePanic,
		Message: fmt.Sprintf("panic: %v", r),
		Err:     err,
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/linuxmatters/sigtrace/internal/results"
)

var (
	// ErrUnknownMethod is returned when resolving an unregistered identifier.
	ErrUnknownMethod = errors.New("unknown method")
	// ErrDuplicateMethod is returned when two methods share an identifier.
	ErrDuplicateMethod = errors.New("duplicate method identifier")
	// ErrResourceLimitExceeded is returned by methods whose input exceeds max_samples.
	ErrResourceLimitExceeded = errors.New("resource limit exceeded")
)

// MethodExecutionError wraps an error or recovered panic from a method invocation.
type MethodExecutionError struct {
	Category string
	Method   string
	Err      error
}

func (e *MethodExecutionError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Category, e.Method, e.Err)
}

func (e *MethodExecutionError) Unwrap() error { return e.Err }

// CheckSampleLimit returns ErrResourceLimitExceeded when n exceeds limit.
// A non-positive limit disables the check.
func CheckSampleLimit(n, limit int) error {
	if limit > 0 && n > limit {
		return fmt.Errorf("%w: %d samples exceeds max_samples %d", ErrResourceLimitExceeded, n, limit)
	}
	return nil
}

// describe maps an invocation error onto the record's failure descriptor.
func describe(err error) results.Failure {
	kind := results.KindMethodExecution
	switch {
	case errors.Is(err, ErrResourceLimitExceeded):
		kind = results.KindResourceLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = results.KindCancelled
	}
	msg := err.Error()
	var mee *MethodExecutionError
	if errors.As(err, &mee) {
		msg = mee.Err.Error()
	}
	return results.Failure{Kind: kind, Message: msg}
}

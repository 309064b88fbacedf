package bfq

import (
	"errors"
	"fmt"
)

// ErrorCode represents a high-level error category the scheduler
// distinguishes, mirroring the error-kind taxonomy this package's error
// handling is grounded on.
type ErrorCode string

const (
	// ErrCodeMustAlloc signals that a queue or I/O-context allocation
	// failed; callers back off and retry once state has advanced.
	ErrCodeMustAlloc ErrorCode = "must alloc"
	// ErrCodeInvalidTunable signals a tunable attribute value outside its
	// accepted range.
	ErrCodeInvalidTunable ErrorCode = "invalid tunable"
	// ErrCodeInvariantViolation signals a scheduler invariant was
	// violated (entity on the wrong tree, dangling refcount, dispatch
	// with no active queue, timer firing with no scheduler).
	ErrCodeInvariantViolation ErrorCode = "invariant violation"
	// ErrCodePriorityParseFailed signals a producer's priority could not
	// be resolved; callers fall back to a nice-derived priority.
	ErrCodePriorityParseFailed ErrorCode = "priority parse failed"
)

// Error is a structured scheduler error carrying the operation, the queue
// it concerns (if any), a high-level code, and any wrapped cause.
type Error struct {
	Op      string
	QueueID int // -1 if not applicable
	Code    ErrorCode
	Msg     string
	Inner   error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.QueueID >= 0 {
		parts = append(parts, fmt.Sprintf("queue=%d", e.QueueID))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("bfq: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("bfq: %s", msg)
}

// Unwrap returns the wrapped cause, for errors.Is/errors.As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is reports whether target is a *Error with the same Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError creates a structured error with no queue association.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, QueueID: -1, Code: code, Msg: msg}
}

// NewQueueError creates a structured error scoped to a queue.
func NewQueueError(op string, queueID int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, QueueID: queueID, Code: code, Msg: msg}
}

// ErrMustAlloc is returned by GetQueue when the caller must retry after
// the scheduler's state has advanced, modeling the allocator-wait
// backpressure protocol without an actual blocking call.
var ErrMustAlloc = NewError("GetQueue", ErrCodeMustAlloc, "queue allocation deferred, retry after next dispatch")

// IsCode reports whether err is, or wraps, a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

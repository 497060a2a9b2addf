/*
Package dynoro – error types.
*/
package dynoro

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrorCode is a well-known error category string.
type ErrorCode string

const (
	ErrValidation          ErrorCode = "ValidationError"
	ErrCapacity            ErrorCode = "CapacityError"
	ErrUnprocessed         ErrorCode = "UnprocessedError"
	ErrCondition           ErrorCode = "ConditionError"
	ErrTransactionCanceled ErrorCode = "TransactionCanceledError"
	ErrNotFound            ErrorCode = "NotFoundError"
	ErrRuntime             ErrorCode = "RuntimeError"
)

// Error is the error type returned by all dynoro operations. It carries an
// optional Code and a free-form Context map for extra debugging data.
type Error struct {
	Message string
	Code    ErrorCode
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an Error.
func NewError(msg string, opts ...func(*Error)) *Error {
	err := &Error{Message: msg}
	for _, o := range opts {
		o(err)
	}
	return err
}

// WithCode sets the error code.
func WithCode(c ErrorCode) func(*Error) {
	return func(e *Error) { e.Code = c }
}

// WithContext attaches a context map.
func WithContext(ctx map[string]any) func(*Error) {
	return func(e *Error) { e.Context = ctx }
}

// WithCause wraps an underlying error.
func WithCause(cause error) func(*Error) {
	return func(e *Error) { e.Cause = cause }
}

// hasCode reports whether err is (or wraps) an *Error with the given code.
func hasCode(err error, code ErrorCode) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsNotFound reports whether err indicates a missing item.
func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound)
}

// IsConditionFailed reports whether err indicates a failed conditional write.
// Matches both the dynoro error code and the raw DynamoDB exception type.
func IsConditionFailed(err error) bool {
	if hasCode(err, ErrCondition) {
		return true
	}
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// IsTransactionCanceled reports whether err indicates a canceled transaction.
func IsTransactionCanceled(err error) bool {
	if hasCode(err, ErrTransactionCanceled) {
		return true
	}
	var tce *types.TransactionCanceledException
	return errors.As(err, &tce)
}

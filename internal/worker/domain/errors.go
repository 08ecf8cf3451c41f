package domain

import "errors"

var (
	// ErrRequestNotEligible is returned when a request no longer matches the
	// auto-publish predicate at update time
	ErrRequestNotEligible = errors.New("request is no longer eligible for auto-publish")

	// ErrInvalidPayload is returned when a notification message is malformed
	ErrInvalidPayload = errors.New("invalid notification payload")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

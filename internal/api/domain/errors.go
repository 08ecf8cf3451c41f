package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the escrow service wraps one of these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrGatewayFailure = errors.New("payment gateway failure")
	ErrStoreFailure   = errors.New("store failure")
)

var (
	ErrEscrowNotFound       = fmt.Errorf("escrow %w", ErrNotFound)
	ErrEscrowNotActive      = fmt.Errorf("%w: escrow is not active", ErrInvalidState)
	ErrEscrowCompleted      = fmt.Errorf("%w: escrow is already completed", ErrInvalidState)
	ErrExceedsBalance       = fmt.Errorf("%w: release amount exceeds escrow balance", ErrInvalidState)
	ErrEscrowNotConfirmable = fmt.Errorf("%w: escrow can no longer be confirmed", ErrInvalidState)
	ErrEscrowExists         = fmt.Errorf("%w: escrow already exists for project", ErrConflict)
	ErrNonPositiveAmount    = fmt.Errorf("%w: amount must be greater than 0", ErrInvalidInput)
)

// Stable kind names exposed to API callers
const (
	KindNotFound       = "NOT_FOUND"
	KindInvalidState   = "INVALID_STATE"
	KindInvalidInput   = "INVALID_INPUT"
	KindConflict       = "CONFLICT"
	KindGatewayFailure = "GATEWAY_FAILURE"
	KindStoreFailure   = "STORE_FAILURE"
	KindInternal       = "INTERNAL"
	KindUnauthorized   = "UNAUTHORIZED"
)

// Kind returns the stable kind name of err
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrGatewayFailure):
		return KindGatewayFailure
	case errors.Is(err, ErrStoreFailure):
		return KindStoreFailure
	default:
		return KindInternal
	}
}

// IsRetryable reports whether a caller may retry the same operation later
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayFailure) || errors.Is(err, ErrStoreFailure)
}

// Package domainerrors defines code-carrying errors shared by services and
// transport. Services create or wrap errors with a Code; the HTTP layer maps
// codes to statuses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for propagation policy and transport mapping.
type Code string

const (
	// CodeInvalidInput marks malformed or out-of-range caller input.
	CodeInvalidInput Code = "invalid_input"

	// CodeItemNotReservable marks a reservation attempt against an item that
	// no longer accepts reservations (minted, closed, or unknown).
	CodeItemNotReservable Code = "item_not_reservable"

	// CodeUnauthorized marks an operation by a caller without authority over
	// the target reservation.
	CodeUnauthorized Code = "unauthorized"

	// CodeNotFound marks references to an unknown reservation or item.
	CodeNotFound Code = "not_found"

	// CodeMintWindowClosed marks a mint confirmation outside the allowed
	// window or by a non-highest holder.
	CodeMintWindowClosed Code = "mint_window_closed"

	// CodeContention marks a per-item lock that could not be acquired within
	// its timeout. Retryable by the caller with backoff.
	CodeContention Code = "contention"

	// CodeInconsistentState marks a ranking invariant violation detected
	// during recompute. Fatal: the surrounding transaction must abort.
	CodeInconsistentState Code = "inconsistent_state"

	// CodeInternal marks unexpected infrastructure failures. Details are
	// logged, never surfaced to clients.
	CodeInternal Code = "internal_error"
)

// Error is a domain error with a classification code.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause chain for errors.Is/As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost domain error in err's chain, or
// CodeInternal when err carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the caller may retry the failed operation.
// Only lock contention is retryable; every other code is a definitive answer.
func Retryable(err error) bool {
	return HasCode(err, CodeContention)
}

// Package apperr defines the error taxonomy shared by the domain services.
// Every failure the core reports to a caller is either one of the classified
// kinds below or an unclassified internal fault.
package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies an error for propagation to the boundary.
type Kind string

const (
	KindInternal          Kind = "internal"
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflict          Kind = "conflict"
	KindForbidden         Kind = "forbidden"
	// KindUnavailable marks transient failures (lock timeout, deadlock,
	// serialization failure). Callers may retry.
	KindUnavailable Kind = "unavailable"
)

// Error is a classified error with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, keeping it as the cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return New(KindInvalidState, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func Unavailable(err error, message string) *Error {
	return Wrap(KindUnavailable, err, message)
}

// StockError reports that an inventory item cannot cover a requested quantity.
type StockError struct {
	InventoryID uuid.UUID
	SKU         string
	Name        string
	Available   int
	Required    int
}

func (e *StockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.InventoryID.String()
	}
	return fmt.Sprintf("Insufficient stock for %s. Available: %d, Required: %d", name, e.Available, e.Required)
}

// Shortfall is the number of units missing to satisfy the request.
func (e *StockError) Shortfall() int {
	return e.Required - e.Available
}

// KindOf returns the classification of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *StockError
	if errors.As(err, &se) {
		return KindInsufficientStock
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether the operation that produced err may succeed
// if attempted again.
func IsRetryable(err error) bool {
	return Is(err, KindUnavailable)
}

// PublicMessage returns the message safe to show a caller. Internal errors
// never leak their cause.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindInternal:
		return "Something went wrong. Please try again later."
	case KindUnavailable:
		return "The requested resources are busy. Please retry."
	case KindInsufficientStock:
		var se *StockError
		errors.As(err, &se)
		return se.Error()
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}

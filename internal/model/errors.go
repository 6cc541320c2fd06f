package model

import "fmt"

// ErrorKind classifies why a contract call was rejected.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindInvalidName         ErrorKind = "invalid_name"
	KindInvalidProperty     ErrorKind = "invalid_property"
	KindUnavailable         ErrorKind = "unavailable"
	KindNotOccupied         ErrorKind = "not_occupied"
	KindPriceMismatch       ErrorKind = "price_mismatch"
	KindForbidden           ErrorKind = "forbidden"
	KindNotFound            ErrorKind = "not_found"
	KindNameTaken           ErrorKind = "name_taken"
	KindInsufficientDeposit ErrorKind = "insufficient_deposit"
	KindAlreadyInitialized  ErrorKind = "already_initialized"
)

// Error is the terminal outcome of a rejected call. Any Error aborts the
// enclosing call and discards its pending state changes.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Is matches on Kind so errors.Is(err, ErrForbidden) holds for any
// forbidden error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrInvalidName         = &Error{Kind: KindInvalidName}
	ErrInvalidProperty     = &Error{Kind: KindInvalidProperty}
	ErrUnavailable         = &Error{Kind: KindUnavailable}
	ErrNotOccupied         = &Error{Kind: KindNotOccupied}
	ErrPriceMismatch       = &Error{Kind: KindPriceMismatch}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrNameTaken           = &Error{Kind: KindNameTaken}
	ErrInsufficientDeposit = &Error{Kind: KindInsufficientDeposit}
	ErrAlreadyInitialized  = &Error{Kind: KindAlreadyInitialized}
)

// Errorf builds an Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the console core
type ErrorKind string

const (
	KindNetwork      ErrorKind = "NetworkError"
	KindTimeout      ErrorKind = "Timeout"
	KindAuthRejected ErrorKind = "AuthRejected"
	KindAuthExpired  ErrorKind = "AuthExpired"
	KindServer       ErrorKind = "ServerError"
	KindValidation   ErrorKind = "ValidationError"
)

// Sentinels for errors.Is matching. A timeout matches both ErrTimeout and
// ErrNetwork.
var (
	ErrNetwork      = errors.New("network error")
	ErrTimeout      = errors.New("request timed out")
	ErrAuthRejected = errors.New("authentication rejected")
	ErrAuthExpired  = errors.New("session expired")
	ErrServer       = errors.New("server error")
	ErrValidation   = errors.New("validation error")
)

// Error is the failure type returned by the gateway and the state machines
type Error struct {
	Kind    ErrorKind
	Status  int    // HTTP status, 0 when no response was received
	Message string // human readable, safe to display
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps kinds onto the sentinels
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork || e.Kind == KindTimeout
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrAuthRejected:
		return e.Kind == KindAuthRejected
	case ErrAuthExpired:
		return e.Kind == KindAuthExpired
	case ErrServer:
		return e.Kind == KindServer
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

// Display returns the message to show a user for any error
func Display(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}

// KindOf returns the kind of err, or "" for foreign errors
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

var (
	// ErrInvalidTransition is returned when an operation is not valid from
	// the current session status.
	ErrInvalidTransition = validationError("operation not allowed in the current session state")
	// ErrNotAuthenticated guards poller operations
	ErrNotAuthenticated = validationError("session is not authenticated")
	// ErrFetchInFlight is returned when a fetch is already outstanding
	ErrFetchInFlight = validationError("a dashboard fetch is already in progress")
)

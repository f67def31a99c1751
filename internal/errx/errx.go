// Package errx defines the client's error taxonomy and the fixed
// user-facing strings shown in place of raw transport detail.
package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SendFailedMessage is shown in the conversation when a send fails.
	SendFailedMessage = "Sorry, I encountered an error. Please try again."
	// HistoryFailedMessage is shown in the history panel when listing fails.
	HistoryFailedMessage = "Failed to load chat history"
	// TransportErrorMessage describes network and non-2xx failures.
	TransportErrorMessage = "backend request failed"
)

var (
	// ErrUnauthorized is the AuthError: a 401 from a protected endpoint, or a
	// protected request attempted without a token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmptyMessage is the ValidationError for blank chat input.
	ErrEmptyMessage = errors.New("message is empty")
)

// Error is a TransportError: a network failure (Status 0) or a non-2xx,
// non-401 response.
type Error struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a TransportError with the given status.
func New(err error, status int, message string) *Error {
	if message == "" {
		message = TransportErrorMessage
	}
	return &Error{Err: err, Status: status, Message: message}
}

// FromStatus maps a response status to the taxonomy. It returns nil for 2xx.
func FromStatus(status int, detail string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		var err error
		if detail != "" {
			err = errors.New(detail)
		}
		return New(err, status, fmt.Sprintf("%s (status %d)", TransportErrorMessage, status))
	}
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// StatusOf returns the HTTP status carried by a TransportError, 401 for an
// AuthError, and 0 otherwise.
func StatusOf(err error) int {
	if IsAuth(err) {
		return http.StatusUnauthorized
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

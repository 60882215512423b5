package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies request-level failures.
type ErrorKind int

const (
	KindEntityNotFound ErrorKind = iota + 1
	KindValidation
	KindBadRequest
	KindDatabase
	KindServer
	KindEndpointGeneration
	KindAuth
	KindNotFound
	KindIO
	KindSerialization
)

var kindPrefixes = map[ErrorKind]string{
	KindEntityNotFound:     "Entity not found",
	KindValidation:         "Validation error",
	KindBadRequest:         "Bad request",
	KindDatabase:           "Database error",
	KindServer:             "Server error",
	KindEndpointGeneration: "Endpoint generation error",
	KindAuth:               "Authentication error",
	KindNotFound:           "Not found",
	KindIO:                 "I/O error",
	KindSerialization:      "Serialization error",
}

// String returns the message prefix of the kind.
func (k ErrorKind) String() string {
	if p, ok := kindPrefixes[k]; ok {
		return p
	}
	return "Error"
}

// Status returns the HTTP status of the kind.
func (k ErrorKind) Status() int {
	switch k {
	case KindEntityNotFound, KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error is a request-level failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of the error.
func (e *Error) StatusCode() int {
	return e.Kind.Status()
}

// Errorf builds an *Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind whose message ends with err's.
func Wrap(kind ErrorKind, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg += ": " + err.Error()
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// EntityNotFound builds a KindEntityNotFound error.
func EntityNotFound(format string, args ...any) *Error {
	return Errorf(KindEntityNotFound, format, args...)
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error {
	return Errorf(KindValidation, format, args...)
}

// BadRequest builds a KindBadRequest error.
func BadRequest(format string, args ...any) *Error {
	return Errorf(KindBadRequest, format, args...)
}

// KindOf returns the kind of err, or 0 when it is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// StatusCode maps any error to an HTTP status. Errors that are not *Error are 500.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}

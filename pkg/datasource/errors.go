package datasource

import (
	"errors"
	"fmt"
)

// Kind classifies a datasource failure.
type Kind int

const (
	KindConnection Kind = iota + 1
	KindQuery
	KindNotFound
	KindValidation
	KindMapping
	KindSerialization
)

// String returns the human-readable error prefix of the kind.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "Connection error"
	case KindQuery:
		return "Query error"
	case KindNotFound:
		return "Not found"
	case KindValidation:
		return "Validation error"
	case KindMapping:
		return "Mapping error"
	case KindSerialization:
		return "Serialization error"
	}
	return "Datasource error"
}

// Error is returned by every datasource operation that fails.
type Error struct {
	Kind    Kind
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

// Is matches another *Error of the same kind, so kind sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Message == "" && t.Kind == e.Kind
	}
	return false
}

var (
	// ErrConnection matches connection failures.
	ErrConnection = &Error{Kind: KindConnection}

	// ErrQuery matches query failures and timeouts.
	ErrQuery = &Error{Kind: KindQuery}

	// ErrNotFound matches lookups of unknown entities or records.
	ErrNotFound = &Error{Kind: KindNotFound}

	// ErrValidation matches values rejected before reaching storage.
	ErrValidation = &Error{Kind: KindValidation}

	// ErrMapping matches failures converting between rows and entities.
	ErrMapping = &Error{Kind: KindMapping}

	// ErrSerialization matches failures encoding entities.
	ErrSerialization = &Error{Kind: KindSerialization}
)

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of a datasource error, or 0 when err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

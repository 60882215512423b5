package config

import "fmt"

// ErrorKind classifies a configuration failure.
type ErrorKind int

const (
	KindFileNotFound ErrorKind = iota + 1
	KindFileRead
	KindDeserialize
	KindValidation
)

// Error is returned while loading or validating configuration.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindFileNotFound:
		return fmt.Sprintf("Configuration file not found: %s", e.Path)
	case KindFileRead:
		return fmt.Sprintf("Error reading file %s: %v", e.Path, e.Err)
	case KindDeserialize:
		return fmt.Sprintf("Error deserializing file %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("Validation error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

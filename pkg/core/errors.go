package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document, relationship, embedding or job
	// does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when inserting a document whose id is taken
	ErrConflict = errors.New("already exists")

	// ErrInvalidInput is returned for missing or malformed arguments
	ErrInvalidInput = errors.New("invalid input")

	// ErrReferential is returned when a relationship names a document that
	// does not exist
	ErrReferential = errors.New("referenced document does not exist")

	// ErrStoreClosed is returned when using a closed store
	ErrStoreClosed = errors.New("store is closed")
)

// StoreError wraps errors with operation context
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("docdb: %v", e.Err)
	}
	return fmt.Sprintf("docdb: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

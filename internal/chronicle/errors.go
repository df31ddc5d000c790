package chronicle

import (
	"errors"
	"fmt"

	"chronicle/internal/mapped"
)

var (
	// ErrIO wraps failures of the underlying file or mapping operations.
	// The original error stays reachable through errors.Is and errors.As.
	ErrIO = errors.New("chronicle i/o failure")

	// ErrOutOfSpace means growth would pass the configured maximum file size.
	// The chronicle stays readable up to its current size.
	ErrOutOfSpace = mapped.ErrOutOfSpace

	ErrCapacityExceeded = errors.New("excerpt capacity exceeded")
	ErrRecordExhausted  = errors.New("read past end of record")
	ErrInvalidState     = errors.New("excerpt is in the wrong state for this operation")
	ErrClosed           = errors.New("chronicle is closed")
	ErrReadOnly         = mapped.ErrReadOnly
	ErrWriterLocked     = errors.New("chronicle is locked by another writer")
	ErrInvalidConfig    = errors.New("invalid chronicle config")
)

// wrapErr classifies an error from the storage layers.
func wrapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mapped.ErrClosed):
		return ErrClosed
	case errors.Is(err, ErrOutOfSpace), errors.Is(err, ErrReadOnly):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
	}
}

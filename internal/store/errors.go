package store

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by Load for an unknown session ID.
	ErrKeyNotFound = errors.New("store: key not found")

	// ErrInvalidKey is returned for IDs that would escape the store
	// directory or are empty.
	ErrInvalidKey = errors.New("store: invalid key")
)

// SerializationError reports a session record that could not be encoded or
// decoded.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("store: session %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

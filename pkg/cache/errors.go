package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrCreateDirectory is returned when the cache directory cannot be
	// created.
	ErrCreateDirectory = errors.New("failed to create cache directory")

	// ErrCorrupt marks persisted data that could not be decoded.
	ErrCorrupt = errors.New("cache data corrupted")

	// ErrClosed is returned when disk work is requested after Close.
	ErrClosed = errors.New("cache is closed")
)

// ProducerError is returned by GetOrCompute when the producer fails. Nothing
// is stored for the key.
type ProducerError struct {
	Key string
	Err error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("producing value for %q: %v", e.Key, e.Err)
}

func (e *ProducerError) Unwrap() error {
	return e.Err
}

package cachego

import (
	"errors"
	"fmt"
)

// ErrClosed reports use of a cache after Close.
var ErrClosed = errors.New("cachego: cache is closed")

// InvalidKeyError reports a cache key outside the allowed character set.
// It is delivered by panic from every key-accepting entry point: an invalid
// key is a programming error in the caller, detected before any backend I/O.
type InvalidKeyError struct {
	Key    string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("cachego: invalid cache key %q: %s", e.Key, e.Reason)
}

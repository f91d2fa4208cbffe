package sequence

import "errors"

var (
	ErrEmptySequence  = errors.New("sequence: empty sequence")
	ErrNotInitialized = errors.New("sequence: not initialized")
	ErrNotFinalized   = errors.New("sequence: not finalized")
	ErrFinalized      = errors.New("sequence: already finalized")
	ErrZeroExpected   = errors.New("sequence: expected length must be positive")
	ErrZeroCount      = errors.New("sequence: count must be positive")
)

package db

import "github.com/cockroachdb/errors"

var (
	// ErrOverflow is returned by Insert when every slot holds a live key.
	ErrOverflow = errors.New("hash set overflow")
	// ErrOutOfRange is returned by Bin for an index outside [0, capacity).
	ErrOutOfRange   = errors.New("bin index out of range")
	ErrInvalidPower = errors.New("invalid capacity exponent")
	ErrClosed       = errors.New("hash set is closed")

	// ErrOutOfMemory is returned by an Allocator that refuses an allocation.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrInvalidFree is returned when freeing an allocation that was never
	// made or was already freed.
	ErrInvalidFree = errors.New("invalid deallocation")
)

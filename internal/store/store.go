package store

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by write methods of a Tx obtained from View.
var ErrReadOnly = errors.New("store: write in read-only transaction")

// ErrClosed is returned by Update and View after Close.
var ErrClosed = errors.New("store: closed")

// Tx is one atomic step against the store.
// A Tx must not be used after the Update or View callback returns.
type Tx interface {
	// Get returns a scalar value.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put sets a scalar value.
	Put(ctx context.Context, key string, value []byte) error

	// MapGet returns the value stored under key in map m.
	MapGet(ctx context.Context, m, key string) ([]byte, bool, error)
	// MapPut sets key in map m.
	MapPut(ctx context.Context, m, key string, value []byte) error
	// MapDelete removes key from map m. Missing keys are not an error.
	MapDelete(ctx context.Context, m, key string) error
	// MapClear removes every key from map m.
	MapClear(ctx context.Context, m string) error
	// MapRange calls fn for every entry of m in binary key order.
	// Iteration stops at the first error, which is returned.
	MapRange(ctx context.Context, m string, fn func(key string, value []byte) error) error

	// SetAdd adds member to set s.
	SetAdd(ctx context.Context, s string, member uint64) error
	// SetRemove removes member from set s. Missing members are not an error.
	SetRemove(ctx context.Context, s string, member uint64) error
	// SetContains reports whether member is in set s.
	SetContains(ctx context.Context, s string, member uint64) (bool, error)
	// SetMembers returns the members of s in ascending order.
	SetMembers(ctx context.Context, s string) ([]uint64, error)

	// LogAppend appends entry to log l and returns its index.
	LogAppend(ctx context.Context, l string, entry []byte) (uint64, error)
	// LogGet returns the entry at index in log l.
	LogGet(ctx context.Context, l string, index uint64) ([]byte, bool, error)
	// LogLen returns the number of entries in log l.
	LogLen(ctx context.Context, l string) (uint64, error)
}

// Store runs atomic steps.
type Store interface {
	// Update runs fn in a read-write step. If fn returns an error, none of
	// its writes are applied and the error is returned unchanged.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only step.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the backend's resources.
	Close() error
}

package kcv

import (
	"context"
	"errors"
	"iter"
)

// ErrStoreClosed is returned when an operation is attempted on a closed store.
var ErrStoreClosed = errors.New("kcv: store is closed")

// Store is a key-column-value store. Every key owns an ordered run of
// column entries; GetSlice reads a contiguous column range of one key.
//
// Implementations must support concurrent readers. Writers only need to be
// safe relative to each other; the OLAP layer never mutates.
type Store interface {
	// GetSlice returns the entries of key whose columns fall into the query
	// range, in column order, truncated to the query limit (if any). A key
	// without matching entries yields an empty list, not an error.
	GetSlice(ctx context.Context, key StaticBuffer, query SliceQuery) (EntryList, error)

	// Keys iterates over all keys that own at least one entry, in
	// unspecified but stable order.
	Keys(ctx context.Context) iter.Seq2[StaticBuffer, error]

	// Mutate applies additions and deletions to the entries of key.
	// Additions overwrite existing entries with equal columns; deletions
	// name columns to remove.
	Mutate(ctx context.Context, key StaticBuffer, additions EntryList, deletions []StaticBuffer) error

	// Close releases the store's resources. Close is idempotent.
	Close() error
}

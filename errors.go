package golap

import (
	"errors"
	"fmt"

	"github.com/hupe1980/golap/kcv"
)

var (
	// ErrGraphClosed is returned when an operation requires an open graph.
	ErrGraphClosed = errors.New("golap: graph is closed")

	// ErrTransactionClosed is returned when an operation is attempted on a
	// transaction that was rolled back or committed.
	ErrTransactionClosed = errors.New("golap: transaction is closed")

	// ErrVertexNotFound is returned by Transaction.GetVertex when internal
	// existence checks are enabled and the vertex has no existence marker.
	ErrVertexNotFound = errors.New("golap: vertex not found")
)

// ErrDataNotPreloaded indicates that a preloaded vertex under the open-star
// access policy was asked for a slice that was never injected into its
// query cache.
type ErrDataNotPreloaded struct {
	Query kcv.SliceQuery
}

func (e *ErrDataNotPreloaded) Error() string {
	return fmt.Sprintf("golap: slice [%x, %x) not preloaded", e.Query.SliceStart, e.Query.SliceEnd)
}

// ErrMalformedRelation indicates a column entry that cannot be parsed as a
// relation.
type ErrMalformedRelation struct {
	Column kcv.StaticBuffer
}

func (e *ErrMalformedRelation) Error() string {
	return fmt.Sprintf("golap: malformed relation column %x", e.Column)
}

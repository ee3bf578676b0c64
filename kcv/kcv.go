// Package kcv defines the key-column-value storage primitives that the
// graph layer is built on: immutable byte buffers, column entries, slice
// queries and the Store interface.
//
// The model follows the classic wide-row layout: every key owns an ordered
// sequence of (column, value) entries, and reads are expressed as half-open
// byte ranges over the column space.
package kcv

import "strings"

// StaticBuffer is an immutable sequence of bytes. It is backed by a string
// so that it is comparable and can be used as a map key, which the scan
// protocol relies on (fetch results are keyed by SliceQuery).
type StaticBuffer string

// NewStaticBuffer copies b into an immutable buffer.
func NewStaticBuffer(b []byte) StaticBuffer {
	return StaticBuffer(b)
}

// Bytes returns a mutable copy of the buffer contents.
func (s StaticBuffer) Bytes() []byte {
	return []byte(s)
}

// Len returns the number of bytes in the buffer.
func (s StaticBuffer) Len() int {
	return len(s)
}

// Compare orders buffers lexicographically, byte-wise.
func (s StaticBuffer) Compare(o StaticBuffer) int {
	return strings.Compare(string(s), string(o))
}

// ZeroBuffer returns a buffer of n zero bytes.
func ZeroBuffer(n int) StaticBuffer {
	return StaticBuffer(strings.Repeat("\x00", n))
}

// OneBuffer returns a buffer of n 0xFF bytes.
func OneBuffer(n int) StaticBuffer {
	return StaticBuffer(strings.Repeat("\xff", n))
}

// Entry is a single column entry stored under a key.
type Entry struct {
	Column StaticBuffer
	Value  StaticBuffer
}

// EntryList is an ordered sequence of entries, sorted by column.
type EntryList []Entry

// First returns the first entry of the list. ok is false when the list is
// empty.
func (l EntryList) First() (Entry, bool) {
	if len(l) == 0 {
		return Entry{}, false
	}
	return l[0], true
}

// NoLimit marks a SliceQuery as unbounded.
const NoLimit = 0

// SliceQuery selects the entries of a key whose columns fall into the
// half-open range [SliceStart, SliceEnd), returning at most Limit entries.
// An empty SliceEnd means no upper bound.
//
// SliceQuery is comparable and is used as a map key in scan fetch results.
type SliceQuery struct {
	SliceStart StaticBuffer
	SliceEnd   StaticBuffer
	Limit      int
}

// NewSliceQuery returns an unbounded query over [start, end).
func NewSliceQuery(start, end StaticBuffer) SliceQuery {
	return SliceQuery{SliceStart: start, SliceEnd: end, Limit: NoLimit}
}

// FullRangeQuery returns an unbounded query over the entire column space.
func FullRangeQuery() SliceQuery {
	return SliceQuery{}
}

// WithLimit returns a copy of the query with the given result limit.
func (q SliceQuery) WithLimit(limit int) SliceQuery {
	q.Limit = limit
	return q
}

// HasLimit reports whether the query carries a result limit.
func (q SliceQuery) HasLimit() bool {
	return q.Limit > NoLimit
}

// Contains reports whether the column falls into the query's range.
func (q SliceQuery) Contains(column StaticBuffer) bool {
	if column.Compare(q.SliceStart) < 0 {
		return false
	}
	if q.SliceEnd != "" && column.Compare(q.SliceEnd) >= 0 {
		return false
	}
	return true
}

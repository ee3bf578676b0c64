// Package memstore provides an in-memory kcv.Store. It keeps every key's
// entries sorted by column, which makes slice reads a binary search plus a
// copy. It is the default backend for tests and small graphs.
package memstore

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/hupe1980/golap/kcv"
)

// Store is an in-memory key-column-value store. The zero value is not
// usable; create instances with New.
type Store struct {
	mu     sync.RWMutex
	rows   map[kcv.StaticBuffer]kcv.EntryList
	closed bool
}

var _ kcv.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		rows: make(map[kcv.StaticBuffer]kcv.EntryList),
	}
}

// GetSlice returns the entries of key inside the query range, in column
// order, truncated to the query limit.
func (s *Store) GetSlice(ctx context.Context, key kcv.StaticBuffer, query kcv.SliceQuery) (kcv.EntryList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kcv.ErrStoreClosed
	}

	row := s.rows[key]
	start := sort.Search(len(row), func(i int) bool {
		return row[i].Column.Compare(query.SliceStart) >= 0
	})

	result := make(kcv.EntryList, 0, 4)
	for i := start; i < len(row); i++ {
		if !query.Contains(row[i].Column) {
			break
		}
		result = append(result, row[i])
		if query.HasLimit() && len(result) >= query.Limit {
			break
		}
	}

	return result, nil
}

// Keys iterates over all keys with at least one entry, in ascending key
// order. The key set is snapshotted up front, so concurrent mutations do
// not disturb a running iteration.
func (s *Store) Keys(ctx context.Context) iter.Seq2[kcv.StaticBuffer, error] {
	return func(yield func(kcv.StaticBuffer, error) bool) {
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			yield("", kcv.ErrStoreClosed)
			return
		}
		keys := make([]kcv.StaticBuffer, 0, len(s.rows))
		for k := range s.rows {
			keys = append(keys, k)
		}
		s.mu.RUnlock()

		sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })

		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				yield(k, err)
				return
			}
			if !yield(k, nil) {
				return
			}
		}
	}
}

// Mutate applies additions and deletions to the entries of key. Additions
// overwrite entries with equal columns.
func (s *Store) Mutate(ctx context.Context, key kcv.StaticBuffer, additions kcv.EntryList, deletions []kcv.StaticBuffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kcv.ErrStoreClosed
	}

	row := s.rows[key]

	if len(deletions) > 0 {
		deleted := make(map[kcv.StaticBuffer]struct{}, len(deletions))
		for _, col := range deletions {
			deleted[col] = struct{}{}
		}
		kept := row[:0:0]
		for _, e := range row {
			if _, ok := deleted[e.Column]; !ok {
				kept = append(kept, e)
			}
		}
		row = kept
	}

	for _, add := range additions {
		i := sort.Search(len(row), func(i int) bool {
			return row[i].Column.Compare(add.Column) >= 0
		})
		if i < len(row) && row[i].Column == add.Column {
			row[i] = add
			continue
		}
		row = append(row, kcv.Entry{})
		copy(row[i+1:], row[i:])
		row[i] = add
	}

	if len(row) == 0 {
		delete(s.rows, key)
	} else {
		s.rows[key] = row
	}

	return nil
}

// Len returns the number of keys currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rows)
}

// Close marks the store closed. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.rows = nil

	return nil
}

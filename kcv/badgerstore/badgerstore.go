// Package badgerstore provides a kcv.Store backed by BadgerDB. Each
// (key, column) pair maps to one Badger key, laid out so that a prefix
// iteration over a row key walks its columns in order:
//
//	uvarint(len(key)) || key || column  ->  value
//
// The length prefix keeps distinct row keys from shadowing each other when
// one is a prefix of another.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"iter"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/golap/kcv"
)

// Store is a BadgerDB-backed key-column-value store.
type Store struct {
	db     *badger.DB
	closed atomic.Bool
}

var _ kcv.Store = (*Store)(nil)

// Options configures Open.
type Options struct {
	// Path is the Badger directory.
	Path string

	// InMemory runs Badger without touching disk. Path is ignored.
	InMemory bool

	// Logger receives Badger's own log output. Nil silences it.
	Logger badger.Logger
}

// Open opens or creates a Badger-backed store.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path).
		WithInMemory(opts.InMemory).
		WithLogger(opts.Logger)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %q: %w", opts.Path, err)
	}

	return &Store{db: db}, nil
}

func rowPrefix(key kcv.StaticBuffer) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(key.Len()))

	prefix := make([]byte, 0, n+key.Len())
	prefix = append(prefix, lenBuf[:n]...)
	prefix = append(prefix, key.Bytes()...)

	return prefix
}

func splitRowKey(raw []byte) (key, column []byte, err error) {
	keyLen, n := binary.Uvarint(raw)
	if n <= 0 || uint64(len(raw)-n) < keyLen {
		return nil, nil, fmt.Errorf("badgerstore: malformed row key of %d bytes", len(raw))
	}
	return raw[n : n+int(keyLen)], raw[n+int(keyLen):], nil
}

// GetSlice returns the entries of key inside the query range, in column
// order, truncated to the query limit.
func (s *Store) GetSlice(ctx context.Context, key kcv.StaticBuffer, query kcv.SliceQuery) (kcv.EntryList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, kcv.ErrStoreClosed
	}

	prefix := rowPrefix(key)
	seek := append(append([]byte{}, prefix...), query.SliceStart.Bytes()...)

	result := make(kcv.EntryList, 0, 4)

	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix

		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			column := kcv.NewStaticBuffer(item.Key()[len(prefix):])
			if !query.Contains(column) {
				if query.SliceEnd != "" && column.Compare(query.SliceEnd) >= 0 {
					break
				}
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result = append(result, kcv.Entry{Column: column, Value: kcv.NewStaticBuffer(value)})
			if query.HasLimit() && len(result) >= query.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: slice read: %w", err)
	}

	return result, nil
}

// Keys iterates over all row keys with at least one entry, in ascending
// (length, key) order.
func (s *Store) Keys(ctx context.Context) iter.Seq2[kcv.StaticBuffer, error] {
	return func(yield func(kcv.StaticBuffer, error) bool) {
		if s.closed.Load() {
			yield("", kcv.ErrStoreClosed)
			return
		}

		err := s.db.View(func(txn *badger.Txn) error {
			iopts := badger.DefaultIteratorOptions
			iopts.PrefetchValues = false

			it := txn.NewIterator(iopts)
			defer it.Close()

			var last []byte
			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				key, _, err := splitRowKey(it.Item().Key())
				if err != nil {
					return err
				}
				if last != nil && bytes.Equal(key, last) {
					continue
				}
				last = append(last[:0], key...)
				if !yield(kcv.NewStaticBuffer(key), nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield("", err)
		}
	}
}

// Mutate applies additions and deletions to the entries of key.
func (s *Store) Mutate(ctx context.Context, key kcv.StaticBuffer, additions kcv.EntryList, deletions []kcv.StaticBuffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return kcv.ErrStoreClosed
	}

	prefix := rowPrefix(key)

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, col := range deletions {
			bk := append(append([]byte{}, prefix...), col.Bytes()...)
			if err := txn.Delete(bk); err != nil {
				return err
			}
		}
		for _, add := range additions {
			bk := append(append([]byte{}, prefix...), add.Column.Bytes()...)
			if err := txn.Set(bk, add.Value.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: mutate: %w", err)
	}

	return nil
}

// Close closes the underlying Badger database. Close is idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badgerstore: close: %w", err)
	}
	return nil
}

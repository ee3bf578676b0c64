// Package scan implements bulk key scans over a key-column-value store.
//
// A scan walks every key of a store and hands each one, together with the
// column slices a Job declared up front, to the job's Process callback.
// The Scanner owns all parallelism: it runs one cloned Job per worker, and
// within a worker all callbacks are strictly sequential.
package scan

import (
	"context"
	"fmt"

	"github.com/hupe1980/golap/kcv"
)

// Config carries opaque configuration through the scan protocol. Both the
// job's own configuration and the graph configuration travel as plain maps;
// consumers parse out what they need.
type Config map[string]any

// String returns the string value under key, or def when absent or of a
// different type.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Int returns the integer value under key, or def when absent. Untyped
// numeric literals arriving as float64 (e.g. from JSON) are accepted.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Bool returns the boolean value under key, or def when absent.
func (c Config) Bool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// KeyFilter decides, before any data is fetched, whether a raw key takes
// part in the scan. It must be pure: no I/O, no mutation.
type KeyFilter func(key kcv.StaticBuffer) bool

// Job is the callback protocol a scan participant implements. The Scanner
// drives one Job instance per worker through the lifecycle
//
//	WorkerIterationStart -> Queries/KeyFilter -> Process... -> WorkerIterationEnd
//
// A Job that fails WorkerIterationStart or Queries must have released its
// own resources by the time the error returns; the Scanner does not call
// WorkerIterationEnd on those paths.
type Job interface {
	// WorkerIterationStart is called once per worker before any other
	// callback.
	WorkerIterationStart(ctx context.Context, jobConfig, graphConfig Config, metrics *Metrics) error

	// WorkerIterationEnd is called once per worker after the last Process
	// call, including when a Process call failed.
	WorkerIterationEnd(ctx context.Context, metrics *Metrics) error

	// Queries returns the ordered column slices to fetch for every key.
	Queries() ([]kcv.SliceQuery, error)

	// KeyFilter returns the pre-fetch key predicate. A nil filter admits
	// every key.
	KeyFilter() KeyFilter

	// Process consumes one key with its fetched slices. fetched holds one
	// entry list per query returned by Queries.
	Process(ctx context.Context, key kcv.StaticBuffer, fetched map[kcv.SliceQuery]kcv.EntryList, metrics *Metrics) error

	// Clone returns an independent copy of the job carrying equivalent
	// configuration but no execution state.
	Clone() Job
}

func fetchKey(ctx context.Context, store kcv.Store, key kcv.StaticBuffer, queries []kcv.SliceQuery) (map[kcv.SliceQuery]kcv.EntryList, error) {
	fetched := make(map[kcv.SliceQuery]kcv.EntryList, len(queries))
	for _, q := range queries {
		entries, err := store.GetSlice(ctx, key, q)
		if err != nil {
			return nil, fmt.Errorf("scan: fetch slice: %w", err)
		}
		fetched[q] = entries
	}
	return fetched, nil
}

package golap

import "github.com/hupe1980/golap/kcv"

type options struct {
	logger *Logger
	store  kcv.Store
}

// Option configures Open behavior.
type Option func(*options)

// WithLogger sets the graph's logger. Pass nil to keep the default
// (discard).
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStore supplies an already-open store, overriding the configured
// backend. The caller keeps ownership: Close does not close a supplied
// store.
func WithStore(store kcv.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

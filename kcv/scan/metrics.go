package scan

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Metric identifies one of the predefined scan counters.
type Metric int

const (
	// MetricSuccess counts keys that were processed successfully.
	MetricSuccess Metric = iota

	// MetricFailure counts keys whose processing failed.
	MetricFailure
)

// Metrics collects counters for one scan run. One Metrics instance is
// shared by all workers of a scan; all methods are safe for concurrent
// use. Counters only ever go up.
type Metrics struct {
	success atomic.Int64
	failure atomic.Int64
	custom  *xsync.MapOf[string, *xsync.Counter]
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		custom: xsync.NewMapOf[string, *xsync.Counter](),
	}
}

// Increment adds one to a predefined counter.
func (m *Metrics) Increment(metric Metric) {
	switch metric {
	case MetricSuccess:
		m.success.Add(1)
	case MetricFailure:
		m.failure.Add(1)
	}
}

// Get returns the current value of a predefined counter.
func (m *Metrics) Get(metric Metric) int64 {
	switch metric {
	case MetricSuccess:
		return m.success.Load()
	case MetricFailure:
		return m.failure.Load()
	}
	return 0
}

// IncrementCustom adds one to the named custom counter, creating it at
// zero on first use.
func (m *Metrics) IncrementCustom(name string) {
	m.AddCustom(name, 1)
}

// AddCustom adds delta to the named custom counter.
func (m *Metrics) AddCustom(name string, delta int64) {
	c, _ := m.custom.LoadOrCompute(name, func() *xsync.Counter {
		return xsync.NewCounter()
	})
	c.Add(delta)
}

// Custom returns the current value of the named custom counter, zero if it
// was never incremented.
func (m *Metrics) Custom(name string) int64 {
	if c, ok := m.custom.Load(name); ok {
		return c.Value()
	}
	return 0
}

// Package olap adapts vertex-centric computation jobs to the bulk
// key-column-value scans run by kcv/scan.
//
// A VertexScanJob declares, ahead of time, which column slices of a
// vertex it needs. The VertexJobConverter turns that declaration into a
// scan job: it always fetches an additional existence probe per key, weeds
// out ghost vertices, materializes a preloaded vertex view holding exactly
// the declared data, and manages the graph handle and read transaction
// backing the scan.
package olap

import (
	"context"

	"github.com/hupe1980/golap"
	"github.com/hupe1980/golap/kcv/scan"
)

// VertexScanJob expresses a computation over all vertices of a graph.
// Process is called once per live vertex with its declared adjacency and
// property slices preloaded; accessing data outside the declared queries
// is a contract violation (surfaced as golap.ErrDataNotPreloaded).
type VertexScanJob interface {
	// WorkerIterationStart is called once per worker before any Process
	// call. Embed NoOpHooks for the default no-op.
	WorkerIterationStart(ctx context.Context, graph *golap.Graph, config scan.Config, metrics *scan.Metrics) error

	// WorkerIterationEnd is called once per worker after the last Process
	// call. Embed NoOpHooks for the default no-op.
	WorkerIterationEnd(ctx context.Context, metrics *scan.Metrics) error

	// DeclareQueries registers every slice query the job needs against the
	// container, scoped to the current transaction. It must be
	// deterministic for a given configuration.
	DeclareQueries(queries *QueryContainer) error

	// Process consumes one live vertex whose cache holds exactly the
	// declared data.
	Process(ctx context.Context, vertex golap.Vertex, metrics *scan.Metrics) error

	// Clone returns an independent copy carrying equivalent configuration
	// but no execution state.
	Clone() VertexScanJob
}

// NoOpHooks provides default no-op worker iteration hooks. Embed it in
// jobs that do not need per-worker setup or teardown.
type NoOpHooks struct{}

// WorkerIterationStart implements the optional start hook as a no-op.
func (NoOpHooks) WorkerIterationStart(context.Context, *golap.Graph, scan.Config, *scan.Metrics) error {
	return nil
}

// WorkerIterationEnd implements the optional end hook as a no-op.
func (NoOpHooks) WorkerIterationEnd(context.Context, *scan.Metrics) error {
	return nil
}

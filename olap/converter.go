package olap

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/golap"
	"github.com/hupe1980/golap/ids"
	"github.com/hupe1980/golap/kcv"
	"github.com/hupe1980/golap/kcv/scan"
)

// Names of the custom scan counters maintained by the converter.
const (
	// GhostVertexCount counts keys whose existence marker was absent or
	// mismatched: stale or partially deleted records, skipped silently.
	GhostVertexCount = "ghost-vertices"

	// TruncatedEntryLists counts result sets that possibly got truncated
	// by an applied query limit.
	TruncatedEntryLists = "truncated-results"
)

// ErrTransactionNotPreloaded indicates that the bounding transaction did
// not hand out a preloaded vertex view, i.e. it was not configured for
// preloaded-data mode.
var ErrTransactionNotPreloaded = errors.New("olap: the bounding transaction is not configured for preloaded data")

// ErrMissingExistenceProbe indicates that the fetched data for a key holds
// no usable existence probe result. This points at a defect between
// Queries and the scan engine, or at a vertex deleted mid-scan; it is
// never silently skipped.
type ErrMissingExistenceProbe struct {
	Key   kcv.StaticBuffer
	Empty bool
}

func (e *ErrMissingExistenceProbe) Error() string {
	if e.Empty {
		return fmt.Sprintf("olap: empty existence probe result for key %x", e.Key)
	}
	return fmt.Sprintf("olap: existence probe result missing for key %x", e.Key)
}

// VertexJobConverter adapts a VertexScanJob to the scan.Job protocol. One
// converter instance serves one scan worker; the scan engine creates
// per-worker instances via Clone.
type VertexJobConverter struct {
	provider     *GraphProvider
	job          VertexScanJob
	logger       *golap.Logger
	vertexFilter *roaring64.Bitmap

	// set when Clone could not rebind the borrowed handle; surfaced by
	// WorkerIterationStart instead of silently falling back to an owned one
	cloneErr error

	// established by WorkerIterationStart, torn down with the worker
	tx        *golap.Transaction
	idManager *ids.Manager
}

var _ scan.Job = (*VertexJobConverter)(nil)

// ConverterOption configures a VertexJobConverter.
type ConverterOption func(*VertexJobConverter)

// WithLogger sets the converter's logger.
func WithLogger(logger *golap.Logger) ConverterOption {
	return func(c *VertexJobConverter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithVertexFilter restricts the scan to the vertex IDs in the bitmap.
// The filter applies before any data is fetched.
func WithVertexFilter(filter *roaring64.Bitmap) ConverterOption {
	return func(c *VertexJobConverter) {
		c.vertexFilter = filter
	}
}

// Convert wraps job into a scan.Job. graph may be nil, in which case each
// worker opens its own handle from the scan's graph configuration and
// closes it on teardown; a non-nil graph must be open and stays owned by
// the caller.
func Convert(graph *golap.Graph, job VertexScanJob, opts ...ConverterOption) (*VertexJobConverter, error) {
	if job == nil {
		return nil, errors.New("olap: job must not be nil")
	}

	provider := NewGraphProvider()
	if graph != nil {
		if err := provider.SetGraph(graph); err != nil {
			return nil, err
		}
	}

	c := &VertexJobConverter{
		provider: provider,
		job:      job,
		logger:   golap.NoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// StartTransaction opens the read-only preloaded-data transaction profile
// the converter operates under: internal existence checks disabled and all
// implicit caches sized to zero, because the scan supplies every byte of
// vertex data explicitly.
func StartTransaction(g *golap.Graph) (*golap.Transaction, error) {
	return g.BuildTransaction().
		ReadOnly().
		PreloadedData(true).
		CheckInternalVertexExistence(false).
		DirtyVertexSize(0).
		VertexCacheSize(0).
		Start()
}

// WorkerIterationStart resolves the graph handle, opens the worker's
// transaction and invokes the job's start hook. Any failure tears down
// whatever was established before the error propagates.
func (c *VertexJobConverter) WorkerIterationStart(ctx context.Context, jobConfig, graphConfig scan.Config, metrics *scan.Metrics) error {
	if c.cloneErr != nil {
		return c.cloneErr
	}

	if err := c.provider.Initialize(graphConfig); err != nil {
		return err
	}

	g, err := c.provider.Get()
	if err != nil {
		c.teardown()
		return err
	}
	c.idManager = g.IDManager()

	tx, err := StartTransaction(g)
	if err != nil {
		c.teardown()
		return err
	}
	c.tx = tx

	if err := c.job.WorkerIterationStart(ctx, g, jobConfig, metrics); err != nil {
		c.teardown()
		return err
	}

	return nil
}

// WorkerIterationEnd invokes the job's end hook and unconditionally tears
// the worker down.
func (c *VertexJobConverter) WorkerIterationEnd(ctx context.Context, metrics *scan.Metrics) error {
	endErr := c.job.WorkerIterationEnd(ctx, metrics)
	if err := c.teardown(); err != nil && endErr == nil {
		endErr = err
	}
	return endErr
}

// teardown rolls back an open transaction and releases the graph handle.
// It is idempotent and callable from any state.
func (c *VertexJobConverter) teardown() error {
	var errs []error

	if c.tx != nil && c.tx.IsOpen() {
		if err := c.tx.Rollback(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.provider.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Queries returns the slice queries to fetch per key: the existence probe
// first, then the job's declared queries in declaration order. On failure
// the worker is torn down before the error propagates.
func (c *VertexJobConverter) Queries() ([]kcv.SliceQuery, error) {
	if c.tx == nil {
		return nil, errors.New("olap: converter not started")
	}

	qc := NewQueryContainer(c.tx)
	if err := c.job.DeclareQueries(qc); err != nil {
		if terr := c.teardown(); terr != nil {
			c.logger.Warn("teardown after query declaration failure", "error", terr)
		}
		return nil, err
	}

	declared := qc.Queries()
	queries := make([]kcv.SliceQuery, 0, len(declared)+1)
	queries = append(queries, golap.VertexExistsQuery())
	queries = append(queries, declared...)

	return queries, nil
}

// KeyFilter rejects keys whose ID carries the invisible type tag, and keys
// outside the optional vertex filter, before any data is fetched.
func (c *VertexJobConverter) KeyFilter() scan.KeyFilter {
	f := keyFilter{idManager: c.idManager, allow: c.vertexFilter}
	return f.Admit
}

// keyFilter is the pre-fetch key predicate: a plain value holding the
// references it needs, no hidden state.
type keyFilter struct {
	idManager *ids.Manager
	allow     *roaring64.Bitmap
}

func (f keyFilter) Admit(key kcv.StaticBuffer) bool {
	if f.idManager == nil {
		return false
	}
	id, err := f.idManager.KeyID(key)
	if err != nil {
		return false
	}
	if f.idManager.IsInvisible(id) {
		return false
	}
	if f.allow != nil && !f.allow.Contains(uint64(id)) {
		return false
	}
	return true
}

// Process classifies one fetched key and, for live vertices, assembles the
// preloaded vertex view and invokes the job.
func (c *VertexJobConverter) Process(ctx context.Context, key kcv.StaticBuffer, fetched map[kcv.SliceQuery]kcv.EntryList, metrics *scan.Metrics) error {
	vertexID, err := c.idManager.KeyID(key)
	if err != nil {
		return err
	}

	probeQuery := golap.VertexExistsQuery()
	probe, ok := fetched[probeQuery]
	if !ok {
		return &ErrMissingExistenceProbe{Key: key}
	}

	ghost, err := c.isGhostVertex(vertexID, key, probe)
	if err != nil {
		return err
	}
	if ghost {
		metrics.IncrementCustom(GhostVertexCount)
		c.logger.Debug("ghost vertex skipped", "vertex_id", uint64(vertexID))
		return nil
	}

	vertex, err := c.tx.GetVertex(ctx, vertexID)
	if err != nil {
		return err
	}
	preloaded, ok := vertex.(*golap.PreloadedVertex)
	if !ok {
		return ErrTransactionNotPreloaded
	}

	preloaded.SetAccessPolicy(golap.AccessPolicyOpenStar)

	for query, entries := range fetched {
		if query == probeQuery {
			continue
		}
		if query.HasLimit() && len(entries) >= query.Limit {
			metrics.IncrementCustom(TruncatedEntryLists)
		}
		// The limit is relaxed on the cache key so that consumers cannot
		// re-derive truncation from a bounded-looking query.
		preloaded.AddToQueryCache(query.WithLimit(kcv.NoLimit), entries)
	}

	return c.job.Process(ctx, preloaded, metrics)
}

// isGhostVertex decides whether a key is a stale remnant. Partitioned
// non-canonical IDs never carry their own existence marker and are never
// classified as ghosts; for everything else the first probe entry must
// parse to the vertex-exists relation.
func (c *VertexJobConverter) isGhostVertex(vertexID ids.VertexID, key kcv.StaticBuffer, probe kcv.EntryList) (bool, error) {
	if c.idManager.IsPartitionedVertex(vertexID) && !c.idManager.IsCanonicalVertexID(vertexID) {
		return false, nil
	}

	first, ok := probe.First()
	if !ok {
		return false, &ErrMissingExistenceProbe{Key: key, Empty: true}
	}

	rel, err := golap.ParseRelation(first)
	if err != nil {
		return false, err
	}

	return rel.TypeID != golap.VertexExistsTypeID, nil
}

// Clone returns a fresh converter for another worker: same borrowed graph
// handle (if any), a cloned job, and no execution state. A borrowed handle
// that was closed in the meantime poisons the clone; its worker fails at
// start rather than opening an owned handle nobody asked for.
func (c *VertexJobConverter) Clone() scan.Job {
	clone := &VertexJobConverter{
		provider:     NewGraphProvider(),
		job:          c.job.Clone(),
		logger:       c.logger,
		vertexFilter: c.vertexFilter,
	}

	if c.provider.IsProvided() {
		g, err := c.provider.Get()
		if err == nil {
			err = clone.provider.SetGraph(g)
		}
		if err != nil {
			clone.cloneErr = fmt.Errorf("olap: clone converter: %w", err)
		}
	}

	return clone
}

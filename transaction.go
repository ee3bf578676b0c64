package golap

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/golap/ids"
)

// TransactionConfig captures the knobs of a transaction. OLAP scans use
// the preloaded-data profile: read-only, no internal existence checks, no
// dirty-vertex buffer and no vertex cache, because the scan adapter
// supplies every byte of vertex data itself.
type TransactionConfig struct {
	ReadOnly                     bool
	PreloadedData                bool
	CheckInternalVertexExistence bool
	DirtyVertexSize              int
	VertexCacheSize              int
}

// TransactionBuilder assembles a TransactionConfig and starts the
// transaction. Obtain one via Graph.BuildTransaction.
type TransactionBuilder struct {
	graph *Graph
	cfg   TransactionConfig
}

// BuildTransaction returns a builder with default settings: read-write,
// existence checks on, moderate cache sizes.
func (g *Graph) BuildTransaction() *TransactionBuilder {
	return &TransactionBuilder{
		graph: g,
		cfg: TransactionConfig{
			CheckInternalVertexExistence: true,
			DirtyVertexSize:              4096,
			VertexCacheSize:              20000,
		},
	}
}

// ReadOnly marks the transaction read-only.
func (b *TransactionBuilder) ReadOnly() *TransactionBuilder {
	b.cfg.ReadOnly = true
	return b
}

// PreloadedData configures the transaction to hand out preloaded vertex
// views whose data is injected explicitly rather than read from storage.
func (b *TransactionBuilder) PreloadedData(enabled bool) *TransactionBuilder {
	b.cfg.PreloadedData = enabled
	return b
}

// CheckInternalVertexExistence toggles the storage probe GetVertex runs to
// verify a vertex is live.
func (b *TransactionBuilder) CheckInternalVertexExistence(enabled bool) *TransactionBuilder {
	b.cfg.CheckInternalVertexExistence = enabled
	return b
}

// DirtyVertexSize sets the dirty-vertex buffer size.
func (b *TransactionBuilder) DirtyVertexSize(size int) *TransactionBuilder {
	b.cfg.DirtyVertexSize = size
	return b
}

// VertexCacheSize sets the vertex cache capacity. Zero disables caching.
func (b *TransactionBuilder) VertexCacheSize(size int) *TransactionBuilder {
	b.cfg.VertexCacheSize = size
	return b
}

// Start opens the transaction.
func (b *TransactionBuilder) Start() (*Transaction, error) {
	if !b.graph.IsOpen() {
		return nil, ErrGraphClosed
	}

	tx := &Transaction{
		graph: b.graph,
		cfg:   b.cfg,
	}
	if b.cfg.VertexCacheSize > 0 {
		tx.vertexCache = make(map[ids.VertexID]Vertex)
	}
	tx.open.Store(true)

	return tx, nil
}

// Transaction is a unit of read access to one graph. A transaction is
// owned by a single goroutine; concurrent transactions on the same graph
// are independent.
type Transaction struct {
	graph *Graph
	cfg   TransactionConfig
	open  atomic.Bool

	mu          sync.Mutex
	vertexCache map[ids.VertexID]Vertex
}

// IsOpen reports whether the transaction is open.
func (tx *Transaction) IsOpen() bool {
	return tx.open.Load()
}

// Config returns the transaction's configuration.
func (tx *Transaction) Config() TransactionConfig {
	return tx.cfg
}

// Graph returns the graph this transaction is bound to.
func (tx *Transaction) Graph() *Graph {
	return tx.graph
}

// GetVertex returns the transaction's view of the vertex with the given
// ID. Under PreloadedData the view is a *PreloadedVertex whose data must
// be injected by the caller; otherwise it is a standard vertex that reads
// live from storage, optionally verified to exist first.
func (tx *Transaction) GetVertex(ctx context.Context, id ids.VertexID) (Vertex, error) {
	if !tx.IsOpen() {
		return nil, ErrTransactionClosed
	}

	if tx.cfg.VertexCacheSize > 0 {
		tx.mu.Lock()
		if v, ok := tx.vertexCache[id]; ok {
			tx.mu.Unlock()
			return v, nil
		}
		tx.mu.Unlock()
	}

	var v Vertex
	if tx.cfg.PreloadedData {
		v = newPreloadedVertex(tx, id)
	} else {
		if tx.cfg.CheckInternalVertexExistence {
			if err := tx.checkVertexExists(ctx, id); err != nil {
				return nil, err
			}
		}
		v = &standardVertex{tx: tx, id: id}
	}

	if tx.cfg.VertexCacheSize > 0 {
		tx.mu.Lock()
		if len(tx.vertexCache) < tx.cfg.VertexCacheSize {
			tx.vertexCache[id] = v
		}
		tx.mu.Unlock()
	}

	return v, nil
}

func (tx *Transaction) checkVertexExists(ctx context.Context, id ids.VertexID) error {
	entries, err := tx.graph.Store().GetSlice(ctx, tx.graph.IDManager().Key(id), VertexExistsQuery())
	if err != nil {
		return err
	}
	first, ok := entries.First()
	if !ok {
		return ErrVertexNotFound
	}
	rel, err := ParseRelation(first)
	if err != nil {
		return err
	}
	if rel.TypeID != VertexExistsTypeID {
		return ErrVertexNotFound
	}
	return nil
}

// Rollback closes the transaction and discards its vertex views. It is
// idempotent.
func (tx *Transaction) Rollback() error {
	if !tx.open.CompareAndSwap(true, false) {
		return nil
	}

	tx.mu.Lock()
	tx.vertexCache = nil
	tx.mu.Unlock()

	return nil
}

// Commit closes the transaction. Transactions carry no write buffer, so
// for a read path Commit and Rollback are equivalent.
func (tx *Transaction) Commit() error {
	return tx.Rollback()
}

package golap

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/golap/ids"
	"github.com/hupe1980/golap/kcv"
	"github.com/hupe1980/golap/kcv/badgerstore"
	"github.com/hupe1980/golap/kcv/memstore"
)

// Graph is an open graph handle: a key-column-value store plus the ID
// scheme that maps vertices onto it. A Graph supports concurrent read-only
// transactions; Close is idempotent.
type Graph struct {
	cfg       Config
	store     kcv.Store
	ownsStore bool
	idManager *ids.Manager
	logger    *Logger
	open      atomic.Bool
}

// Open opens a graph for the given configuration.
func Open(cfg Config, opts ...Option) (*Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: NoopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	idManager, err := ids.NewManager(cfg.PartitionBits)
	if err != nil {
		return nil, err
	}

	store := o.store
	ownsStore := false
	if store == nil {
		switch cfg.Backend {
		case BackendBadger:
			store, err = badgerstore.Open(badgerstore.Options{Path: cfg.Path})
			if err != nil {
				return nil, err
			}
		default:
			store = memstore.New()
		}
		ownsStore = true
	}

	g := &Graph{
		cfg:       cfg,
		store:     store,
		ownsStore: ownsStore,
		idManager: idManager,
		logger:    o.logger.WithBackend(cfg.Backend),
	}
	g.open.Store(true)

	g.logger.Info("graph opened", "partition_bits", cfg.PartitionBits)

	return g, nil
}

// IsOpen reports whether the graph is open.
func (g *Graph) IsOpen() bool {
	return g.open.Load()
}

// Close closes the graph and, if the graph opened it, the underlying
// store. Close is idempotent.
func (g *Graph) Close() error {
	if !g.open.CompareAndSwap(true, false) {
		return nil
	}

	g.logger.Info("graph closed")

	if g.ownsStore {
		return g.store.Close()
	}
	return nil
}

// Config returns the configuration the graph was opened with.
func (g *Graph) Config() Config {
	return g.cfg
}

// Store returns the underlying key-column-value store.
func (g *Graph) Store() kcv.Store {
	return g.store
}

// IDManager returns the graph's vertex ID manager.
func (g *Graph) IDManager() *ids.Manager {
	return g.idManager
}

// CreateVertex materializes a vertex: it writes the vertex-exists system
// relation under the vertex's storage key.
func (g *Graph) CreateVertex(ctx context.Context, id ids.VertexID) error {
	if !g.IsOpen() {
		return ErrGraphClosed
	}

	exists := NewRelationEntry(VertexExistsTypeID, uint64(id), nil)
	if err := g.store.Mutate(ctx, g.idManager.Key(id), kcv.EntryList{exists}, nil); err != nil {
		return fmt.Errorf("golap: create vertex %d: %w", id, err)
	}
	return nil
}

// AddRelation writes one relation (edge or property) of a vertex.
func (g *Graph) AddRelation(ctx context.Context, id ids.VertexID, typeID, relationID uint64, value []byte) error {
	if !g.IsOpen() {
		return ErrGraphClosed
	}
	if typeID == 0 || typeID == VertexExistsTypeID {
		return fmt.Errorf("golap: relation type %d is reserved", typeID)
	}

	entry := NewRelationEntry(typeID, relationID, value)
	if err := g.store.Mutate(ctx, g.idManager.Key(id), kcv.EntryList{entry}, nil); err != nil {
		return fmt.Errorf("golap: add relation to vertex %d: %w", id, err)
	}
	return nil
}

package golap

import (
	"context"

	"github.com/hupe1980/golap/ids"
	"github.com/hupe1980/golap/kcv"
)

// Vertex is a transaction-scoped view of one vertex. Reads are expressed
// as column slice queries over the vertex's storage key.
type Vertex interface {
	// ID returns the vertex's ID.
	ID() ids.VertexID

	// Entries returns the vertex's column entries for the given slice.
	Entries(ctx context.Context, query kcv.SliceQuery) (kcv.EntryList, error)

	// Relations returns the parsed relations for the given slice.
	Relations(ctx context.Context, query kcv.SliceQuery) ([]Relation, error)
}

// AccessPolicy governs how a PreloadedVertex answers slices that were
// never injected into its cache.
type AccessPolicy int

const (
	// AccessPolicyRelaxed answers uncached slices with an empty list.
	AccessPolicyRelaxed AccessPolicy = iota

	// AccessPolicyOpenStar answers uncached slices with
	// ErrDataNotPreloaded: reads are restricted to injected data.
	AccessPolicyOpenStar
)

// PreloadedVertex is a vertex view whose per-query data cache is populated
// explicitly via AddToQueryCache. It never reads from storage. The view is
// bound to one transaction and is discarded with it.
type PreloadedVertex struct {
	tx     *Transaction
	id     ids.VertexID
	policy AccessPolicy
	cache  map[kcv.SliceQuery]kcv.EntryList
}

var _ Vertex = (*PreloadedVertex)(nil)

func newPreloadedVertex(tx *Transaction, id ids.VertexID) *PreloadedVertex {
	return &PreloadedVertex{
		tx:    tx,
		id:    id,
		cache: make(map[kcv.SliceQuery]kcv.EntryList),
	}
}

// ID returns the vertex's ID.
func (v *PreloadedVertex) ID() ids.VertexID {
	return v.id
}

// SetAccessPolicy sets the policy for uncached reads.
func (v *PreloadedVertex) SetAccessPolicy(policy AccessPolicy) {
	v.policy = policy
}

// AddToQueryCache injects the entries for one slice query, replacing any
// previous entries under an equal query.
func (v *PreloadedVertex) AddToQueryCache(query kcv.SliceQuery, entries kcv.EntryList) {
	v.cache[query] = entries
}

// Cached reports whether entries were injected under an equal query.
func (v *PreloadedVertex) Cached(query kcv.SliceQuery) bool {
	_, ok := v.cache[query]
	return ok
}

// Entries returns the injected entries for query. Under the open-star
// policy a cache miss is an ErrDataNotPreloaded; under the relaxed policy
// it is an empty list.
func (v *PreloadedVertex) Entries(_ context.Context, query kcv.SliceQuery) (kcv.EntryList, error) {
	if entries, ok := v.cache[query]; ok {
		return entries, nil
	}
	if v.policy == AccessPolicyOpenStar {
		return nil, &ErrDataNotPreloaded{Query: query}
	}
	return kcv.EntryList{}, nil
}

// Relations returns the parsed relations for query, subject to the same
// access policy as Entries.
func (v *PreloadedVertex) Relations(ctx context.Context, query kcv.SliceQuery) ([]Relation, error) {
	entries, err := v.Entries(ctx, query)
	if err != nil {
		return nil, err
	}
	return relationsFromEntries(entries)
}

// standardVertex reads live from the transaction's store.
type standardVertex struct {
	tx *Transaction
	id ids.VertexID
}

var _ Vertex = (*standardVertex)(nil)

func (v *standardVertex) ID() ids.VertexID {
	return v.id
}

func (v *standardVertex) Entries(ctx context.Context, query kcv.SliceQuery) (kcv.EntryList, error) {
	if !v.tx.IsOpen() {
		return nil, ErrTransactionClosed
	}
	g := v.tx.Graph()
	return g.Store().GetSlice(ctx, g.IDManager().Key(v.id), query)
}

func (v *standardVertex) Relations(ctx context.Context, query kcv.SliceQuery) ([]Relation, error) {
	entries, err := v.Entries(ctx, query)
	if err != nil {
		return nil, err
	}
	return relationsFromEntries(entries)
}

func relationsFromEntries(entries kcv.EntryList) ([]Relation, error) {
	relations := make([]Relation, 0, len(entries))
	for _, e := range entries {
		rel, err := ParseRelation(e)
		if err != nil {
			return nil, err
		}
		relations = append(relations, rel)
	}
	return relations, nil
}

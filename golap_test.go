package golap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/golap/ids"
	"github.com/hupe1980/golap/kcv"
	"github.com/hupe1980/golap/kcv/memstore"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()

	g, err := Open(Config{Backend: BackendMemory, PartitionBits: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	return g
}

func mustID(t *testing.T, g *Graph, count uint64, typ ids.VertexIDType) ids.VertexID {
	t.Helper()

	id, err := g.IDManager().ConstructID(count, g.IDManager().CanonicalPartition(count), typ)
	require.NoError(t, err)

	return id
}

func TestGraph(t *testing.T) {
	ctx := context.Background()

	t.Run("OpenClose", func(t *testing.T) {
		g, err := Open(Config{})
		require.NoError(t, err)
		assert.True(t, g.IsOpen())

		require.NoError(t, g.Close())
		assert.False(t, g.IsOpen())

		// idempotent
		require.NoError(t, g.Close())
	})

	t.Run("OpenInvalidConfig", func(t *testing.T) {
		_, err := Open(Config{Backend: BackendBadger})
		assert.Error(t, err)
	})

	t.Run("ProvidedStoreStaysOpen", func(t *testing.T) {
		store := memstore.New()
		g, err := Open(Config{}, WithStore(store))
		require.NoError(t, err)
		require.NoError(t, g.Close())

		// The graph borrowed the store, so it must still accept reads.
		_, err = store.GetSlice(ctx, kcv.NewStaticBuffer([]byte("k")), kcv.FullRangeQuery())
		assert.NoError(t, err)
	})

	t.Run("CreateVertex", func(t *testing.T) {
		g := newTestGraph(t)
		id := mustID(t, g, 1, ids.IDTypeNormal)

		require.NoError(t, g.CreateVertex(ctx, id))

		entries, err := g.Store().GetSlice(ctx, g.IDManager().Key(id), VertexExistsQuery())
		require.NoError(t, err)
		require.Len(t, entries, 1)

		rel, err := ParseRelation(entries[0])
		require.NoError(t, err)
		assert.Equal(t, VertexExistsTypeID, rel.TypeID)
	})

	t.Run("AddRelation", func(t *testing.T) {
		g := newTestGraph(t)
		id := mustID(t, g, 1, ids.IDTypeNormal)
		require.NoError(t, g.CreateVertex(ctx, id))

		require.NoError(t, g.AddRelation(ctx, id, 7, 100, []byte("v")))

		start, end := RelationTypeRange(7)
		entries, err := g.Store().GetSlice(ctx, g.IDManager().Key(id), kcv.NewSliceQuery(start, end))
		require.NoError(t, err)
		require.Len(t, entries, 1)

		rel, err := ParseRelation(entries[0])
		require.NoError(t, err)
		assert.Equal(t, uint64(7), rel.TypeID)
		assert.Equal(t, uint64(100), rel.RelationID)
	})

	t.Run("AddRelationReservedType", func(t *testing.T) {
		g := newTestGraph(t)
		id := mustID(t, g, 1, ids.IDTypeNormal)

		assert.Error(t, g.AddRelation(ctx, id, 0, 1, nil))
		assert.Error(t, g.AddRelation(ctx, id, VertexExistsTypeID, 1, nil))
	})

	t.Run("ClosedGraph", func(t *testing.T) {
		g, err := Open(Config{})
		require.NoError(t, err)
		require.NoError(t, g.Close())

		id := ids.VertexID(8)
		assert.ErrorIs(t, g.CreateVertex(ctx, id), ErrGraphClosed)
		assert.ErrorIs(t, g.AddRelation(ctx, id, 2, 1, nil), ErrGraphClosed)

		_, err = g.BuildTransaction().Start()
		assert.ErrorIs(t, err, ErrGraphClosed)
	})
}

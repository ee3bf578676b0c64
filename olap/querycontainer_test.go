package olap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/golap"
	"github.com/hupe1980/golap/kcv"
)

func TestQueryContainer(t *testing.T) {
	t.Run("DeclarationOrder", func(t *testing.T) {
		qc := NewQueryContainer(nil)

		first := kcv.NewSliceQuery(kcv.ZeroBuffer(2), kcv.OneBuffer(2))
		require.NoError(t, qc.AddSliceQuery(first))
		require.NoError(t, qc.AddRelationQuery(7, 10))
		require.NoError(t, qc.AddAllRelationsQuery(kcv.NoLimit))

		queries := qc.Queries()
		require.Len(t, queries, 3)
		assert.Equal(t, first, queries[0])

		start, end := golap.RelationTypeRange(7)
		assert.Equal(t, kcv.NewSliceQuery(start, end).WithLimit(10), queries[1])
	})

	t.Run("QueriesReturnsCopy", func(t *testing.T) {
		qc := NewQueryContainer(nil)
		require.NoError(t, qc.AddRelationQuery(1, kcv.NoLimit))

		queries := qc.Queries()
		queries[0] = kcv.FullRangeQuery()
		assert.NotEqual(t, queries[0], qc.Queries()[0])
	})

	t.Run("ReservedProbeQuery", func(t *testing.T) {
		qc := NewQueryContainer(nil)

		err := qc.AddSliceQuery(golap.VertexExistsQuery())
		assert.ErrorIs(t, err, ErrReservedQuery)

		// The all-relations slice with limit one is exactly the probe.
		err = qc.AddAllRelationsQuery(1)
		assert.ErrorIs(t, err, ErrReservedQuery)

		// Without the limit it is a different query and passes.
		assert.NoError(t, qc.AddAllRelationsQuery(kcv.NoLimit))
	})

	t.Run("ClosedTransaction", func(t *testing.T) {
		g, err := golap.Open(golap.Config{})
		require.NoError(t, err)
		defer g.Close()

		tx, err := g.BuildTransaction().ReadOnly().Start()
		require.NoError(t, err)
		require.NoError(t, tx.Rollback())

		qc := NewQueryContainer(tx)
		err = qc.AddRelationQuery(7, kcv.NoLimit)
		assert.ErrorIs(t, err, golap.ErrTransactionClosed)
	})
}

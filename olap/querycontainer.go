package olap

import (
	"errors"

	"github.com/hupe1980/golap"
	"github.com/hupe1980/golap/kcv"
)

// ErrReservedQuery is returned when a job declares a slice query equal to
// the existence probe, which the converter reserves for itself.
var ErrReservedQuery = errors.New("olap: slice query is reserved for the existence probe")

// QueryContainer collects the slice queries a job declares for one
// transaction. Queries keep their declaration order.
type QueryContainer struct {
	tx      *golap.Transaction
	queries []kcv.SliceQuery
}

// NewQueryContainer creates a container bound to tx.
func NewQueryContainer(tx *golap.Transaction) *QueryContainer {
	return &QueryContainer{tx: tx}
}

// Transaction returns the transaction the container is bound to.
func (qc *QueryContainer) Transaction() *golap.Transaction {
	return qc.tx
}

// AddSliceQuery declares a raw slice query.
func (qc *QueryContainer) AddSliceQuery(q kcv.SliceQuery) error {
	if qc.tx != nil && !qc.tx.IsOpen() {
		return golap.ErrTransactionClosed
	}
	if q == golap.VertexExistsQuery() {
		return ErrReservedQuery
	}

	qc.queries = append(qc.queries, q)
	return nil
}

// AddRelationQuery declares the column slice covering every relation of
// the given type, limited to limit entries (kcv.NoLimit for all).
func (qc *QueryContainer) AddRelationQuery(typeID uint64, limit int) error {
	start, end := golap.RelationTypeRange(typeID)
	return qc.AddSliceQuery(kcv.NewSliceQuery(start, end).WithLimit(limit))
}

// AddAllRelationsQuery declares a slice covering the whole relation column
// space, limited to limit entries. A limit of one is rejected because the
// resulting query would collide with the existence probe.
func (qc *QueryContainer) AddAllRelationsQuery(limit int) error {
	return qc.AddSliceQuery(kcv.NewSliceQuery(kcv.ZeroBuffer(1), kcv.OneBuffer(4)).WithLimit(limit))
}

// Queries returns the declared queries in declaration order.
func (qc *QueryContainer) Queries() []kcv.SliceQuery {
	out := make([]kcv.SliceQuery, len(qc.queries))
	copy(out, qc.queries)
	return out
}

package golap

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/golap/kcv"
)

// VertexExistsTypeID is the system relation type that marks a live vertex.
// Every materialized vertex carries exactly one entry of this type; its
// absence under a key identifies the key as a ghost.
const VertexExistsTypeID uint64 = 1

// relationColumnSize is the fixed width of a relation column:
// 4 bytes relation type, 8 bytes relation ID.
const relationColumnSize = 12

// Relation is a parsed column entry: one edge or property of a vertex.
type Relation struct {
	TypeID     uint64
	RelationID uint64
	Value      kcv.StaticBuffer
}

// NewRelationEntry encodes a relation as a column entry. The column layout
// is big-endian and therefore order-preserving: all relations of one type
// form a contiguous column range.
func NewRelationEntry(typeID, relationID uint64, value []byte) kcv.Entry {
	var col [relationColumnSize]byte
	binary.BigEndian.PutUint32(col[:4], uint32(typeID))
	binary.BigEndian.PutUint64(col[4:], relationID)

	return kcv.Entry{
		Column: kcv.NewStaticBuffer(col[:]),
		Value:  kcv.NewStaticBuffer(value),
	}
}

// ParseRelation decodes a column entry into a Relation.
func ParseRelation(e kcv.Entry) (Relation, error) {
	if e.Column.Len() != relationColumnSize {
		return Relation{}, &ErrMalformedRelation{Column: e.Column}
	}
	col := e.Column.Bytes()

	return Relation{
		TypeID:     uint64(binary.BigEndian.Uint32(col[:4])),
		RelationID: binary.BigEndian.Uint64(col[4:]),
		Value:      e.Value,
	}, nil
}

// RelationTypeRange returns the half-open column range covering every
// relation of the given type.
func RelationTypeRange(typeID uint64) (start, end kcv.StaticBuffer) {
	var s, e [4]byte
	binary.BigEndian.PutUint32(s[:], uint32(typeID))
	if typeID >= math.MaxUint32 {
		return kcv.NewStaticBuffer(s[:]), kcv.OneBuffer(relationColumnSize)
	}
	binary.BigEndian.PutUint32(e[:], uint32(typeID)+1)
	return kcv.NewStaticBuffer(s[:]), kcv.NewStaticBuffer(e[:])
}

// VertexExistsQuery returns the existence probe: the fixed slice query
// whose first result decides vertex liveness. It spans the low end of the
// column space with a limit of one, so for a live vertex it returns the
// vertex-exists system relation.
func VertexExistsQuery() kcv.SliceQuery {
	return kcv.NewSliceQuery(kcv.ZeroBuffer(1), kcv.OneBuffer(4)).WithLimit(1)
}

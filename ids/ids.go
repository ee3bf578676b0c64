// Package ids implements the vertex ID scheme: a 64-bit ID that packs a
// running count, a partition and a type tag, plus the mapping between IDs
// and storage keys.
//
// Layout, most significant bits first:
//
//	[ count | partition (partitionBits) | type tag (3) ]
//
// The type tag travels with the ID so that a raw storage key can be
// classified without any lookup. Partitioned vertices exist once per
// partition; exactly one of those IDs, the canonical one, carries the
// vertex's existence marker.
package ids

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/golap/kcv"
)

// VertexID is a decoded vertex identifier.
type VertexID uint64

// VertexIDType is the 3-bit type tag in the low bits of a VertexID.
type VertexIDType uint8

const (
	// IDTypeNormal tags an ordinary user vertex that lives on a single
	// partition.
	IDTypeNormal VertexIDType = 0b000

	// IDTypePartitioned tags a vertex that is represented once per
	// partition. Only its canonical representative carries the existence
	// marker.
	IDTypePartitioned VertexIDType = 0b010

	// IDTypeInvisible tags internal bookkeeping vertices that must never
	// surface in scans.
	IDTypeInvisible VertexIDType = 0b111
)

const (
	typeBits = 3
	typeMask = uint64(1<<typeBits) - 1

	// MaxPartitionBits bounds the partition field width.
	MaxPartitionBits = 16
)

// Manager decodes, classifies and constructs vertex IDs for a fixed
// partition field width.
type Manager struct {
	partitionBits uint
	partitionMask uint64
}

// NewManager returns a Manager for the given partition field width.
func NewManager(partitionBits uint) (*Manager, error) {
	if partitionBits > MaxPartitionBits {
		return nil, fmt.Errorf("ids: partition bits %d exceeds maximum %d", partitionBits, MaxPartitionBits)
	}
	return &Manager{
		partitionBits: partitionBits,
		partitionMask: uint64(1<<partitionBits) - 1,
	}, nil
}

// PartitionBits returns the configured partition field width.
func (m *Manager) PartitionBits() uint {
	return m.partitionBits
}

// NumPartitions returns the number of distinct partitions.
func (m *Manager) NumPartitions() uint64 {
	return 1 << m.partitionBits
}

// ConstructID builds a vertex ID from its components. count must fit into
// the remaining high bits.
func (m *Manager) ConstructID(count uint64, partition uint64, typ VertexIDType) (VertexID, error) {
	if partition > m.partitionMask {
		return 0, fmt.Errorf("ids: partition %d exceeds %d partition bits", partition, m.partitionBits)
	}
	if count == 0 {
		return 0, fmt.Errorf("ids: count must be positive")
	}
	maxCount := uint64(1) << (64 - typeBits - m.partitionBits)
	if count >= maxCount {
		return 0, fmt.Errorf("ids: count %d out of range", count)
	}
	id := count<<(typeBits+m.partitionBits) | partition<<typeBits | uint64(typ)
	return VertexID(id), nil
}

// Type returns the type tag of id.
func (m *Manager) Type(id VertexID) VertexIDType {
	return VertexIDType(uint64(id) & typeMask)
}

// Count returns the count component of id.
func (m *Manager) Count(id VertexID) uint64 {
	return uint64(id) >> (typeBits + m.partitionBits)
}

// Partition returns the partition component of id.
func (m *Manager) Partition(id VertexID) uint64 {
	return (uint64(id) >> typeBits) & m.partitionMask
}

// IsInvisible reports whether id is tagged as internal-only.
func (m *Manager) IsInvisible(id VertexID) bool {
	return m.Type(id) == IDTypeInvisible
}

// IsPartitionedVertex reports whether id belongs to a partitioned vertex.
func (m *Manager) IsPartitionedVertex(id VertexID) bool {
	return m.Type(id) == IDTypePartitioned
}

// CanonicalPartition returns the partition that hosts the canonical
// representative of the partitioned vertex with the given count.
func (m *Manager) CanonicalPartition(count uint64) uint64 {
	if m.partitionBits == 0 {
		return 0
	}
	return count % m.NumPartitions()
}

// CanonicalVertexID returns the canonical representative of id. For
// non-partitioned vertices the ID is its own representative. A partitioned
// ID whose count cannot be re-encoded (a zero count decoded from a raw key)
// is malformed and counts as its own representative, so it stays subject to
// liveness checks instead of slipping through the non-canonical exemption.
func (m *Manager) CanonicalVertexID(id VertexID) VertexID {
	if !m.IsPartitionedVertex(id) {
		return id
	}
	count := m.Count(id)
	canonical, err := m.ConstructID(count, m.CanonicalPartition(count), IDTypePartitioned)
	if err != nil {
		return id
	}
	return canonical
}

// IsCanonicalVertexID reports whether id is its own canonical
// representative. Non-partitioned IDs always are.
func (m *Manager) IsCanonicalVertexID(id VertexID) bool {
	return m.CanonicalVertexID(id) == id
}

// KeyID decodes the vertex ID from the leading 8 bytes of a storage key.
func (m *Manager) KeyID(key kcv.StaticBuffer) (VertexID, error) {
	if key.Len() < 8 {
		return 0, fmt.Errorf("ids: key too short: %d bytes", key.Len())
	}
	return VertexID(binary.BigEndian.Uint64([]byte(key[:8]))), nil
}

// Key encodes id as an 8-byte big-endian storage key.
func (m *Manager) Key(id VertexID) kcv.StaticBuffer {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return kcv.NewStaticBuffer(b[:])
}

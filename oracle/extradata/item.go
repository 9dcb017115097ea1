// Package extradata encodes and decodes the packed list of per-module
// validator corrections that accompanies a main report.
//
// A payload is split into chunks. Every chunk starts with the keccak256 hash
// of the chunk that follows it (zero in the last chunk) and then carries
// packed items:
//
//	| 3 bytes itemIndex | 2 bytes itemType | 3 bytes moduleId | 8 bytes nodeOpsCount |
//	| nodeOpsCount * 8 bytes nodeOperatorIds | nodeOpsCount * 16 bytes keyCounts      |
//
// All integers are big endian. The main report commits to the hash of the
// first chunk.
package extradata

import (
	"fmt"
	"math/big"
)

// Payload formats declared by the main report.
const (
	FormatEmpty uint64 = 0
	FormatList  uint64 = 1
)

// Item types.
const (
	TypeStuckValidators  uint16 = 1
	TypeExitedValidators uint16 = 2
)

const (
	hashSize        = 32
	indexSize       = 3
	typeSize        = 2
	moduleIDSize    = 3
	nodeOpsCntSize  = 8
	nodeOpIDSize    = 8
	keyCountSize    = 16
	itemHeaderSize  = indexSize + typeSize
	payloadHeadSize = moduleIDSize + nodeOpsCntSize
	perNodeOpSize   = nodeOpIDSize + keyCountSize

	// MinItemSize is an item carrying a single node operator.
	MinItemSize = itemHeaderSize + payloadHeadSize + perNodeOpSize
	// MinChunkSize is a chunk carrying a single minimal item.
	MinChunkSize = hashSize + MinItemSize

	MaxItemIndex = 1<<(8*indexSize) - 1
	MaxModuleID  = 1<<(8*moduleIDSize) - 1
)

// Item is one correction: the new stuck or exited validator counts of some
// node operators of one staking module.
type Item struct {
	Index           uint32
	Type            uint16
	ModuleID        uint32
	NodeOperatorIDs []uint64
	KeyCounts       []uint64
}

// Size is the encoded size of the item.
func (it Item) Size() int {
	return itemHeaderSize + payloadHeadSize + len(it.NodeOperatorIDs)*perNodeOpSize
}

// FirstKey is the sorting key of the item's first node operator.
func (it Item) FirstKey() SortingKey {
	if len(it.NodeOperatorIDs) == 0 {
		return SortingKey{Type: it.Type, ModuleID: it.ModuleID}
	}
	return SortingKey{Type: it.Type, ModuleID: it.ModuleID, NodeOpID: it.NodeOperatorIDs[0]}
}

// LastKey is the sorting key of the item's last node operator.
func (it Item) LastKey() SortingKey {
	if len(it.NodeOperatorIDs) == 0 {
		return SortingKey{Type: it.Type, ModuleID: it.ModuleID}
	}
	return SortingKey{Type: it.Type, ModuleID: it.ModuleID, NodeOpID: it.NodeOperatorIDs[len(it.NodeOperatorIDs)-1]}
}

func TypeName(t uint16) string {
	switch t {
	case TypeStuckValidators:
		return "stuck"
	case TypeExitedValidators:
		return "exited"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// SortingKey orders items and node operators. Items must arrive with
// strictly increasing keys, first by type, then module, then node operator.
type SortingKey struct {
	Type     uint16
	ModuleID uint32
	NodeOpID uint64
}

// Cmp returns -1, 0 or +1.
func (k SortingKey) Cmp(o SortingKey) int {
	switch {
	case k.Type != o.Type:
		return cmpUint(uint64(k.Type), uint64(o.Type))
	case k.ModuleID != o.ModuleID:
		return cmpUint(uint64(k.ModuleID), uint64(o.ModuleID))
	default:
		return cmpUint(k.NodeOpID, o.NodeOpID)
	}
}

func (k SortingKey) IsZero() bool {
	return k == SortingKey{}
}

// Big packs the key as type<<240 | moduleId<<64 | nodeOpId.
func (k SortingKey) Big() *big.Int {
	res := new(big.Int).Lsh(big.NewInt(int64(k.Type)), 240)
	res.Or(res, new(big.Int).Lsh(new(big.Int).SetUint64(uint64(k.ModuleID)), 64))
	return res.Or(res, new(big.Int).SetUint64(k.NodeOpID))
}

func (k SortingKey) String() string {
	return fmt.Sprintf("(%s,%d,%d)", TypeName(k.Type), k.ModuleID, k.NodeOpID)
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

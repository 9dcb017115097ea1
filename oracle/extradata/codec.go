package extradata

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-accounting-oracle/utils/fast"
)

var (
	ErrUnexpectedExtraDataIndex  = errors.New("unexpected extra data index")
	ErrUnsupportedExtraDataType  = errors.New("unsupported extra data type")
	ErrInvalidExtraDataItem      = errors.New("invalid extra data item")
	ErrInvalidExtraDataSortOrder = errors.New("invalid extra data sort order")
	ErrNoItems                   = errors.New("no extra data items")
)

// Cursor is the decoding position carried from one chunk to the next.
type Cursor struct {
	// ItemsProcessed is the number of items accepted so far, which is also
	// the index the next item must carry.
	ItemsProcessed uint64
	// LastSortingKey is the key of the last node operator of the last
	// accepted item. Zero before the first item.
	LastSortingKey SortingKey
}

// Chunk is a decoded chunk.
type Chunk struct {
	NextHash common.Hash
	Items    []Item
	// MaxNodeOps is the largest node operator count of any item in the chunk,
	// MaxNodeOpsIndex the index of the first item with that count.
	MaxNodeOps      uint64
	MaxNodeOpsIndex uint64
	// Cursor is the position after the chunk.
	Cursor Cursor
}

// Final reports whether no chunk follows.
func (c Chunk) Final() bool {
	return c.NextHash == (common.Hash{})
}

// HashChunk is the keccak256 hash a chunk is addressed by.
func HashChunk(chunk []byte) common.Hash {
	return crypto.Keccak256Hash(chunk)
}

// DecodeChunk parses and validates a chunk against the position left by the
// previous chunks. It does not check the chunk hash. Nothing is returned
// unless every item is valid.
func DecodeChunk(chunk []byte, cur Cursor) (Chunk, error) {
	if len(chunk) < MinChunkSize {
		return Chunk{}, fmt.Errorf("%w: item %d: chunk of %d bytes is too short", ErrInvalidExtraDataItem, cur.ItemsProcessed, len(chunk))
	}
	r := fast.NewReader(chunk)
	res := Chunk{NextHash: common.BytesToHash(r.Read(hashSize))}

	for !r.Empty() {
		it, err := decodeItem(r, cur)
		if err != nil {
			return Chunk{}, err
		}
		cur.ItemsProcessed++
		cur.LastSortingKey = it.LastKey()
		if n := uint64(len(it.NodeOperatorIDs)); n > res.MaxNodeOps {
			res.MaxNodeOps = n
			res.MaxNodeOpsIndex = uint64(it.Index)
		}
		res.Items = append(res.Items, it)
	}
	res.Cursor = cur
	return res, nil
}

func decodeItem(r *fast.Reader, cur Cursor) (Item, error) {
	expected := cur.ItemsProcessed
	if r.Remaining() < itemHeaderSize {
		return Item{}, fmt.Errorf("%w: item %d: truncated header", ErrInvalidExtraDataItem, expected)
	}
	index := readUint(r, indexSize)
	if index != expected {
		return Item{}, fmt.Errorf("%w: expected %d, got %d", ErrUnexpectedExtraDataIndex, expected, index)
	}
	itemType := uint16(readUint(r, typeSize))
	if itemType != TypeStuckValidators && itemType != TypeExitedValidators {
		return Item{}, fmt.Errorf("%w: item %d, type %d", ErrUnsupportedExtraDataType, index, itemType)
	}
	if r.Remaining() < payloadHeadSize+perNodeOpSize {
		return Item{}, fmt.Errorf("%w: item %d: truncated payload", ErrInvalidExtraDataItem, index)
	}
	moduleID := uint32(readUint(r, moduleIDSize))
	count := readUint(r, nodeOpsCntSize)
	if moduleID == 0 {
		return Item{}, fmt.Errorf("%w: item %d: zero module id", ErrInvalidExtraDataItem, index)
	}
	if count == 0 {
		return Item{}, fmt.Errorf("%w: item %d: no node operators", ErrInvalidExtraDataItem, index)
	}
	if count > uint64(r.Remaining()/perNodeOpSize) {
		return Item{}, fmt.Errorf("%w: item %d: %d node operators do not fit", ErrInvalidExtraDataItem, index, count)
	}

	it := Item{
		Index:           uint32(index),
		Type:            itemType,
		ModuleID:        moduleID,
		NodeOperatorIDs: make([]uint64, count),
		KeyCounts:       make([]uint64, count),
	}
	for i := range it.NodeOperatorIDs {
		it.NodeOperatorIDs[i] = readUint(r, nodeOpIDSize)
		if i > 0 && it.NodeOperatorIDs[i] <= it.NodeOperatorIDs[i-1] {
			return Item{}, fmt.Errorf("%w: item %d: node operator %d after %d", ErrInvalidExtraDataSortOrder, index, it.NodeOperatorIDs[i], it.NodeOperatorIDs[i-1])
		}
	}
	if it.FirstKey().Cmp(cur.LastSortingKey) <= 0 {
		return Item{}, fmt.Errorf("%w: item %d: key %s not above %s", ErrInvalidExtraDataSortOrder, index, it.FirstKey(), cur.LastSortingKey)
	}
	for i := range it.KeyCounts {
		raw := r.Read(keyCountSize)
		// counts are stored 16 bytes wide but registries keep them as uint64
		for _, b := range raw[:keyCountSize-8] {
			if b != 0 {
				return Item{}, fmt.Errorf("%w: item %d: key count overflows uint64", ErrInvalidExtraDataItem, index)
			}
		}
		it.KeyCounts[i] = bigendian.BytesToUint64(raw[keyCountSize-8:])
	}
	return it, nil
}

// readUint reads a size-byte big endian integer, size <= 8.
func readUint(r *fast.Reader, size int) uint64 {
	var buf [8]byte
	copy(buf[8-size:], r.Read(size))
	return bigendian.BytesToUint64(buf[:])
}

// EncodeItems packs items without a chunk prefix. Items are written as they
// are; use Normalize first to sort and index them.
func EncodeItems(items []Item) []byte {
	size := 0
	for _, it := range items {
		size += it.Size()
	}
	w := fast.NewWriter(make([]byte, 0, size))
	for _, it := range items {
		encodeItem(w, it)
	}
	return w.Bytes()
}

func encodeItem(w *fast.Writer, it Item) {
	w.Write(bigendian.Uint32ToBytes(it.Index)[4-indexSize:])
	w.Write(bigendian.Uint32ToBytes(uint32(it.Type))[4-typeSize:])
	w.Write(bigendian.Uint32ToBytes(it.ModuleID)[4-moduleIDSize:])
	w.Write(bigendian.Uint64ToBytes(uint64(len(it.NodeOperatorIDs))))
	for _, id := range it.NodeOperatorIDs {
		w.Write(bigendian.Uint64ToBytes(id))
	}
	var pad [keyCountSize - 8]byte
	for i := range it.NodeOperatorIDs {
		var cnt uint64
		if i < len(it.KeyCounts) {
			cnt = it.KeyCounts[i]
		}
		w.Write(pad[:])
		w.Write(bigendian.Uint64ToBytes(cnt))
	}
}

// EncodeChunks splits items into chunks of at most perChunk items (all items
// in one chunk when perChunk <= 0) and links them by hash. It returns the
// chunks in submission order and the hash of the first one, which is the
// value a main report commits to.
func EncodeChunks(items []Item, perChunk int) ([][]byte, common.Hash, error) {
	if len(items) == 0 {
		return nil, common.Hash{}, ErrNoItems
	}
	if perChunk <= 0 || perChunk > len(items) {
		perChunk = len(items)
	}
	var groups [][]Item
	for start := 0; start < len(items); start += perChunk {
		end := start + perChunk
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[start:end])
	}

	chunks := make([][]byte, len(groups))
	var next common.Hash
	for i := len(groups) - 1; i >= 0; i-- {
		body := EncodeItems(groups[i])
		chunk := make([]byte, 0, hashSize+len(body))
		chunk = append(chunk, next.Bytes()...)
		chunk = append(chunk, body...)
		chunks[i] = chunk
		next = HashChunk(chunk)
	}
	return chunks, next, nil
}

// Normalize sorts items by their first sorting key, sorts node operators
// inside each item together with their counts, and assigns sequential
// indexes. The input is not modified.
func Normalize(items []Item) []Item {
	res := make([]Item, len(items))
	for i, it := range items {
		pairs := make([][2]uint64, len(it.NodeOperatorIDs))
		for j, id := range it.NodeOperatorIDs {
			pairs[j][0] = id
			if j < len(it.KeyCounts) {
				pairs[j][1] = it.KeyCounts[j]
			}
		}
		sort.Slice(pairs, func(a, b int) bool { return pairs[a][0] < pairs[b][0] })
		cp := Item{Type: it.Type, ModuleID: it.ModuleID}
		for _, p := range pairs {
			cp.NodeOperatorIDs = append(cp.NodeOperatorIDs, p[0])
			cp.KeyCounts = append(cp.KeyCounts, p[1])
		}
		res[i] = cp
	}
	sort.SliceStable(res, func(a, b int) bool {
		return res[a].FirstKey().Cmp(res[b].FirstKey()) < 0
	})
	for i := range res {
		res[i].Index = uint32(i)
	}
	return res
}

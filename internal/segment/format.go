// Package segment implements the immutable, sorted, on-disk segment format
// of spec §4.D/§4.E: a magic header, a sequence of 4 KiB-target data blocks,
// a sparse key→offset index, a bloom filter, and a fixed 32-byte footer.
//
// Binary layout (little-endian throughout):
//
//	magic (7)            "ELKYN03"
//	data block 0
//	data block 1
//	...
//	index                sorted (klen(4)|offset(8)|key) entries
//	bloom                packed bit array, length bloom_size
//	footer (32)          seq_low(8)|seq_high(8)|key_count(4)|index_size(4)|bloom_size(4)|hash_count(4)
//
// Each record inside a data block is:
//
//	seq(8)|kind(1)|klen(4)|vlen(4)|key(klen)|value(vlen)
//
// kind 1 = SET, kind 2 = DEL_POINT. Writer and reader must agree on this
// field order (klen before vlen, then key, then value) — spec §4.D calls out
// reproducing the opposite order as a known bug to avoid.
package segment

const (
	Magic       = "ELKYN03"
	FooterSize  = 32
	indexHeader = 12 // klen(4) + offset(8), key bytes follow

	RecordSet      byte = 1
	RecordDelPoint byte = 2
)

// IndexEntry is one sparse index entry: the first key of a data block and
// the block's starting offset in the file.
type IndexEntry struct {
	Key    []byte
	Offset int64
}

// Footer is the fixed 32-byte trailer of a segment file.
type Footer struct {
	SeqLow    uint64
	SeqHigh   uint64
	KeyCount  uint32
	IndexSize uint32
	BloomSize uint32
	HashCount uint32
}

// Package bloom implements the CRC-32 and seeded-hash primitives (spec §4.A)
// and the packed-bit bloom filter (spec §4.B) used to guard segment lookups.
package bloom

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
)

// CRC32 computes the reflected, byte-at-a-time CRC-32 used by the WAL frame
// checksum: polynomial 0xEDB88320, init/final XOR 0xFFFFFFFF. The standard
// library's IEEE table implements exactly this polynomial.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Hash returns a deterministic 64-bit hash of key for the given seed. Two
// calls with the same bytes and seed always agree, on any platform — xxhash's
// digest is seeded per call so each bloom probe index is independent.
func Hash(key []byte, seed uint64) uint64 {
	var seedBuf [8]byte
	binary.LittleEndian.PutUint64(seedBuf[:], seed)

	d := xxhash.New()
	_, _ = d.Write(seedBuf[:])
	_, _ = d.Write(key)
	return d.Sum64()
}

// Filter is a packed-bit bloom filter. Its on-disk form is exactly its Bits
// slice (length ⌈BitCount/8⌉); HashCount travels alongside in the segment
// footer.
type Filter struct {
	Bits      []byte
	BitCount  uint
	HashCount uint
}

// New allocates an empty filter with the given bit count and hash count.
func New(bitCount, hashCount uint) *Filter {
	return &Filter{
		Bits:      make([]byte, (bitCount+7)/8),
		BitCount:  bitCount,
		HashCount: hashCount,
	}
}

// FromBits wraps an already-populated packed bit array (used when opening a
// segment from disk).
func FromBits(bits []byte, hashCount uint) *Filter {
	return &Filter{
		Bits:      bits,
		BitCount:  uint(len(bits)) * 8,
		HashCount: hashCount,
	}
}

// Add sets the k bits addressed by key.
func (f *Filter) Add(key []byte) {
	if f.BitCount == 0 {
		return
	}
	for i := uint(0); i < f.HashCount; i++ {
		pos := Hash(key, uint64(i)) % uint64(f.BitCount)
		f.Bits[pos/8] |= 1 << (pos % 8)
	}
}

// MightContain tests whether key could have been added. False positives are
// permitted; false negatives are not.
func (f *Filter) MightContain(key []byte) bool {
	if f.BitCount == 0 {
		return true
	}
	for i := uint(0); i < f.HashCount; i++ {
		pos := Hash(key, uint64(i)) % uint64(f.BitCount)
		if f.Bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

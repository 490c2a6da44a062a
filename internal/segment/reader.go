package segment

import (
	"bytes"
	"encoding/binary"
	"os"
	"sort"

	"github.com/pathkv/pathkv/internal/bloom"
	"github.com/pathkv/pathkv/internal/cache"
	"github.com/pathkv/pathkv/pkg/kverrors"
)

// Record is one decoded data-block entry.
type Record struct {
	Kind  byte
	Key   []byte
	Value []byte
	Seq   uint64
}

// Segment is a read-only handle on a published, immutable on-disk segment.
// Its sparse index and bloom filter live in memory; data blocks are loaded
// on demand through the shared block cache.
type Segment struct {
	Path       string
	SeqLow     uint64
	SeqHigh    uint64
	KeyCount   uint32
	Bloom      *bloom.Filter
	Index      []IndexEntry
	IndexStart int64 // offset where the index region begins — NOT file length, see blockBounds
	fileSize   int64
}

// Open validates a segment's magic and footer and parses its index and
// bloom filter into memory. The data blocks themselves are not read here.
func Open(path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kverrors.IO("opening segment", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, kverrors.IO("statting segment", err)
	}
	fileSize := info.Size()
	if fileSize < int64(len(Magic))+FooterSize {
		return nil, kverrors.SegmentCorruption(path, 0, "file too small to contain magic and footer")
	}

	magic := make([]byte, len(Magic))
	if _, err := f.ReadAt(magic, 0); err != nil {
		return nil, kverrors.IO("reading segment magic", err)
	}
	if string(magic) != Magic {
		return nil, kverrors.SegmentCorruption(path, 0, "bad magic")
	}

	footerBytes := make([]byte, FooterSize)
	if _, err := f.ReadAt(footerBytes, fileSize-FooterSize); err != nil {
		return nil, kverrors.IO("reading segment footer", err)
	}
	footer := decodeFooter(footerBytes)

	bloomStart := fileSize - FooterSize - int64(footer.BloomSize)
	indexStart := bloomStart - int64(footer.IndexSize)
	if bloomStart < 0 || indexStart < 0 {
		return nil, kverrors.SegmentCorruption(path, fileSize-FooterSize, "footer sizes exceed file length")
	}

	indexBytes := make([]byte, footer.IndexSize)
	if footer.IndexSize > 0 {
		if _, err := f.ReadAt(indexBytes, indexStart); err != nil {
			return nil, kverrors.IO("reading segment index", err)
		}
	}
	index, err := decodeIndex(indexBytes)
	if err != nil {
		return nil, kverrors.SegmentCorruption(path, indexStart, err.Error())
	}

	bloomBytes := make([]byte, footer.BloomSize)
	if footer.BloomSize > 0 {
		if _, err := f.ReadAt(bloomBytes, bloomStart); err != nil {
			return nil, kverrors.IO("reading segment bloom filter", err)
		}
	}

	return &Segment{
		Path:       path,
		SeqLow:     footer.SeqLow,
		SeqHigh:    footer.SeqHigh,
		KeyCount:   footer.KeyCount,
		Bloom:      bloom.FromBits(bloomBytes, uint(footer.HashCount)),
		Index:      index,
		IndexStart: indexStart,
		fileSize:   fileSize,
	}, nil
}

func decodeFooter(b []byte) Footer {
	return Footer{
		SeqLow:    binary.LittleEndian.Uint64(b[0:8]),
		SeqHigh:   binary.LittleEndian.Uint64(b[8:16]),
		KeyCount:  binary.LittleEndian.Uint32(b[16:20]),
		IndexSize: binary.LittleEndian.Uint32(b[20:24]),
		BloomSize: binary.LittleEndian.Uint32(b[24:28]),
		HashCount: binary.LittleEndian.Uint32(b[28:32]),
	}
}

func decodeIndex(b []byte) ([]IndexEntry, error) {
	var entries []IndexEntry
	pos := 0
	for pos < len(b) {
		if pos+indexHeader > len(b) {
			return nil, errCorruptIndex
		}
		klen := int(binary.LittleEndian.Uint32(b[pos : pos+4]))
		offset := int64(binary.LittleEndian.Uint64(b[pos+4 : pos+12]))
		pos += indexHeader
		if pos+klen > len(b) {
			return nil, errCorruptIndex
		}
		key := append([]byte(nil), b[pos:pos+klen]...)
		pos += klen
		entries = append(entries, IndexEntry{Key: key, Offset: offset})
	}
	return entries, nil
}

var errCorruptIndex = errCorruptIndexType{}

type errCorruptIndexType struct{}

func (errCorruptIndexType) Error() string { return "truncated index entry" }

// blockBounds returns the byte range [start, end) of the data block that may
// contain key, based on the sparse index. The block's end is bounded by the
// index region's start offset, never by the file's total length — the two
// diverge once a segment carries an index, bloom filter, and footer, and
// using file length here would pull trailing metadata into the scan.
func (s *Segment) blockBounds(key []byte) (start, end int64, ok bool) {
	if len(s.Index) == 0 {
		return 0, 0, false
	}

	i := sort.Search(len(s.Index), func(i int) bool {
		return bytes.Compare(s.Index[i].Key, key) > 0
	})
	if i == 0 {
		return 0, 0, false
	}
	start = s.Index[i-1].Offset

	if i < len(s.Index) {
		end = s.Index[i].Offset
	} else {
		end = s.IndexStart
	}
	return start, end, true
}

// Lookup returns the most recent record for key in this segment, if any.
func (s *Segment) Lookup(key []byte, blocks *cache.Cache) (Record, bool, error) {
	if !s.Bloom.MightContain(key) {
		return Record{}, false, nil
	}

	start, end, ok := s.blockBounds(key)
	if !ok {
		return Record{}, false, nil
	}

	data, err := blocks.GetOrLoad(s.Path, start, int(end-start))
	if err != nil {
		return Record{}, false, kverrors.IO("loading segment block", err)
	}

	records, err := decodeBlock(data)
	if err != nil {
		return Record{}, false, kverrors.SegmentCorruption(s.Path, start, err.Error())
	}

	var best Record
	found := false
	for _, r := range records {
		if bytes.Equal(r.Key, key) && (!found || r.Seq > best.Seq) {
			best = r
			found = true
		}
	}
	return best, found, nil
}

// ScanRange decodes every record in this segment whose key lies in
// [start, end) (end == "" means unbounded). Used for subtree reads, where
// the bloom filter cannot help: every data block is loaded and filtered
// record by record, except blocks whose first key is already at or past end.
func (s *Segment) ScanRange(start, end string, blocks *cache.Cache) ([]Record, error) {
	var out []Record

	for i, entry := range s.Index {
		blockEnd := s.IndexStart
		if i+1 < len(s.Index) {
			blockEnd = s.Index[i+1].Offset
		}

		// The index holds each block's first key, so a block (other than
		// the last) whose first key is at or past end holds no key in
		// range and is skipped. Blocks lying wholly below start are still
		// loaded; their records are dropped by the filter below.
		if i+1 < len(s.Index) && end != "" && bytes.Compare(s.Index[i+1].Key, []byte(end)) >= 0 && bytes.Compare(entry.Key, []byte(end)) >= 0 {
			continue
		}

		data, err := blocks.GetOrLoad(s.Path, entry.Offset, int(blockEnd-entry.Offset))
		if err != nil {
			return nil, kverrors.IO("loading segment block", err)
		}
		records, err := decodeBlock(data)
		if err != nil {
			return nil, kverrors.SegmentCorruption(s.Path, entry.Offset, err.Error())
		}

		for _, r := range records {
			if string(r.Key) < start {
				continue
			}
			if end != "" && string(r.Key) >= end {
				continue
			}
			out = append(out, r)
		}
	}

	return out, nil
}

func decodeBlock(data []byte) ([]Record, error) {
	var records []Record
	pos := 0
	for pos < len(data) {
		if pos+17 > len(data) { // seq(8)+kind(1)+klen(4)+vlen(4)
			return nil, errCorruptIndexType{}
		}
		seq := binary.LittleEndian.Uint64(data[pos : pos+8])
		kind := data[pos+8]
		klen := int(binary.LittleEndian.Uint32(data[pos+9 : pos+13]))
		vlen := int(binary.LittleEndian.Uint32(data[pos+13 : pos+17]))
		pos += 17

		if pos+klen+vlen > len(data) {
			return nil, errCorruptIndexType{}
		}
		key := data[pos : pos+klen]
		pos += klen
		value := data[pos : pos+vlen]
		pos += vlen

		records = append(records, Record{Kind: kind, Key: key, Value: value, Seq: seq})
	}
	return records, nil
}

package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/pathkv/pathkv/internal/bloom"
)

// Writer streams a sorted key/value sequence into a new segment file. The
// caller must add records in ascending key order — the writer trusts the
// memtable's sorted iteration and performs no sort of its own. A key may be
// added more than once; Lookup returns the copy with the highest seq among
// those in the block it searches.
type Writer struct {
	finalPath string
	buf       bytes.Buffer // whole file is staged in memory, then published atomically

	blockSize int
	block     bytes.Buffer
	blockHead []byte // first key of the block currently being built

	index    []IndexEntry
	bloom    *bloom.Filter
	seqLow   uint64
	seqHigh  uint64
	keyCount uint32
	written  int64
}

// NewWriter creates a writer that will publish its segment to path once
// Finish is called. blockSize is the target data-block size (spec default
// 4 KiB); bloomBits/bloomHashCount size the segment's bloom filter.
func NewWriter(path string, blockSize int, bloomBits, bloomHashCount uint) (*Writer, error) {
	w := &Writer{
		finalPath: path,
		blockSize: blockSize,
		bloom:     bloom.New(bloomBits, bloomHashCount),
		seqLow:    ^uint64(0),
	}
	if _, err := w.buf.WriteString(Magic); err != nil {
		return nil, err
	}
	w.written = int64(len(Magic))
	return w, nil
}

// Add appends one record. kind is RecordSet or RecordDelPoint; value is
// written as given for either kind, so callers pass an empty value for
// RecordDelPoint.
func (w *Writer) Add(kind byte, key, value []byte, seq uint64) error {
	w.bloom.Add(key)

	if seq < w.seqLow {
		w.seqLow = seq
	}
	if seq > w.seqHigh {
		w.seqHigh = seq
	}

	record := encodeRecord(kind, key, value, seq)

	if w.block.Len() > 0 && w.block.Len()+len(record) > w.blockSize {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}

	if w.block.Len() == 0 {
		w.blockHead = append([]byte(nil), key...)
	}

	if _, err := w.block.Write(record); err != nil {
		return err
	}
	w.keyCount++

	return nil
}

func encodeRecord(kind byte, key, value []byte, seq uint64) []byte {
	rec := make([]byte, 0, 8+1+4+4+len(key)+len(value))
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:8], seq)
	rec = append(rec, tmp[:8]...)
	rec = append(rec, kind)

	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(key)))
	rec = append(rec, tmp[:4]...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(value)))
	rec = append(rec, tmp[:4]...)

	rec = append(rec, key...)
	rec = append(rec, value...)
	return rec
}

func (w *Writer) flushBlock() error {
	if w.block.Len() == 0 {
		return nil
	}

	w.index = append(w.index, IndexEntry{Key: w.blockHead, Offset: w.written})

	n, err := w.buf.Write(w.block.Bytes())
	if err != nil {
		return err
	}
	w.written += int64(n)
	w.block.Reset()
	w.blockHead = nil

	return nil
}

// Finish flushes any pending block, writes the index/bloom/footer, and
// atomically publishes the completed file at its final path. It returns a
// read-only handle on the new segment.
func (w *Writer) Finish() (*Segment, error) {
	if err := w.flushBlock(); err != nil {
		return nil, err
	}

	indexStart := w.written
	indexBytes := encodeIndex(w.index)
	if _, err := w.buf.Write(indexBytes); err != nil {
		return nil, err
	}
	w.written += int64(len(indexBytes))

	if _, err := w.buf.Write(w.bloom.Bits); err != nil {
		return nil, err
	}
	w.written += int64(len(w.bloom.Bits))

	if w.seqLow == ^uint64(0) {
		w.seqLow = 0
	}

	footer := Footer{
		SeqLow:    w.seqLow,
		SeqHigh:   w.seqHigh,
		KeyCount:  w.keyCount,
		IndexSize: uint32(len(indexBytes)),
		BloomSize: uint32(len(w.bloom.Bits)),
		HashCount: uint32(w.bloom.HashCount),
	}
	footerBytes := encodeFooter(footer)
	if _, err := w.buf.Write(footerBytes); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(w.finalPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating segment directory: %w", err)
	}

	if err := atomic.WriteFile(w.finalPath, bytes.NewReader(w.buf.Bytes())); err != nil {
		return nil, fmt.Errorf("publishing segment %s: %w", w.finalPath, err)
	}

	return &Segment{
		Path:       w.finalPath,
		SeqLow:     footer.SeqLow,
		SeqHigh:    footer.SeqHigh,
		KeyCount:   footer.KeyCount,
		Bloom:      w.bloom,
		Index:      w.index,
		IndexStart: indexStart,
	}, nil
}

func encodeIndex(entries []IndexEntry) []byte {
	var buf bytes.Buffer
	var tmp [8]byte

	for _, e := range entries {
		binary.LittleEndian.PutUint32(tmp[:4], uint32(len(e.Key)))
		buf.Write(tmp[:4])
		binary.LittleEndian.PutUint64(tmp[:8], uint64(e.Offset))
		buf.Write(tmp[:8])
		buf.Write(e.Key)
	}
	return buf.Bytes()
}

func encodeFooter(f Footer) []byte {
	buf := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(buf[0:8], f.SeqLow)
	binary.LittleEndian.PutUint64(buf[8:16], f.SeqHigh)
	binary.LittleEndian.PutUint32(buf[16:20], f.KeyCount)
	binary.LittleEndian.PutUint32(buf[20:24], f.IndexSize)
	binary.LittleEndian.PutUint32(buf[24:28], f.BloomSize)
	binary.LittleEndian.PutUint32(buf[28:32], f.HashCount)
	return buf
}

// Package walio implements the write-ahead log described in spec §4.F: a
// group-committed, crash-tolerant append log that every mutation passes
// through before it is visible in the memtable, and that recovery replays
// to rebuild memtable state after an unclean shutdown.
//
// Binary layout (little-endian throughout):
//
//	magic (4)   "WAL2"
//	frame 0
//	frame 1
//	...
//
// Each frame is:
//
//	len(4) | record(len) | crc32(4)
//
// crc32 covers exactly the record bytes. A record is:
//
//	seq(8) | kind(1) | klen(4) | key(klen) | [vlen(4) | value(vlen)]
//
// vlen/value are present only for RecordSet.
package walio

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pathkv/pathkv/pkg/kverrors"
)

const (
	Magic = "WAL2"

	RecordSet      byte = 1
	RecordDelPoint byte = 2
	RecordDelSub   byte = 3
)

// Record is one decoded WAL entry.
type Record struct {
	Kind  byte
	Key   string
	Value string
	Seq   uint64
}

func encodeRecord(r Record) []byte {
	buf := make([]byte, 0, 8+1+4+len(r.Key)+4+len(r.Value))
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:8], r.Seq)
	buf = append(buf, tmp[:8]...)
	buf = append(buf, r.Kind)

	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(r.Key)))
	buf = append(buf, tmp[:4]...)
	buf = append(buf, r.Key...)

	if r.Kind == RecordSet {
		binary.LittleEndian.PutUint32(tmp[:4], uint32(len(r.Value)))
		buf = append(buf, tmp[:4]...)
		buf = append(buf, r.Value...)
	}

	return buf
}

func encodeFrame(r Record) []byte {
	body := encodeRecord(r)

	frame := make([]byte, 4+len(body)+4)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:4+len(body)], body)
	binary.LittleEndian.PutUint32(frame[4+len(body):], crc32.ChecksumIEEE(body))

	return frame
}

// Writer is the durability barrier every Set/Delete passes through. Writes
// queue into a pending batch that is flushed either on a fixed tick or once
// it grows past a threshold, then fsynced once for the whole batch —
// spec §4.F's group commit. Append itself never waits on the background
// tick: it enqueues and returns, only blocking the caller when the batch it
// just joined crosses bufferLimit, in which case it performs that flush
// itself, synchronously, exactly as antler.rs's append does.
type Writer struct {
	mu          sync.Mutex
	f           *os.File
	pending     []Record
	bufferLimit int
	done        chan struct{}
	closed      bool
	wg          sync.WaitGroup
}

// NewWriter opens (or creates) the WAL file at path and starts its
// background group-commit loop. tickInterval and bufferLimit come from
// pkg/options (GroupCommitInterval, WalBufferLimit).
func NewWriter(path string, tickInterval time.Duration, bufferLimit int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, kverrors.IO("opening WAL file", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, kverrors.IO("statting WAL file", err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(Magic); err != nil {
			f.Close()
			return nil, kverrors.IO("writing WAL magic", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, kverrors.IO("syncing new WAL file", err)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, kverrors.IO("seeking to end of WAL file", err)
	}

	w := &Writer{
		f:           f,
		bufferLimit: bufferLimit,
		done:        make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop(tickInterval)

	return w, nil
}

// Append queues one record and returns immediately; durability is only
// guaranteed once a subsequent flush (background tick or Sync) completes.
// The one exception is the group-commit buffer threshold: if this record
// pushes the pending batch to bufferLimit, Append flushes it synchronously
// before returning, so the error from that flush is visible to this call.
func (w *Writer) Append(kind byte, key, value string, seq uint64) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return kverrors.IO("appending to WAL", os.ErrClosed)
	}
	w.pending = append(w.pending, Record{Kind: kind, Key: key, Value: value, Seq: seq})
	shouldFlush := len(w.pending) >= w.bufferLimit
	w.mu.Unlock()

	if shouldFlush {
		return w.flush()
	}
	return nil
}

func (w *Writer) loop(tickInterval time.Duration) {
	defer w.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flush()
		case <-w.done:
			w.flush()
			return
		}
	}
}

func (w *Writer) flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := w.pending
	w.pending = nil

	if len(batch) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, r := range batch {
		buf.Write(encodeFrame(r))
	}

	_, err := w.f.Write(buf.Bytes())
	if err == nil {
		err = w.f.Sync()
	}
	if err != nil {
		return kverrors.IO("flushing WAL batch", err)
	}
	return nil
}

// Close drains any pending writes, performs a final flush, and closes the
// underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()

	return w.f.Close()
}

// Sync forces an immediate flush of any records queued by Append, without
// waiting for the group-commit tick. Used by Store.Flush for its durability
// barrier. Safe to call concurrently with Append and the background loop.
func (w *Writer) Sync() error {
	return w.flush()
}

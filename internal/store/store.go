// Package store implements the visibility engine of spec §4.I: the
// component that ties the write-ahead log, memtable, on-disk segments, and
// manifest together into a single tree-structured key/value store with a
// consistent read path.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pathkv/pathkv/internal/cache"
	"github.com/pathkv/pathkv/internal/manifest"
	"github.com/pathkv/pathkv/internal/memtable"
	"github.com/pathkv/pathkv/internal/segment"
	"github.com/pathkv/pathkv/internal/walio"
	"github.com/pathkv/pathkv/pkg/kverrors"
	"github.com/pathkv/pathkv/pkg/options"

	"go.uber.org/zap"
)

// Entry is one resolved (path, value) pair, used by subtree reads.
type Entry struct {
	Path  string
	Value string
}

// Store is the concurrency-safe, crash-recoverable tree key/value engine.
// A single write lock serializes mutations; reads take a read lock over
// the same state, so Get never observes a Set half-applied.
type Store struct {
	dir     string
	opts    options.Options
	log     *zap.SugaredLogger
	wal     *walio.Writer
	cache   *cache.Cache
	mfst    *manifest.Manifest
	closeMu sync.Mutex
	closed  bool

	mu         sync.RWMutex
	seq        uint64
	mem        *memtable.Memtable
	segmentsL0 []*segment.Segment
	segmentsL1 []*segment.Segment
	segmentsL2 []*segment.Segment
	subtombs   map[string]uint64 // prefix (trailing "/") -> tombstone seq
}

// Open creates or recovers a store rooted at dir: it loads the manifest,
// opens every segment it names, then replays the WAL to rebuild memtable
// state for any writes that landed after the last flush.
func Open(dir string, optFuncs ...options.OptionFunc) (*Store, error) {
	opts := options.Apply(optFuncs...)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kverrors.IO("creating store directory", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	sugar := logger.Sugar()

	mfst, err := manifest.Open(filepath.Join(dir, "manifest.log"))
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:      dir,
		opts:     opts,
		log:      sugar,
		cache:    cache.New(opts.CacheSize),
		mfst:     mfst,
		mem:      memtable.New(),
		subtombs: make(map[string]uint64),
	}

	for _, entry := range mfst.Entries() {
		seg, err := segment.Open(filepath.Join(dir, entry.Filename))
		if err != nil {
			sugar.Warnw("skipping unreadable segment named in manifest", "file", entry.Filename, "error", err)
			continue
		}
		s.installSegment(seg, entry.Level)
		if entry.SeqHigh > s.seq {
			s.seq = entry.SeqHigh
		}
	}

	walPath := filepath.Join(dir, "wal.log")
	records, err := walio.Replay(walPath)
	if err != nil {
		return nil, err
	}
	s.replay(records)

	wal, err := walio.NewWriter(walPath, opts.GroupCommitInterval, opts.WalBufferLimit)
	if err != nil {
		return nil, err
	}
	s.wal = wal

	return s, nil
}

func (s *Store) installSegment(seg *segment.Segment, level int) {
	switch level {
	case 0:
		s.segmentsL0 = append(s.segmentsL0, seg)
	case 1:
		s.segmentsL1 = append(s.segmentsL1, seg)
	case 2:
		s.segmentsL2 = append(s.segmentsL2, seg)
	}
}

// replay rebuilds memtable and subtree-tombstone state from recovered WAL
// records, in the order they were written.
func (s *Store) replay(records []walio.Record) {
	for _, r := range records {
		if r.Seq > s.seq {
			s.seq = r.Seq
		}
		switch r.Kind {
		case walio.RecordSet:
			s.mem.PutScalar(r.Key, r.Value, r.Seq)
		case walio.RecordDelPoint:
			s.mem.PutPointTomb(r.Key, r.Seq)
		case walio.RecordDelSub:
			s.subtombs[r.Key] = r.Seq
		}
	}
}

func parentPath(path string) (string, bool) {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "", false
	}
	return path[:idx], true
}

// Set installs value at path. When replaceSubtree is true, the entire
// subtree rooted at path (including path itself, if it currently holds a
// scalar) is atomically replaced: the subtree tombstone, the point
// tombstone for path, and the new scalar all share one sequence number, so
// a reader can never observe the old subtree and the new value at once.
func (s *Store) Set(path, value string, replaceSubtree bool) error {
	if err := s.checkTreeStructure(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	seq := s.seq

	if replaceSubtree {
		prefix := path + "/"
		if err := s.wal.Append(walio.RecordDelSub, prefix, "", seq); err != nil {
			return err
		}
		s.subtombs[prefix] = seq

		if err := s.wal.Append(walio.RecordDelPoint, path, "", seq); err != nil {
			return err
		}
		s.mem.PutPointTomb(path, seq)
	}

	if err := s.wal.Append(walio.RecordSet, path, value, seq); err != nil {
		return err
	}
	s.mem.PutScalar(path, value, seq)

	if s.mem.Size() >= s.opts.MemtableThreshold {
		if err := s.flushMemtableLocked(); err != nil {
			return err
		}
	}

	return nil
}

// checkTreeStructure enforces that a path may not be written underneath an
// existing scalar ancestor.
func (s *Store) checkTreeStructure(path string) error {
	for parent, ok := parentPath(path); ok; parent, ok = parentPath(parent) {
		_, found, err := s.Get(parent)
		if err != nil {
			return err
		}
		if found {
			return kverrors.TreeStructureViolation(path, parent)
		}
	}
	return nil
}

// Get resolves path to its current scalar value. found is false if no live
// value exists at path. A path ending in "/" is a subtree query:
// GetSubtree should be used instead, so the caller can choose how to
// render the resulting entries.
func (s *Store) Get(path string) (value string, found bool, err error) {
	if strings.HasSuffix(path, "/") {
		return "", false, kverrors.InvalidPath(path, "path names a subtree; use GetSubtree")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if mv, ok := s.mem.Get(path); ok {
		if mv.Kind == memtable.KindScalar && !s.coveredBySubtomb(path, mv.Seq) {
			return mv.Data, true, nil
		}
		return "", false, nil
	}

	var (
		best     segment.Record
		haveBest bool
	)

	for _, seg := range s.allSegments() {
		rec, ok, err := seg.Lookup([]byte(path), s.cache)
		if err != nil {
			return "", false, err
		}
		if !ok {
			continue
		}
		if s.coveredBySubtomb(path, rec.Seq) {
			continue
		}
		if !haveBest || rec.Seq > best.Seq {
			best = rec
			haveBest = true
		}
	}

	if !haveBest || best.Kind != segment.RecordSet {
		return "", false, nil
	}
	return string(best.Value), true, nil
}

// GetSubtree resolves every live scalar under prefix (a path ending in
// "/"), merging memtable and segment state the same way Get does, one key
// at a time.
func (s *Store) GetSubtree(prefix string) ([]Entry, error) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]string)
	seqOf := make(map[string]uint64)

	for rec := range s.mem.All() {
		if !strings.HasPrefix(rec.Path, prefix) {
			continue
		}
		if s.coveredBySubtomb(rec.Path, rec.Value.Seq) {
			continue
		}
		seqOf[rec.Path] = rec.Value.Seq
		if rec.Value.Kind == memtable.KindScalar {
			latest[rec.Path] = rec.Value.Data
		}
	}

	end := prefix + "~" // "~" sorts after all path chars spec allows
	for _, seg := range s.allSegments() {
		records, err := seg.ScanRange(prefix, end, s.cache)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			key := string(rec.Key)
			if s.coveredBySubtomb(key, rec.Seq) {
				continue
			}
			if prevSeq, ok := seqOf[key]; ok && prevSeq >= rec.Seq {
				continue
			}
			seqOf[key] = rec.Seq
			if rec.Kind == segment.RecordSet {
				latest[key] = string(rec.Value)
			} else {
				delete(latest, key)
			}
		}
	}

	keys := make([]string, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Path: k, Value: latest[k]})
	}
	return entries, nil
}

// coveredBySubtomb reports whether key falls under a subtree tombstone
// whose sequence number is at or after seq. The "at or after" (not
// strictly after) comparison matters: a subtree delete and a replacement
// write share the same sequence number, and the tombstone must still mask
// any stale copy of the old value carrying that same seq.
func (s *Store) coveredBySubtomb(key string, seq uint64) bool {
	for prefix, tombSeq := range s.subtombs {
		if strings.HasPrefix(key, prefix) && tombSeq >= seq {
			return true
		}
	}
	return false
}

func (s *Store) allSegments() []*segment.Segment {
	all := make([]*segment.Segment, 0, len(s.segmentsL0)+len(s.segmentsL1)+len(s.segmentsL2))
	all = append(all, s.segmentsL0...)
	all = append(all, s.segmentsL1...)
	all = append(all, s.segmentsL2...)
	return all
}

// Delete installs a point tombstone at path.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	seq := s.seq

	if err := s.wal.Append(walio.RecordDelPoint, path, "", seq); err != nil {
		return err
	}
	s.mem.PutPointTomb(path, seq)
	return nil
}

// DeleteSubtree installs a subtree tombstone masking every path under
// prefix.
func (s *Store) DeleteSubtree(prefix string) error {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	seq := s.seq

	if err := s.wal.Append(walio.RecordDelSub, prefix, "", seq); err != nil {
		return err
	}
	s.subtombs[prefix] = seq
	return nil
}

// Flush forces the current memtable to an L0 segment regardless of its
// size, then syncs the WAL. It is the durability barrier callers use
// before treating a batch of writes as safely persisted beyond the WAL.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushMemtableLocked(); err != nil {
		return err
	}
	return s.wal.Sync()
}

func (s *Store) flushMemtableLocked() error {
	if s.mem.Size() == 0 {
		return nil
	}

	filename := fmt.Sprintf("l0_%010d.seg", s.seq)
	path := filepath.Join(s.dir, filename)

	w, err := segment.NewWriter(path, s.opts.BlockSize, s.opts.BloomBits, s.opts.BloomHashCount)
	if err != nil {
		return err
	}

	for rec := range s.mem.All() {
		switch rec.Value.Kind {
		case memtable.KindScalar:
			if err := w.Add(segment.RecordSet, []byte(rec.Path), []byte(rec.Value.Data), rec.Value.Seq); err != nil {
				return err
			}
		case memtable.KindPointTomb:
			if err := w.Add(segment.RecordDelPoint, []byte(rec.Path), nil, rec.Value.Seq); err != nil {
				return err
			}
		}
	}

	seg, err := w.Finish()
	if err != nil {
		return err
	}

	if err := s.mfst.Add(manifest.Entry{SeqHigh: seg.SeqHigh, Level: 0, Filename: filename}); err != nil {
		return err
	}

	s.segmentsL0 = append(s.segmentsL0, seg)
	s.mem.Reset()

	s.log.Infow("flushed memtable", "segment", filename, "keys", seg.KeyCount)
	return s.wal.Sync()
}

// Close flushes any outstanding data and releases the store's file handles.
func (s *Store) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.Flush(); err != nil {
		return err
	}
	if err := s.wal.Close(); err != nil {
		return err
	}
	if err := s.mfst.Close(); err != nil {
		return err
	}
	_ = s.log.Sync()
	return nil
}

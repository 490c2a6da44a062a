// Package manifest tracks the set of live on-disk segments described in
// spec §4.G: an append-only text log of (seq_high, level, filename) triples
// that the store consults to know which segment files to open on startup
// and where each level's data lives.
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pathkv/pathkv/pkg/kverrors"
)

// Entry is one line of the manifest: the highest sequence number written
// into the segment, the LSM level it belongs to, and its filename relative
// to the store directory.
type Entry struct {
	SeqHigh  uint64
	Level    int
	Filename string
}

func (e Entry) encode() string {
	return fmt.Sprintf("%d|%d|%s\n", e.SeqHigh, e.Level, e.Filename)
}

// Manifest is the append-only record of live segments, each tagged with
// its level.
type Manifest struct {
	path    string
	f       *os.File
	entries []Entry
}

// Open loads the manifest at path (creating it if absent) and returns a
// handle ready to accept new entries. A malformed or tail-torn trailing
// line — the result of a crash mid-append — is dropped rather than
// treated as a hard failure; every well-formed line before it is kept.
func Open(path string) (*Manifest, error) {
	entries, err := load(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, kverrors.IO("opening manifest", err)
	}

	return &Manifest{path: path, f: f, entries: entries}, nil
}

func load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, kverrors.IO("opening manifest for load", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry, err := parseLine(line)
		if err != nil {
			// A malformed line can only be an in-progress write torn by a
			// crash, since every prior Append fsyncs before returning.
			break
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, kverrors.IO("scanning manifest", err)
	}

	return entries, nil
}

func parseLine(line string) (Entry, error) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return Entry{}, kverrors.InvalidPath(line, "manifest line must have 3 fields")
	}

	seqHigh, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Entry{}, err
	}
	level, err := strconv.Atoi(parts[1])
	if err != nil {
		return Entry{}, err
	}
	if parts[2] == "" {
		return Entry{}, kverrors.InvalidPath(line, "empty filename")
	}

	return Entry{SeqHigh: seqHigh, Level: level, Filename: parts[2]}, nil
}

// Entries returns the currently live segment entries, oldest first.
func (m *Manifest) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Add appends a new live segment entry durably: the write is fsynced
// before Add returns, so a manifest on disk never names a segment file
// that wasn't itself fully published first.
func (m *Manifest) Add(entry Entry) error {
	if _, err := m.f.WriteString(entry.encode()); err != nil {
		return kverrors.IO("appending manifest entry", err)
	}
	if err := m.f.Sync(); err != nil {
		return kverrors.IO("syncing manifest", err)
	}
	m.entries = append(m.entries, entry)
	return nil
}

// Close closes the underlying manifest file.
func (m *Manifest) Close() error {
	return m.f.Close()
}

package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAddAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")

	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Add(Entry{SeqHigh: 10, Level: 0, Filename: "000001.seg"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(Entry{SeqHigh: 25, Level: 1, Filename: "000002.seg"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open (reload): %v", err)
	}
	defer reopened.Close()

	entries := reopened.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() len = %d, want 2", len(entries))
	}
	if entries[0].Filename != "000001.seg" || entries[0].Level != 0 {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if entries[1].SeqHigh != 25 {
		t.Fatalf("entries[1].SeqHigh = %d, want 25", entries[1].SeqHigh)
	}
}

func TestLoadToleratesTornTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MANIFEST")

	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Add(Entry{SeqHigh: 1, Level: 0, Filename: "000001.seg"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	m.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString("17|1"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open (reload): %v", err)
	}
	defer reopened.Close()

	entries := reopened.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() len = %d, want 1", len(entries))
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	m, err := Open(filepath.Join(t.TempDir(), "MANIFEST"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if len(m.Entries()) != 0 {
		t.Fatalf("Entries() = %v, want empty", m.Entries())
	}
}

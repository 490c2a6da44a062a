package render

import (
	"testing"

	"github.com/pathkv/pathkv/internal/store"
)

func TestSubtreeRendersRelativeKeys(t *testing.T) {
	entries := []store.Entry{
		{Path: "a/b/c", Value: "1"},
		{Path: "a/b/d", Value: "2"},
	}

	got := Subtree(entries, "a/b/")
	want := `{"c":"1","d":"2"}`
	if got != want {
		t.Fatalf("Subtree() = %q, want %q", got, want)
	}
}

func TestSubtreeEscapesQuotes(t *testing.T) {
	entries := []store.Entry{
		{Path: `a/"weird"`, Value: `has "quotes"`},
	}

	got := Subtree(entries, "a/")
	want := `{"\"weird\"":"has \"quotes\""}`
	if got != want {
		t.Fatalf("Subtree() = %q, want %q", got, want)
	}
}

func TestSubtreeEmpty(t *testing.T) {
	if got := Subtree(nil, "a/"); got != "{}" {
		t.Fatalf("Subtree(nil) = %q, want %q", got, "{}")
	}
}

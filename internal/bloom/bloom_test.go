package bloom

import (
	"fmt"
	"testing"
)

func TestFilterNoFalseNegatives(t *testing.T) {
	f := New(10000, 7)

	keys := make([][]byte, 100)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%d", i))
		f.Add(keys[i])
	}

	for _, k := range keys {
		if !f.MightContain(k) {
			t.Fatalf("MightContain(%q) = false, want true (false negative)", k)
		}
	}
}

func TestFilterLikelyRejectsAbsentKey(t *testing.T) {
	f := New(10000, 7)
	f.Add([]byte("present"))

	if f.MightContain([]byte("definitely-absent-key-xyz")) {
		t.Log("MightContain reported a false positive; acceptable but noted")
	}
}

func TestFromBitsRoundTrip(t *testing.T) {
	f := New(1000, 4)
	f.Add([]byte("a/b/c"))

	reloaded := FromBits(f.Bits, f.HashCount)
	if !reloaded.MightContain([]byte("a/b/c")) {
		t.Fatal("FromBits filter lost a member present before serialization")
	}
}

func TestEmptyFilterAlwaysContains(t *testing.T) {
	f := New(0, 7)
	if !f.MightContain([]byte("anything")) {
		t.Fatal("zero-bit filter must report MightContain = true unconditionally")
	}
}

func TestCRC32MatchesIEEE(t *testing.T) {
	data := []byte("the quick brown fox")
	if got, want := CRC32(data), uint32(0x91c102ca); got != want {
		t.Fatalf("CRC32(%q) = %#08x, want IEEE CRC-32 %#08x", data, got, want)
	}
}

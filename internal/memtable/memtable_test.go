package memtable

import "testing"

func TestPutScalarAndGet(t *testing.T) {
	m := New()
	m.PutScalar("a/b", "hello", 1)

	v, ok := m.Get("a/b")
	if !ok {
		t.Fatal("Get(a/b) = not found")
	}
	if v.Kind != KindScalar || v.Data != "hello" || v.Seq != 1 {
		t.Fatalf("Get(a/b) = %+v", v)
	}
}

func TestPutOverwritesPreviousValue(t *testing.T) {
	m := New()
	m.PutScalar("a", "1", 1)
	m.PutScalar("a", "2", 2)

	v, ok := m.Get("a")
	if !ok || v.Data != "2" || v.Seq != 2 {
		t.Fatalf("Get(a) = %+v, %v, want data=2 seq=2", v, ok)
	}
}

func TestPutPointTombMasksScalar(t *testing.T) {
	m := New()
	m.PutScalar("a", "1", 1)
	m.PutPointTomb("a", 2)

	v, ok := m.Get("a")
	if !ok {
		t.Fatal("Get(a) = not found, want the tombstone record")
	}
	if v.Kind != KindPointTomb {
		t.Fatalf("Get(a).Kind = %v, want KindPointTomb", v.Kind)
	}
}

func TestAllIteratesInAscendingOrder(t *testing.T) {
	m := New()
	m.PutScalar("c", "3", 3)
	m.PutScalar("a", "1", 1)
	m.PutScalar("b", "2", 2)

	var order []string
	for rec := range m.All() {
		order = append(order, rec.Path)
	}

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("All() yielded %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("All() = %v, want %v", order, want)
		}
	}
}

func TestResetClearsMemtable(t *testing.T) {
	m := New()
	m.PutScalar("a", "1", 1)
	if m.Size() == 0 {
		t.Fatal("Size() = 0 before Reset, want > 0")
	}

	m.Reset()
	if m.Size() != 0 {
		t.Fatalf("Size() = %d after Reset, want 0", m.Size())
	}
	if _, ok := m.Get("a"); ok {
		t.Fatal("Get(a) found after Reset, want not found")
	}
}

func TestSizeAccumulatesPerEntry(t *testing.T) {
	m := New()
	m.PutScalar("ab", "xy", 1)

	want := len("ab") + len("xy") + perEntryOverhead
	if m.Size() != want {
		t.Fatalf("Size() = %d, want %d", m.Size(), want)
	}
}

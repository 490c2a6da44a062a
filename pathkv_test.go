package pathkv

import "testing"

func TestOpenSetGetClose(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Set("config/timeout", "30s", false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := db.Set("config/retries", "3", false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	value, found, err := db.Get("config/timeout")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || value != "30s" {
		t.Fatalf("Get(config/timeout) = %q, %v, want %q, true", value, found, "30s")
	}

	json, err := db.GetSubtree("config/")
	if err != nil {
		t.Fatalf("GetSubtree: %v", err)
	}
	if json != `{"retries":"3","timeout":"30s"}` {
		t.Fatalf("GetSubtree(config/) = %q", json)
	}

	if err := db.Delete("config/retries"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, err := db.Get("config/retries"); err != nil || found {
		t.Fatalf("Get(config/retries) after Delete = found=%v err=%v, want false", found, err)
	}
}

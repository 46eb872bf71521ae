package security

import "testing"

func TestAllowlistStore_AddHasRemove(t *testing.T) {
	store, err := NewAllowlistStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if store.Has("telegram", "u1") {
		t.Fatal("expected no entry yet")
	}
	if err := store.Add("telegram", "u1", "cli"); err != nil {
		t.Fatal(err)
	}
	if !store.Has("telegram", "u1") {
		t.Fatal("expected entry after Add")
	}
	if err := store.Remove("telegram", "u1"); err != nil {
		t.Fatal(err)
	}
	if store.Has("telegram", "u1") {
		t.Fatal("expected entry removed")
	}
}

func TestAllowlistStore_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewAllowlistStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Add("discord", "u2", "pairing:ABC12345"); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewAllowlistStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.Has("discord", "u2") {
		t.Fatal("expected entry to survive reload")
	}
}

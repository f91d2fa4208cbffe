package state

import (
	"testing"

	"dropforge/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	return NewManager(db)
}

func TestKVRoundTrip(t *testing.T) {
	manager := newTestManager(t)

	type record struct {
		Name  string
		Count uint64
	}
	if err := manager.KVPut([]byte("test/record"), record{Name: "alpha", Count: 7}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var got record
	ok, err := manager.KVGet([]byte("test/record"), &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to exist")
	}
	if got.Name != "alpha" || got.Count != 7 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestKVGetMissing(t *testing.T) {
	manager := newTestManager(t)

	var out uint64
	ok, err := manager.KVGet([]byte("missing"), &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key")
	}

	has, err := manager.KVHas([]byte("missing"))
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if has {
		t.Fatalf("expected KVHas to report false")
	}
}

func TestKVEmptyKeyRejected(t *testing.T) {
	manager := newTestManager(t)
	if err := manager.KVPut(nil, uint64(1)); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := manager.KVGet(nil, nil); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestEnsureStateVersion(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })

	if err := EnsureStateVersion(db, false); err != nil {
		t.Fatalf("fresh database: %v", err)
	}
	manager := NewManager(db)
	version, ok, err := manager.StateVersion()
	if err != nil {
		t.Fatalf("state version: %v", err)
	}
	if !ok || version != StateVersion {
		t.Fatalf("expected stamped version %d, got %d (ok=%v)", StateVersion, version, ok)
	}

	if err := manager.SetStateVersion(StateVersion + 1); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if err := EnsureStateVersion(db, false); err == nil {
		t.Fatalf("expected mismatch error")
	}
	if err := EnsureStateVersion(db, true); err != nil {
		t.Fatalf("allowMigrate should tolerate mismatch: %v", err)
	}
}

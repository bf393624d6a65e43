package advisor

import (
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func TestMemoryStoreSetGetDelete(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	_, found, err := store.Get("missing")
	assertNoError(t, err, "Get missing")
	if found {
		t.Errorf("expected missing key")
	}

	assertNoError(t, store.Set("k", []byte("v"), 0), "Set")
	value, found, err := store.Get("k")
	assertNoError(t, err, "Get")
	if !found || string(value) != "v" {
		t.Errorf("expected v, got %q found=%v", value, found)
	}

	assertNoError(t, store.Delete("k"), "Delete")
	_, found, _ = store.Get("k")
	if found {
		t.Errorf("key should be gone after delete")
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	now, advance := frozenClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	store.(*memoryStore).now = now

	assertNoError(t, store.Set("k", []byte("v"), time.Minute), "Set with TTL")

	_, found, _ := store.Get("k")
	if !found {
		t.Fatalf("entry should be live inside its TTL")
	}

	advance(2 * time.Minute)
	_, found, _ = store.Get("k")
	if found {
		t.Errorf("entry should expire after its TTL")
	}
}

func TestMemoryStoreKeysByPrefix(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	for _, key := range []string{"rate:a", "rate:b", "breaker:a"} {
		assertNoError(t, store.Set(key, []byte("x"), 0), key)
	}

	keys, err := store.Keys("rate:")
	assertNoError(t, err, "Keys")
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "rate:a" || keys[1] != "rate:b" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	now, advance := frozenClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	store.(*memoryStore).now = now

	assertNoError(t, store.Set("short", []byte("x"), time.Minute), "short")
	assertNoError(t, store.Set("long", []byte("x"), time.Hour), "long")
	assertNoError(t, store.Set("forever", []byte("x"), 0), "forever")

	advance(10 * time.Minute)
	removed, err := store.Sweep(now())
	assertNoError(t, err, "Sweep")
	if removed != 1 {
		t.Errorf("expected 1 swept entry, got %d", removed)
	}

	keys, _ := store.Keys("")
	if len(keys) != 2 {
		t.Errorf("expected 2 surviving keys, got %v", keys)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(path)
	assertNoError(t, err, "open sqlite store")
	defer store.Close()

	assertNoError(t, store.Set("k", []byte("v"), 0), "Set")
	value, found, err := store.Get("k")
	assertNoError(t, err, "Get")
	if !found || string(value) != "v" {
		t.Errorf("expected v, got %q found=%v", value, found)
	}

	assertNoError(t, store.Set("k", []byte("v2"), 0), "overwrite")
	value, _, _ = store.Get("k")
	if string(value) != "v2" {
		t.Errorf("expected overwrite to win, got %q", value)
	}

	keys, err := store.Keys("")
	assertNoError(t, err, "Keys")
	if len(keys) != 1 || keys[0] != "k" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestSQLiteStoreTTLAndSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(path)
	assertNoError(t, err, "open sqlite store")
	defer store.Close()

	assertNoError(t, store.Set("expired", []byte("x"), time.Nanosecond), "Set expired")
	assertNoError(t, store.Set("live", []byte("x"), time.Hour), "Set live")
	time.Sleep(5 * time.Millisecond)

	_, found, err := store.Get("expired")
	assertNoError(t, err, "Get expired")
	if found {
		t.Errorf("expired entry should not be returned")
	}

	removed, err := store.Sweep(time.Now())
	assertNoError(t, err, "Sweep")
	if removed != 1 {
		t.Errorf("expected 1 swept row, got %d", removed)
	}

	_, found, _ = store.Get("live")
	if !found {
		t.Errorf("live entry should survive the sweep")
	}
}

package cache

import (
	"bytes"
	"testing"
	"time"
)

func newTestCache(t *testing.T, maxBytes int64, ttl time.Duration) *LRUCache {
	t.Helper()
	c, err := NewLRU(maxBytes, 100, ttl)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestLRUCache_SetAndGet(t *testing.T) {
	c := newTestCache(t, 1<<20, time.Minute)

	key := SnapshotKey("positions", 7, "json")
	value := []byte(`{"tick":7}`)
	c.Set(key, value, 0)

	got, found := c.Get(key)
	if !found {
		t.Fatal("Expected to find cached value")
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Expected %s, got %s", value, got)
	}
	if _, found := c.Get(SnapshotKey("positions", 8, "json")); found {
		t.Error("a different generation must miss")
	}
}

func TestLRUCache_Expiration(t *testing.T) {
	c := newTestCache(t, 1<<20, time.Minute)

	c.Set("expiring", []byte("value"), 50*time.Millisecond)
	if _, found := c.Get("expiring"); !found {
		t.Fatal("Expected to find value immediately after set")
	}
	time.Sleep(100 * time.Millisecond)
	if _, found := c.Get("expiring"); found {
		t.Error("Expected value to be expired")
	}
}

func TestLRUCache_DeleteAndClear(t *testing.T) {
	c := newTestCache(t, 1<<20, time.Minute)

	c.Set("a", []byte("1"), 0)
	c.Set("b", []byte("2"), 0)
	c.Delete("a")
	if _, found := c.Get("a"); found {
		t.Error("Expected deleted key to be gone")
	}
	c.Clear()
	if _, found := c.Get("b"); found {
		t.Error("Expected cleared cache to be empty")
	}
}

func TestLRUCache_OversizedValueIsDropped(t *testing.T) {
	c := newTestCache(t, 64, time.Minute)

	c.Set("big", make([]byte, 1024), 0)
	if _, found := c.Get("big"); found {
		t.Error("value larger than the budget should not be stored")
	}
}

func TestLRUCache_Stats(t *testing.T) {
	c := newTestCache(t, 1<<20, time.Minute)

	c.Set("k", []byte("value"), 0)
	c.Get("k")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("unexpected hits/misses: %+v", s)
	}
	if s.KeysAdded != 1 {
		t.Errorf("expected 1 key added, got %d", s.KeysAdded)
	}
	if s.Size != 5 {
		t.Errorf("expected size 5, got %d", s.Size)
	}
}

func TestSnapshotKey(t *testing.T) {
	if got := SnapshotKey("positions", 42, "br"); got != "positions:42:br" {
		t.Errorf("unexpected key %q", got)
	}
}

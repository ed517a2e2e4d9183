package bytecache

import (
	"bytes"
	"fmt"
	"testing"
)

func blob(size int, fill byte) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestGetSet(t *testing.T) {
	c := New(1024, nil)

	c.Set("a", []byte("hello"))

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("Get after Set returned not found")
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Get returned %q, want %q", got, "hello")
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Get of missing key returned found")
	}
}

func TestSetReplaceDoesNotDoubleCount(t *testing.T) {
	c := New(1024, nil)

	c.Set("a", blob(600, 'x'))
	c.Set("a", blob(600, 'y'))

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1", stats.Entries)
	}
	if stats.Bytes != 600 {
		t.Errorf("Bytes = %d, want 600 (replace must remove old size first)", stats.Bytes)
	}

	got, _ := c.Get("a")
	if got[0] != 'y' {
		t.Error("replace did not store new blob")
	}
}

func TestEvictionOrder(t *testing.T) {
	var evicted []string
	c := New(300, func(key string, blob []byte) {
		evicted = append(evicted, key)
	})

	c.Set("a", blob(100, 'a'))
	c.Set("b", blob(100, 'b'))
	c.Set("c", blob(100, 'c'))

	// Touch "a" so "b" becomes least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing before eviction")
	}

	c.Set("d", blob(100, 'd'))

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
	if !c.Has("a") || !c.Has("c") || !c.Has("d") {
		t.Error("expected a, c, d to survive eviction")
	}

	stats := c.Stats()
	if stats.Bytes > stats.Budget {
		t.Errorf("tracked bytes %d exceed budget %d", stats.Bytes, stats.Budget)
	}
}

func TestNeverExceedsBudget(t *testing.T) {
	c := New(1000, nil)

	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("key-%d", i), blob(128, byte(i)))
		if stats := c.Stats(); stats.Bytes > stats.Budget {
			t.Fatalf("after insert %d: tracked bytes %d exceed budget %d", i, stats.Bytes, stats.Budget)
		}
	}
}

func TestOversizedBlobRejected(t *testing.T) {
	c := New(100, nil)

	c.Set("small", blob(80, 's'))
	c.Set("huge", blob(200, 'h'))

	if c.Has("huge") {
		t.Error("oversized blob was inserted")
	}
	if !c.Has("small") {
		t.Error("oversized insert evicted existing entries")
	}
}

func TestHasDoesNotTouchRecency(t *testing.T) {
	c := New(200, nil)

	c.Set("a", blob(100, 'a'))
	c.Set("b", blob(100, 'b'))

	// Has must not promote "a"; the next insert should still evict it.
	if !c.Has("a") {
		t.Fatal("a missing")
	}

	c.Set("c", blob(100, 'c'))

	if c.Has("a") {
		t.Error("Has affected recency: a should have been evicted")
	}
	if !c.Has("b") {
		t.Error("b should have survived")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New(1024, nil)

	c.Set("a", blob(100, 'a'))
	c.Set("b", blob(100, 'b'))

	c.Delete("a")
	if c.Has("a") {
		t.Error("a present after Delete")
	}
	if got := c.Stats().Bytes; got != 100 {
		t.Errorf("Bytes after delete = %d, want 100", got)
	}

	c.Clear()
	stats := c.Stats()
	if stats.Entries != 0 || stats.Bytes != 0 {
		t.Errorf("after Clear: entries=%d bytes=%d, want 0/0", stats.Entries, stats.Bytes)
	}
}

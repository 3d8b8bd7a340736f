package embcache

import (
	"context"
	"errors"
	"testing"
)

func testCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	key := Key([]byte{0x01, 0x02, 0x03})
	if _, err := c.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	emb := []float32{0.1, -0.5, 0.9}
	if err := c.Put(ctx, key, emb); err != nil {
		t.Fatal(err)
	}

	got, err := c.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(emb) {
		t.Fatalf("got %d values, want %d", len(got), len(emb))
	}
	for i := range emb {
		if got[i] != emb[i] {
			t.Errorf("value %d: got %f, want %f", i, got[i], emb[i])
		}
	}

	// Mutating the returned slice must not affect the cached copy.
	got[0] = 42
	again, err := c.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if again[0] != emb[0] {
		t.Errorf("cache entry mutated through returned slice: %f", again[0])
	}
}

func TestMemory(t *testing.T) {
	c := NewMemory()
	defer c.Close()
	testCache(t, c)
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestBadgerInMemory(t *testing.T) {
	c, err := NewBadger(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	testCache(t, c)
}

func TestBadgerOnDisk(t *testing.T) {
	c, err := NewBadger(BadgerOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	testCache(t, c)
}

func TestBadgerRequiresDir(t *testing.T) {
	if _, err := NewBadger(BadgerOptions{}); err == nil {
		t.Error("expected error for missing dir")
	}
}

func TestKeyDeterministic(t *testing.T) {
	a := Key([]byte("audio"))
	b := Key([]byte("audio"))
	if a != b {
		t.Errorf("same input produced different keys: %s vs %s", a, b)
	}
	if a == Key([]byte("other")) {
		t.Error("different inputs produced the same key")
	}
}

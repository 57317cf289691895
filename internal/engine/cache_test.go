package engine

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestCacheKey(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		k1 := CacheKey("emb", "text-embedding-3-small", "golang developer")
		k2 := CacheKey("emb", "text-embedding-3-small", "golang developer")
		if k1 != k2 {
			t.Errorf("CacheKey not deterministic: %q != %q", k1, k2)
		}
	})

	t.Run("different inputs differ", func(t *testing.T) {
		k1 := CacheKey("emb", "golang")
		k2 := CacheKey("emb", "python")
		if k1 == k2 {
			t.Errorf("different inputs produced same key: %q", k1)
		}
	})

	t.Run("has prefix", func(t *testing.T) {
		k := CacheKey("test")
		if k[:3] != "gm:" {
			t.Errorf("expected gm: prefix, got %q", k[:3])
		}
	})
}

func newTestCache(t *testing.T, ttl time.Duration, maxEntries int) *Cache {
	t.Helper()
	c := NewCache("", ttl, maxEntries, 5*time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheGetSet(t *testing.T) {
	c := newTestCache(t, time.Minute, 100)
	ctx := context.Background()
	key := CacheKey("test", "round-trip")

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected cache miss on empty cache")
	}

	StoreJSON(ctx, c, key, []float32{0.25, 0.5})

	got, ok := LoadJSON[[]float32](ctx, c, key)
	if !ok {
		t.Fatal("expected cache hit after set")
	}
	if len(got) != 2 || got[1] != 0.5 {
		t.Errorf("got %v, want [0.25 0.5]", got)
	}
}

func TestCacheLoadJSONDecodeError(t *testing.T) {
	c := newTestCache(t, time.Minute, 100)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("not json"))

	if _, ok := LoadJSON[[]float32](ctx, c, "k"); ok {
		t.Error("expected miss on corrupt entry")
	}
}

func TestCacheExpiration(t *testing.T) {
	c := newTestCache(t, time.Millisecond, 100)
	ctx := context.Background()
	key := CacheKey("test", "expiry")

	c.Set(ctx, key, []byte("temp"))
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected cache miss after TTL expiry")
	}
}

func TestCacheEviction(t *testing.T) {
	c := newTestCache(t, time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Set(ctx, CacheKey("evict", fmt.Sprintf("item-%d", i)), []byte(fmt.Sprintf("v%d", i)))
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count > 3 {
		t.Errorf("expected at most 3 entries after eviction, got %d", count)
	}
}

func TestCacheStats(t *testing.T) {
	c := newTestCache(t, time.Minute, 100)
	ctx := context.Background()
	key := CacheKey("stats", "test")

	c.Get(ctx, key)
	if _, misses := c.Stats(); misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}

	c.Set(ctx, key, []byte("x"))
	c.Get(ctx, key)

	hits, misses := c.Stats()
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"))
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("nil cache must always miss")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on nil cache: %v", err)
	}
}

package store

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestMemoryStoreSetExGet(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	if err := kv.SetEx(ctx, "search:a:", `{"total":1}`, 500*time.Millisecond); err != nil {
		t.Fatalf("setex: %v", err)
	}
	got, err := kv.Get(ctx, "search:a:")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != `{"total":1}` {
		t.Fatalf("unexpected value %q", got)
	}

	var notFound ErrNotFound
	if _, err := kv.Get(ctx, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	if err := kv.SetEx(ctx, "key", "value", 10*time.Millisecond); err != nil {
		t.Fatalf("setex: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	var notFound ErrNotFound
	if _, err := kv.Get(ctx, "key"); !errors.As(err, &notFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryStoreIncrExpire(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := kv.Incr(ctx, "rl:1.2.3.4")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}

	if err := kv.Expire(ctx, "rl:1.2.3.4", 10*time.Millisecond); err != nil {
		t.Fatalf("expire: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	got, err := kv.Incr(ctx, "rl:1.2.3.4")
	if err != nil {
		t.Fatalf("incr after expiry: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected counter reset to 1, got %d", got)
	}
}

func TestMemoryStoreKeysDel(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	for _, key := range []string{"search:a:", "search:b:x", "rl:1.2.3.4"} {
		if err := kv.SetEx(ctx, key, "v", time.Minute); err != nil {
			t.Fatalf("setex %s: %v", key, err)
		}
	}

	keys, err := kv.Keys(ctx, "search:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "search:a:" || keys[1] != "search:b:x" {
		t.Fatalf("unexpected keys %v", keys)
	}

	removed, err := kv.Del(ctx, keys...)
	if err != nil {
		t.Fatalf("del: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	var notFound ErrNotFound
	if _, err := kv.Get(ctx, "search:a:"); !errors.As(err, &notFound) {
		t.Fatalf("expected delete to remove key, got %v", err)
	}
}

func TestMemoryStoreKeysGlob(t *testing.T) {
	kv := NewMemory()
	ctx := context.Background()

	seeded := []string{"search:tcp/ip networking:abc", "search:golang:def", "search:[caching]:x"}
	for _, key := range seeded {
		if err := kv.SetEx(ctx, key, "v", time.Minute); err != nil {
			t.Fatalf("setex %s: %v", key, err)
		}
	}

	keys, err := kv.Keys(ctx, "search:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	want := append([]string(nil), seeded...)
	sort.Strings(want)
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}

	keys, err = kv.Keys(ctx, "search:?olang:def")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "search:golang:def" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer srv.Close()

	kv, err := NewRedis(RedisConfig{Address: srv.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	ctx := context.Background()
	defer func() { _ = kv.Close(ctx) }()

	if err := kv.SetEx(ctx, "search:go:abc", `{"total":3}`, time.Minute); err != nil {
		t.Fatalf("setex: %v", err)
	}
	got, err := kv.Get(ctx, "search:go:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != `{"total":3}` {
		t.Fatalf("unexpected value %q", got)
	}

	var notFound ErrNotFound
	if _, err := kv.Get(ctx, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	count, err := kv.Incr(ctx, "rl:9.9.9.9")
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
	if err := kv.Expire(ctx, "rl:9.9.9.9", time.Minute); err != nil {
		t.Fatalf("expire: %v", err)
	}

	keys, err := kv.Keys(ctx, "search:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "search:go:abc" {
		t.Fatalf("unexpected keys %v", keys)
	}

	removed, err := kv.Del(ctx, keys...)
	if err != nil {
		t.Fatalf("del: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if err := kv.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer srv.Close()

	kv, err := NewRedis(RedisConfig{Address: srv.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	ctx := context.Background()
	defer func() { _ = kv.Close(ctx) }()

	if err := kv.SetEx(ctx, "key", "value", time.Second); err != nil {
		t.Fatalf("setex: %v", err)
	}
	srv.FastForward(2 * time.Second)

	var notFound ErrNotFound
	if _, err := kv.Get(ctx, "key"); !errors.As(err, &notFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

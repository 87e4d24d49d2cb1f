package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips when none is
// running. Integration tests use testcontainers instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func pageKey(offset string) CacheKey {
	return CacheKey{
		Source:      "gamma",
		Endpoint:    "/markets",
		QueryParams: url.Values{"limit": {"500"}, "offset": {offset}},
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Minute)
}

func TestManager_GetMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)

	_, err := manager.Get(context.Background(), pageKey("0"))
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_PutGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	body := []byte(`[{"id":"1"}]`)
	if err := manager.Put(ctx, pageKey("0"), body); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	entry, err := manager.Get(ctx, pageKey("0"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(entry.Data) != string(body) {
		t.Errorf("Data = %q, want %q", entry.Data, body)
	}

	ttl, err := client.TTL(ctx, pageKey("0").String()).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("redis TTL = %v, want (0, 1m]", ttl)
	}

	if _, err := manager.Get(ctx, pageKey("500")); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("other offset should miss, got %v", err)
	}
}

func TestManager_SetExpiredEntryNotStored(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	entry := &CacheEntry{Data: []byte(`[]`), Expires: time.Now().Add(-time.Second)}
	if err := manager.Set(ctx, pageKey("0"), entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	exists, _ := client.Exists(ctx, pageKey("0").String()).Result()
	if exists != 0 {
		t.Error("expired entry should not be stored")
	}
}

func TestManager_PutZeroTTLDisabled(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	if err := manager.Put(ctx, pageKey("0"), []byte(`[]`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := manager.Get(ctx, pageKey("0")); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	client.Set(ctx, pageKey("0").String(), "not json", time.Minute)

	if _, err := manager.Get(ctx, pageKey("0")); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Get() error = %v, want ErrInvalidEntry", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	_ = manager.Put(ctx, pageKey("0"), []byte(`[]`))
	if err := manager.Delete(ctx, pageKey("0")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := manager.Get(ctx, pageKey("0")); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after Delete error = %v, want ErrCacheMiss", err)
	}
}

package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/radiosync/internal/shared"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisBackendWithClient(client, "radiosync:")
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("Get missing key", func(t *testing.T) {
		_, backend := setupRedis(t)
		if _, err := backend.Get(ctx, DefaultKey); !errors.Is(err, shared.ErrCheckpointNotFound) {
			t.Errorf("expected ErrCheckpointNotFound, got %v", err)
		}
	})

	t.Run("Set uses prefix", func(t *testing.T) {
		mr, backend := setupRedis(t)
		if err := backend.Set(ctx, DefaultKey, "1700000000000"); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
		got, err := mr.Get("radiosync:" + DefaultKey)
		if err != nil || got != "1700000000000" {
			t.Errorf("expected prefixed key, got %q err=%v", got, err)
		}
		value, err := backend.Get(ctx, DefaultKey)
		if err != nil || value != "1700000000000" {
			t.Errorf("expected round trip, got %q err=%v", value, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		mr, backend := setupRedis(t)
		mr.Set("radiosync:"+DefaultKey, "1")
		if err := backend.Delete(ctx, DefaultKey); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if mr.Exists("radiosync:" + DefaultKey) {
			t.Error("expected key to be removed")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		_, backend := setupRedis(t)
		if err := backend.Ping(ctx); err != nil {
			t.Errorf("expected ping to succeed: %v", err)
		}
	})
}

func TestStoreSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	mr, backend := setupRedis(t)
	durable := time.UnixMilli(1_700_000_000_000)
	mr.Set("radiosync:"+DefaultKey, encode(durable))

	store := newTestStore(backend)
	if _, err := store.Resolve(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	observed := durable.Add(time.Hour)
	mr.SetError("ERR simulated outage")
	if _, err := store.Commit(ctx, observed); err == nil {
		t.Fatal("expected commit to fail while redis is down")
	}
	mr.SetError("")

	cp, err := store.Resolve(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cp.Repaired || !cp.Durable.Equal(observed) {
		t.Errorf("expected repair to %v, got %+v", observed, cp)
	}
	got, _ := mr.Get("radiosync:" + DefaultKey)
	if got != encode(observed) {
		t.Errorf("expected redis to hold repaired value, got %q", got)
	}
}

package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/radiosync/internal/repositories"
	"github.com/desertthunder/radiosync/internal/shared"
)

type mockBackend struct {
	values   map[string]string
	setErr   error
	getErr   error
	setCalls int
}

func newMockBackend() *mockBackend {
	return &mockBackend{values: map[string]string{}}
}

func (m *mockBackend) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", shared.ErrCheckpointNotFound, key)
	}
	return v, nil
}

func (m *mockBackend) Set(_ context.Context, key, value string) error {
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *mockBackend) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func newTestStore(b Backend) *Store {
	s := NewStore(b, nil, "", shared.NewLogger(&bytes.Buffer{}))
	s.now = func() time.Time { return time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC) }
	return s
}

func TestStoreResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("first run persists now", func(t *testing.T) {
		backend := newMockBackend()
		store := newTestStore(backend)

		cp, err := store.Resolve(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cp.FirstRun {
			t.Error("expected FirstRun")
		}
		if !cp.Durable.Equal(store.now()) {
			t.Errorf("expected durable %v, got %v", store.now(), cp.Durable)
		}
		if backend.values[DefaultKey] != encode(store.now()) {
			t.Errorf("expected now to be persisted, got %q", backend.values[DefaultKey])
		}
	})

	t.Run("durable only", func(t *testing.T) {
		backend := newMockBackend()
		durable := time.UnixMilli(1_700_000_000_000)
		backend.values[DefaultKey] = encode(durable)
		store := newTestStore(backend)

		cp, err := store.Resolve(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cp.FirstRun || cp.Repaired {
			t.Errorf("expected plain resolution, got %+v", cp)
		}
		if !cp.Durable.Equal(durable) {
			t.Errorf("expected %v, got %v", durable, cp.Durable)
		}
	})

	t.Run("newer transient repairs durable", func(t *testing.T) {
		backend := newMockBackend()
		durable := time.UnixMilli(1_700_000_000_000)
		transient := durable.Add(3 * time.Hour)
		backend.values[DefaultKey] = encode(durable)
		store := newTestStore(backend)
		store.local.Set(DefaultKey, encode(transient))

		cp, err := store.Resolve(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cp.Repaired {
			t.Error("expected Repaired")
		}
		if !cp.Durable.Equal(transient) {
			t.Errorf("expected repaired durable %v, got %v", transient, cp.Durable)
		}
		if backend.values[DefaultKey] != encode(transient) {
			t.Errorf("expected durable tier to hold transient, got %q", backend.values[DefaultKey])
		}
		if store.Transient() != nil {
			t.Error("expected transient to be cleared after repair")
		}
	})

	t.Run("older transient is ignored", func(t *testing.T) {
		backend := newMockBackend()
		durable := time.UnixMilli(1_700_000_000_000)
		backend.values[DefaultKey] = encode(durable)
		store := newTestStore(backend)
		store.local.Set(DefaultKey, encode(durable.Add(-time.Hour)))

		cp, err := store.Resolve(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cp.Repaired || !cp.Durable.Equal(durable) {
			t.Errorf("expected durable %v unchanged, got %+v", durable, cp)
		}
	})

	t.Run("malformed durable is treated as absent", func(t *testing.T) {
		backend := newMockBackend()
		backend.values[DefaultKey] = "not-a-number"
		store := newTestStore(backend)

		cp, err := store.Resolve(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cp.FirstRun {
			t.Error("expected FirstRun for malformed value")
		}
	})
}

func TestStoreGetFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	backend := newMockBackend()
	store := newTestStore(backend)
	ts := time.UnixMilli(1_700_000_000_000)
	store.local.Set(DefaultKey, encode(ts))
	backend.getErr = errors.New("connection refused")

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("expected local fallback, got %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, got)
	}

	store.ClearTransient()
	if _, err := store.Get(ctx); err == nil {
		t.Error("expected error when both tiers are empty")
	}
}

func TestStoreCommit(t *testing.T) {
	ctx := context.Background()
	durable := time.UnixMilli(1_700_000_000_000)

	t.Run("advances on newer value", func(t *testing.T) {
		backend := newMockBackend()
		backend.values[DefaultKey] = encode(durable)
		store := newTestStore(backend)

		wrote, err := store.Commit(ctx, durable.Add(time.Minute))
		if err != nil || !wrote {
			t.Fatalf("expected write, got wrote=%v err=%v", wrote, err)
		}
		got, _ := store.Get(ctx)
		if !got.Equal(durable.Add(time.Minute)) {
			t.Errorf("expected advanced watermark, got %v", got)
		}
	})

	t.Run("never moves backwards", func(t *testing.T) {
		backend := newMockBackend()
		backend.values[DefaultKey] = encode(durable)
		store := newTestStore(backend)

		for _, observed := range []time.Time{durable, durable.Add(-time.Hour), {}} {
			wrote, err := store.Commit(ctx, observed)
			if err != nil || wrote {
				t.Errorf("Commit(%v) = %v, %v; want no write", observed, wrote, err)
			}
		}
		if backend.setCalls != 0 {
			t.Errorf("expected no durable writes, got %d", backend.setCalls)
		}
	})

	t.Run("failed durable write repairs on next resolve", func(t *testing.T) {
		backend := newMockBackend()
		backend.values[DefaultKey] = encode(durable)
		store := newTestStore(backend)
		observed := durable.Add(2 * time.Hour)

		backend.setErr = errors.New("write timeout")
		if _, err := store.Commit(ctx, observed); err == nil {
			t.Fatal("expected commit error")
		}
		backend.setErr = nil

		cp, err := store.Resolve(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cp.Repaired || !cp.Durable.Equal(observed) {
			t.Errorf("expected repair to %v, got %+v", observed, cp)
		}
	})
}

func TestStoreWithSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	db, err := shared.OpenMigrated(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	store := newTestStore(repositories.NewCheckpointRepository(db))

	cp, err := store.Resolve(ctx)
	if err != nil || !cp.FirstRun {
		t.Fatalf("expected first run, got %+v err=%v", cp, err)
	}

	next := cp.Durable.Add(90 * time.Minute)
	if _, err := store.Commit(ctx, next); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	reopened := newTestStore(repositories.NewCheckpointRepository(db))
	cp, err = reopened.Resolve(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.FirstRun || !cp.Durable.Equal(next) {
		t.Errorf("expected persisted %v, got %+v", next, cp)
	}

	if err := reopened.Clear(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	if _, err := reopened.Get(ctx); !errors.Is(err, shared.ErrCheckpointNotFound) {
		t.Errorf("expected ErrCheckpointNotFound after clear, got %v", err)
	}
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenMigrated(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func lowerKey(artist, title string) string {
	return strings.ToLower(artist) + "|" + strings.ToLower(title)
}

func TestCheckpointRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Get missing key", func(t *testing.T) {
		repo := NewCheckpointRepository(setupTestDB(t))

		_, err := repo.Get(ctx, "last-update")
		if !errors.Is(err, shared.ErrCheckpointNotFound) {
			t.Errorf("expected ErrCheckpointNotFound, got %v", err)
		}
	})

	t.Run("Set & Get", func(t *testing.T) {
		repo := NewCheckpointRepository(setupTestDB(t))

		if err := repo.Set(ctx, "last-update", "1700000000000"); err != nil {
			t.Fatalf("failed to set checkpoint: %v", err)
		}
		if err := repo.Set(ctx, "last-update", "1700000060000"); err != nil {
			t.Fatalf("failed to overwrite checkpoint: %v", err)
		}

		value, err := repo.Get(ctx, "last-update")
		if err != nil {
			t.Fatalf("failed to get checkpoint: %v", err)
		}
		if value != "1700000060000" {
			t.Errorf("expected overwritten value, got %s", value)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewCheckpointRepository(setupTestDB(t))

		if err := repo.Set(ctx, "k", "v"); err != nil {
			t.Fatalf("failed to set checkpoint: %v", err)
		}
		if err := repo.Delete(ctx, "k"); err != nil {
			t.Fatalf("failed to delete checkpoint: %v", err)
		}
		if err := repo.Delete(ctx, "k"); err != nil {
			t.Errorf("deleting a missing key should not fail: %v", err)
		}
		if _, err := repo.Get(ctx, "k"); !errors.Is(err, shared.ErrCheckpointNotFound) {
			t.Errorf("expected ErrCheckpointNotFound after delete, got %v", err)
		}
	})
}

func TestTrackRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create & Get", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))
		track := &CachedResolution{
			Service:   "spotify",
			LookupKey: "daft punk|one more time",
			Artist:    "Daft Punk",
			Title:     "One More Time",
			ServiceID: "0DiWol3AO6WpXZgp0goxAV",
		}

		if err := repo.Create(ctx, track); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}
		if track.ID == "" {
			t.Error("track ID should be set after creation")
		}
		if track.Sequence != 1 {
			t.Errorf("expected sequence 1, got %d", track.Sequence)
		}

		retrieved, err := repo.Get(ctx, track.ID)
		if err != nil {
			t.Fatalf("failed to get track: %v", err)
		}
		if retrieved.ServiceID != track.ServiceID {
			t.Errorf("expected service id %s, got %s", track.ServiceID, retrieved.ServiceID)
		}
		if retrieved.DeletedAt != nil {
			t.Error("new track should not be deleted")
		}
	})

	t.Run("Validation", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))

		err := repo.Create(ctx, &CachedResolution{Service: "spotify", LookupKey: "k"})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("GetByLookupKey ignores deleted rows", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))
		track := &CachedResolution{Service: "spotify", LookupKey: "a|b", ServiceID: "id1"}
		if err := repo.Create(ctx, track); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}

		if _, err := repo.GetByLookupKey(ctx, "spotify", "a|b"); err != nil {
			t.Fatalf("expected live row, got %v", err)
		}
		if _, err := repo.GetByLookupKey(ctx, "deezer", "a|b"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("lookup should be scoped by service, got %v", err)
		}

		if err := repo.Delete(ctx, track.ID); err != nil {
			t.Fatalf("failed to delete track: %v", err)
		}
		if err := repo.Delete(ctx, track.ID); err == nil {
			t.Error("expected error deleting an already deleted track")
		}
		if _, err := repo.GetByLookupKey(ctx, "spotify", "a|b"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}

		replacement := &CachedResolution{Service: "spotify", LookupKey: "a|b", ServiceID: "id2"}
		if err := repo.Create(ctx, replacement); err != nil {
			t.Fatalf("recreating a deleted key should succeed: %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewTrackRepository(setupTestDB(t))
		for _, key := range []string{"k1", "k2", "k3"} {
			if err := repo.Create(ctx, &CachedResolution{Service: "spotify", LookupKey: key, ServiceID: "id-" + key}); err != nil {
				t.Fatalf("failed to create track: %v", err)
			}
		}

		all, err := repo.List(ctx, map[string]any{"service": "spotify"})
		if err != nil {
			t.Fatalf("failed to list tracks: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 tracks, got %d", len(all))
		}
		for i, track := range all {
			if track.Sequence != i+1 {
				t.Errorf("expected ordered sequences, got %d at %d", track.Sequence, i)
			}
		}

		filtered, err := repo.List(ctx, map[string]any{"service_id": "id-k2"})
		if err != nil {
			t.Fatalf("failed to list tracks: %v", err)
		}
		if len(filtered) != 1 || filtered[0].LookupKey != "k2" {
			t.Errorf("expected only k2, got %+v", filtered)
		}
	})
}

func TestResolutionCache(t *testing.T) {
	ctx := context.Background()
	repo := NewTrackRepository(setupTestDB(t))
	repo.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	cache := NewResolutionCache(repo, "spotify", lowerKey)

	if _, ok, err := cache.Lookup(ctx, "Air", "Playground Love"); err != nil || ok {
		t.Fatalf("expected miss on empty cache, got ok=%v err=%v", ok, err)
	}

	if err := cache.Store(ctx, models.ResolvedTrack{Artist: "Air", Title: "Playground Love"}); err != nil {
		t.Fatalf("storing a miss should be a no-op: %v", err)
	}
	if _, ok, _ := cache.Lookup(ctx, "Air", "Playground Love"); ok {
		t.Error("misses must not be cached")
	}

	if err := cache.Store(ctx, models.ResolvedTrack{Artist: "Air", Title: "Playground Love", DestinationID: "first"}); err != nil {
		t.Fatalf("failed to store resolution: %v", err)
	}
	id, ok, err := cache.Lookup(ctx, "AIR", "playground love")
	if err != nil || !ok || id != "first" {
		t.Errorf("expected cached id first, got %q ok=%v err=%v", id, ok, err)
	}

	if err := cache.Store(ctx, models.ResolvedTrack{Artist: "Air", Title: "Playground Love", DestinationID: "second"}); err != nil {
		t.Fatalf("failed to replace resolution: %v", err)
	}
	id, _, _ = cache.Lookup(ctx, "Air", "Playground Love")
	if id != "second" {
		t.Errorf("expected replaced id second, got %q", id)
	}

	t.Run("Forget", func(t *testing.T) {
		forgot, err := cache.Forget(ctx, "air", "PLAYGROUND LOVE")
		if err != nil || !forgot {
			t.Fatalf("expected entry to be forgotten, got %v err=%v", forgot, err)
		}
		if _, ok, _ := cache.Lookup(ctx, "Air", "Playground Love"); ok {
			t.Error("expected forgotten entry to miss")
		}

		forgot, err = cache.Forget(ctx, "Air", "Playground Love")
		if err != nil || forgot {
			t.Errorf("expected nothing left to forget, got %v err=%v", forgot, err)
		}

		if err := cache.Store(ctx, models.ResolvedTrack{Artist: "Air", Title: "Playground Love", DestinationID: "third"}); err != nil {
			t.Fatalf("failed to store after forget: %v", err)
		}
		if id, ok, _ := cache.Lookup(ctx, "Air", "Playground Love"); !ok || id != "third" {
			t.Errorf("expected re-stored id third, got %q ok=%v", id, ok)
		}
	})
}

func TestNextSequence(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(ctx, db, "resolved_tracks")
		if err != nil {
			t.Fatalf("failed to get next sequence: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(ctx, db, "missing"); err == nil {
		t.Error("expected error for unknown sequence table")
	}
}

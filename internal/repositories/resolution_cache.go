package repositories

import (
	"context"
	"errors"

	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/shared"
)

// KeyFunc builds the lookup key of an artist/title pair.
type KeyFunc func(artist, title string) string

// ResolutionCache adapts [TrackRepository] to the resolver's cache contract
// for a single destination service.
type ResolutionCache struct {
	repo    *TrackRepository
	service string
	key     KeyFunc
}

// NewResolutionCache creates a cache scoped to service.
func NewResolutionCache(repo *TrackRepository, service string, key KeyFunc) *ResolutionCache {
	return &ResolutionCache{repo: repo, service: service, key: key}
}

// Lookup returns the cached destination id for artist/title.
func (c *ResolutionCache) Lookup(ctx context.Context, artist, title string) (string, bool, error) {
	cached, err := c.repo.GetByLookupKey(ctx, c.service, c.key(artist, title))
	if errors.Is(err, shared.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return cached.ServiceID, true, nil
}

// Store records a successful resolution. Misses are never cached.
func (c *ResolutionCache) Store(ctx context.Context, track models.ResolvedTrack) error {
	if track.DestinationID == "" {
		return nil
	}

	key := c.key(track.Artist, track.Title)
	existing, err := c.repo.GetByLookupKey(ctx, c.service, key)
	switch {
	case err == nil && existing.ServiceID == track.DestinationID:
		return nil
	case err == nil:
		if err := c.repo.Delete(ctx, existing.ID); err != nil {
			return err
		}
	case !errors.Is(err, shared.ErrNotFound):
		return err
	}

	return c.repo.Create(ctx, &CachedResolution{
		Service:   c.service,
		LookupKey: key,
		Artist:    track.Artist,
		Title:     track.Title,
		ServiceID: track.DestinationID,
	})
}

// Forget evicts the cached resolution for artist/title, reporting whether one existed.
func (c *ResolutionCache) Forget(ctx context.Context, artist, title string) (bool, error) {
	cached, err := c.repo.GetByLookupKey(ctx, c.service, c.key(artist, title))
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := c.repo.Delete(ctx, cached.ID); err != nil {
		return false, err
	}
	return true, nil
}

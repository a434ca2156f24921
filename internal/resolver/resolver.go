package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/retry"
	"github.com/desertthunder/radiosync/internal/services"
	"github.com/desertthunder/radiosync/internal/shared"
)

// Searcher is the slice of [services.Destination] the resolver needs.
type Searcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]services.Candidate, error)
}

// Cache remembers successful resolutions. Implemented by repositories.ResolutionCache.
type Cache interface {
	Lookup(ctx context.Context, artist, title string) (string, bool, error)
	Store(ctx context.Context, track models.ResolvedTrack) error
}

// Options tunes matching.
type Options struct {
	Threshold   float64 // both scores must be strictly below it
	Delimiter   string  // separates performers in the artist field
	SearchLimit int     // candidates requested per query
	Retry       retry.Config
}

// DefaultOptions mirrors the defaults shipped in config.example.toml.
func DefaultOptions() Options {
	return Options{Threshold: 0.4, Delimiter: "/", SearchLimit: 3, Retry: retry.DefaultConfig()}
}

// OptionsFromConfig builds [Options] from the matching and sync sections.
func OptionsFromConfig(cfg *shared.Config) Options {
	opts := DefaultOptions()
	if cfg.Matching.Threshold > 0 {
		opts.Threshold = cfg.Matching.Threshold
	}
	if cfg.Matching.ArtistDelimiter != "" {
		opts.Delimiter = cfg.Matching.ArtistDelimiter
	}
	if cfg.Matching.SearchLimit > 0 {
		opts.SearchLimit = cfg.Matching.SearchLimit
	}
	if cfg.Sync.RetryAttempts > 0 {
		opts.Retry.Attempts = cfg.Sync.RetryAttempts
	}
	if cfg.Sync.RetryDelay.Duration > 0 {
		opts.Retry.Delay = cfg.Sync.RetryDelay.Duration
	}
	return opts
}

// Resolver maps [models.Track] values to destination ids.
type Resolver struct {
	dest   Searcher
	cache  Cache
	opts   Options
	logger *log.Logger
}

// New creates a Resolver. cache may be nil.
func New(search Searcher, cache Cache, opts Options, logger *log.Logger) *Resolver {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 3
	}
	if opts.Delimiter == "" {
		opts.Delimiter = "/"
	}
	return &Resolver{dest: search, cache: cache, opts: opts, logger: logger}
}

// Result is the outcome of [Resolver.ResolveAll].
type Result struct {
	Tracks []models.ResolvedTrack // resolved tracks, in input order
	Misses []models.Track
	Cached int // resolutions served from the cache
	Direct int // resolutions taken from an embedded id
}

// IDs returns the destination ids of the resolved tracks, in order.
func (r Result) IDs() []string {
	ids := make([]string, 0, len(r.Tracks))
	for _, t := range r.Tracks {
		ids = append(ids, t.DestinationID)
	}
	return ids
}

// Resolve returns the destination id of track.
//
// A track with no acceptable candidate returns [shared.ErrResolutionMiss];
// callers drop it and carry on. Any other error is a destination failure.
func (r *Resolver) Resolve(ctx context.Context, track models.Track) (models.ResolvedTrack, error) {
	resolved, _, err := r.resolve(ctx, track)
	return resolved, err
}

type source int

const (
	fromSearch source = iota
	fromEmbedded
	fromCache
)

func (r *Resolver) resolve(ctx context.Context, track models.Track) (models.ResolvedTrack, source, error) {
	resolved := models.ResolvedTrack{Artist: track.Artist, Title: track.Title}
	if track.SpotifyID != "" {
		resolved.DestinationID = track.SpotifyID
		return resolved, fromEmbedded, nil
	}

	if r.cache != nil {
		id, ok, err := r.cache.Lookup(ctx, track.Artist, track.Title)
		if err != nil {
			r.logger.Warn("cache_lookup", "reason", "lookup_failed", "track", track.String(), "err", err)
		} else if ok {
			resolved.DestinationID = id
			return resolved, fromCache, nil
		}
	}

	id, err := r.search(ctx, track)
	if err != nil {
		return resolved, fromSearch, err
	}
	resolved.DestinationID = id

	if r.cache != nil {
		if err := r.cache.Store(ctx, resolved); err != nil {
			r.logger.Warn("cache_store", "reason", "store_failed", "track", track.String(), "err", err)
		}
	}
	return resolved, fromSearch, nil
}

func (r *Resolver) search(ctx context.Context, track models.Track) (string, error) {
	title := NormalizeTitle(track.Title)
	performers := r.performers(track.Artist)
	if title == "" || len(performers) == 0 {
		return "", fmt.Errorf("%w: %s", shared.ErrResolutionMiss, track)
	}

	for _, person := range performers {
		queries := []string{
			fmt.Sprintf("track:%s artist:%s", title, person),
			fmt.Sprintf("%s %s", title, person),
		}
		for _, query := range queries {
			candidates, err := r.query(ctx, query)
			if err != nil {
				return "", err
			}
			for _, c := range candidates {
				if r.match(track, title, performers, c) {
					return c.ID, nil
				}
			}
		}
	}

	r.logger.Info("search_tracks", "reason", "no_match", "artist", track.Artist, "title", track.Title)
	return "", fmt.Errorf("%w: %s", shared.ErrResolutionMiss, track)
}

func (r *Resolver) query(ctx context.Context, q string) ([]services.Candidate, error) {
	cfg := r.opts.Retry
	cfg.OnRetry = func(attempt int, err error) {
		r.logger.Warn("search_tracks", "reason", "retry", "query", q, "attempt", attempt, "err", err)
	}

	var candidates []services.Candidate
	err := retry.Do(ctx, cfg, services.IsTransient, func(ctx context.Context) error {
		var err error
		candidates, err = r.dest.SearchTracks(ctx, q, r.opts.SearchLimit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}
	return candidates, nil
}

// match scores a candidate: the title against the aired title, and the best
// pairing of aired performers against candidate artists.
func (r *Resolver) match(track models.Track, title string, performers []string, c services.Candidate) bool {
	artists := make([]string, 0, len(c.Artists))
	for _, a := range c.Artists {
		if n := NormalizeName(a); n != "" {
			artists = append(artists, n)
		}
	}

	titleScore := Score(title, NormalizeTitle(c.Title))
	artistScore := BestScore(performers, artists)

	r.logger.Debug("match_track_score",
		"track", track.String(),
		"candidate", fmt.Sprintf("%s - %s", strings.Join(c.Artists, ", "), c.Title),
		"title_score", titleScore,
		"artist_score", artistScore,
	)
	return titleScore < r.opts.Threshold && artistScore < r.opts.Threshold
}

func (r *Resolver) performers(artist string) []string {
	var out []string
	for _, p := range strings.Split(artist, r.opts.Delimiter) {
		if n := NormalizeName(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ResolveAll resolves tracks in order. Misses are collected and skipped; the
// first destination failure aborts.
func (r *Resolver) ResolveAll(ctx context.Context, tracks []models.Track) (Result, error) {
	var result Result
	for _, track := range tracks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		resolved, src, err := r.resolve(ctx, track)
		switch {
		case errors.Is(err, shared.ErrResolutionMiss):
			result.Misses = append(result.Misses, track)
			continue
		case err != nil:
			return result, fmt.Errorf("resolve %s: %w", track, err)
		}

		switch src {
		case fromCache:
			result.Cached++
		case fromEmbedded:
			result.Direct++
		}
		result.Tracks = append(result.Tracks, resolved)
	}

	r.logger.Info("resolve_tracks", "resolved", len(result.Tracks), "misses", len(result.Misses), "cached", result.Cached)
	return result, nil
}

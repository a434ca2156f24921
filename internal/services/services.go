package services

import (
	"context"
	"strings"
)

// MaxBatchSize is the largest number of ids one add or remove call accepts.
const MaxBatchSize = 100

// Destination is the media service hosting the managed playlist.
type Destination interface {
	// SearchTracks runs a catalog search and returns at most limit candidates.
	SearchTracks(ctx context.Context, query string, limit int) ([]Candidate, error)

	// PlaylistPage reads one page of the playlist's track ids.
	PlaylistPage(ctx context.Context, playlistID string, offset, limit int) (*PlaylistPage, error)

	// AddItems inserts ids at position, keeping their order, and returns the new snapshot id.
	AddItems(ctx context.Context, playlistID string, ids []string, position int) (string, error)

	// RemoveItems removes every occurrence of ids and returns the new snapshot id.
	RemoveItems(ctx context.Context, playlistID string, ids []string) (string, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// Candidate is one search result.
type Candidate struct {
	ID      string
	Title   string
	Artists []string
}

// PlaylistPage is one page of a playlist listing.
// NextOffset is nil on the last page.
type PlaylistPage struct {
	IDs        []string
	Total      int
	NextOffset *int
}

// TrackURI builds the track reference used in add/remove batches.
func TrackURI(id string) string {
	return "spotify:track:" + id
}

// TrackIDFromURI is the inverse of [TrackURI]. Non-track URIs return "".
func TrackIDFromURI(uri string) string {
	id, found := strings.CutPrefix(uri, "spotify:track:")
	if !found {
		return ""
	}
	return id
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/radiosync/internal/shared"
)

// CachedResolution is a persisted artist/title to destination id mapping.
type CachedResolution struct {
	ID        string
	Sequence  int
	Service   string
	LookupKey string
	Artist    string
	Title     string
	ServiceID string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Validate checks required fields.
func (c *CachedResolution) Validate() error {
	switch {
	case c.Service == "":
		return fmt.Errorf("%w: service is required", shared.ErrInvalidInput)
	case c.LookupKey == "":
		return fmt.Errorf("%w: lookup key is required", shared.ErrInvalidInput)
	case c.ServiceID == "":
		return fmt.Errorf("%w: service id is required", shared.ErrInvalidInput)
	}
	return nil
}

// TrackRepository persists resolved tracks so repeated airings skip search.
//
// Rows are soft-deleted; lookups ignore deleted rows.
type TrackRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db, now: time.Now}
}

const trackColumns = `id, sequence, service, lookup_key, artist, title, service_id, created_at, updated_at, deleted_at`

// Create inserts a new [CachedResolution] with generated ID and sequence.
//
// A soft-deleted row with the same service and lookup key is replaced.
func (r *TrackRepository) Create(ctx context.Context, track *CachedResolution) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "resolved_tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := r.now().UTC()
	track.ID = shared.GenerateID()
	track.Sequence = sequence
	track.CreatedAt = now
	track.UpdatedAt = now
	track.DeletedAt = nil

	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM resolved_tracks WHERE service = ? AND lookup_key = ? AND deleted_at IS NOT NULL",
		track.Service, track.LookupKey,
	); err != nil {
		return fmt.Errorf("failed to clear deleted track: %w", err)
	}

	query := `
		INSERT INTO resolved_tracks (` + trackColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err = r.db.ExecContext(ctx, query,
		track.ID, track.Sequence, track.Service, track.LookupKey,
		track.Artist, track.Title, track.ServiceID, track.CreatedAt, track.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}
	return nil
}

// Get retrieves a resolution by ID, excluding soft-deleted rows.
func (r *TrackRepository) Get(ctx context.Context, id string) (*CachedResolution, error) {
	query := `SELECT ` + trackColumns + ` FROM resolved_tracks WHERE id = ? AND deleted_at IS NULL`
	return scanTrack(r.db.QueryRowContext(ctx, query, id))
}

// GetByLookupKey retrieves the live resolution for a service and normalized key.
func (r *TrackRepository) GetByLookupKey(ctx context.Context, service, key string) (*CachedResolution, error) {
	query := `SELECT ` + trackColumns + ` FROM resolved_tracks
		WHERE service = ? AND lookup_key = ? AND deleted_at IS NULL`
	return scanTrack(r.db.QueryRowContext(ctx, query, service, key))
}

// Delete soft-deletes a resolution by ID.
func (r *TrackRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE resolved_tracks SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		r.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("track not found or already deleted: %s", id)
	}
	return nil
}

// List retrieves live resolutions matching criteria ("service", "service_id"), ordered by sequence.
func (r *TrackRepository) List(ctx context.Context, criteria map[string]any) ([]*CachedResolution, error) {
	query := `SELECT ` + trackColumns + ` FROM resolved_tracks WHERE deleted_at IS NULL`
	args := []any{}

	if service, ok := criteria["service"].(string); ok && service != "" {
		query += " AND service = ?"
		args = append(args, service)
	}
	if serviceID, ok := criteria["service_id"].(string); ok && serviceID != "" {
		query += " AND service_id = ?"
		args = append(args, serviceID)
	}
	query += " ORDER BY sequence ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*CachedResolution
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (*CachedResolution, error) {
	var (
		track     CachedResolution
		deletedAt sql.NullTime
	)

	err := row.Scan(
		&track.ID, &track.Sequence, &track.Service, &track.LookupKey, &track.Artist,
		&track.Title, &track.ServiceID, &track.CreatedAt, &track.UpdatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: track", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	if deletedAt.Valid {
		track.DeletedAt = &deletedAt.Time
	}
	return &track, nil
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/radiosync/internal/shared"
)

// CheckpointRepository stores checkpoint values by key in the checkpoints table.
//
// It is the durable tier behind checkpoint.Store.
type CheckpointRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewCheckpointRepository creates a new CheckpointRepository with the given database connection
func NewCheckpointRepository(db *sql.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db, now: time.Now}
}

// Get returns the value stored under key, or [shared.ErrCheckpointNotFound].
func (r *CheckpointRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM checkpoints WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", shared.ErrCheckpointNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint %s: %w", key, err)
	}
	return value, nil
}

// Set inserts or replaces the value stored under key.
func (r *CheckpointRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO checkpoints (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value, r.now().UTC()); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *CheckpointRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", key, err)
	}
	return nil
}

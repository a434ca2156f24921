// Package repositories implements SQLite persistence for the synchronization job.
//
// Key Implementations:
//   - [CheckpointRepository] : durable key/value tier of the checkpoint store
//   - [TrackRepository] : resolution cache mapping normalized artist/title pairs to destination ids
//
// Tracks carry a sequence number for stable, human-readable ordering,
// generated by [NextSequence] from a per-table sequence table, and are
// soft-deleted via deleted_at so evicted resolutions stay auditable.
package repositories

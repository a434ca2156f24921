package tasks

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/retry"
	"github.com/desertthunder/radiosync/internal/services"
	"github.com/desertthunder/radiosync/internal/shared"
)

// ReconcileOptions controls destination paging and batching.
type ReconcileOptions struct {
	BatchSize int // ids per add/remove call, at most [services.MaxBatchSize]
	PageSize  int // items per playlist page
	Retry     retry.Config
}

// DefaultReconcileOptions returns 100-item pages and batches with the default retry policy.
func DefaultReconcileOptions() ReconcileOptions {
	return ReconcileOptions{
		BatchSize: services.MaxBatchSize,
		PageSize:  services.MaxBatchSize,
		Retry:     retry.DefaultConfig(),
	}
}

// ReconcileOptionsFromConfig builds [ReconcileOptions] from the sync section.
func ReconcileOptionsFromConfig(cfg shared.SyncConfig) ReconcileOptions {
	opts := DefaultReconcileOptions()
	if cfg.BatchSize > 0 {
		opts.BatchSize = cfg.BatchSize
	}
	if cfg.PageSize > 0 {
		opts.PageSize = cfg.PageSize
	}
	if cfg.RetryAttempts > 0 {
		opts.Retry.Attempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay.Duration > 0 {
		opts.Retry.Delay = cfg.RetryDelay.Duration
	}
	return opts
}

// ApplyResult summarizes the destination writes of one reconciliation.
type ApplyResult struct {
	Plan          models.ReconciliationPlan
	Removed       int
	Inserted      int
	RemoveBatches int
	InsertBatches int
	SnapshotID    string // destination revision after the last write
}

// Reconciler makes the managed playlist start with a desired id sequence.
//
// It keeps the last observed snapshot in memory so a later run in the same
// process skips refetching. Not safe for concurrent use.
type Reconciler struct {
	dest       services.Destination
	playlistID string
	opts       ReconcileOptions
	logger     *log.Logger
	snapshot   *models.PlaylistSnapshot
}

// NewReconciler creates a Reconciler for playlistID.
func NewReconciler(dest services.Destination, playlistID string, opts ReconcileOptions, logger *log.Logger) *Reconciler {
	if opts.BatchSize <= 0 || opts.BatchSize > services.MaxBatchSize {
		opts.BatchSize = services.MaxBatchSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = services.MaxBatchSize
	}
	return &Reconciler{dest: dest, playlistID: playlistID, opts: opts, logger: logger}
}

// Snapshot returns the cached snapshot, fetching it on first use.
func (r *Reconciler) Snapshot(ctx context.Context) (models.PlaylistSnapshot, error) {
	if r.snapshot != nil {
		return *r.snapshot, nil
	}
	return r.FetchSnapshot(ctx)
}

// Invalidate drops the cached snapshot.
func (r *Reconciler) Invalidate() {
	r.snapshot = nil
}

// FetchSnapshot reads the whole playlist by following page offsets and caches it.
//
// A count that disagrees with the reported total is logged, not returned.
func (r *Reconciler) FetchSnapshot(ctx context.Context) (models.PlaylistSnapshot, error) {
	var snapshot models.PlaylistSnapshot
	offset := 0
	for {
		var page *services.PlaylistPage
		err := r.withRetry(ctx, "fetch_playlist", func(ctx context.Context) error {
			var err error
			page, err = r.dest.PlaylistPage(ctx, r.playlistID, offset, r.opts.PageSize)
			return err
		})
		if err != nil {
			return models.PlaylistSnapshot{}, fmt.Errorf("fetch playlist %s at offset %d: %w", r.playlistID, offset, err)
		}

		snapshot.IDs = append(snapshot.IDs, page.IDs...)
		snapshot.ExpectedTotal = page.Total
		if page.NextOffset == nil || *page.NextOffset <= offset {
			break
		}
		offset = *page.NextOffset
	}

	if !snapshot.Complete() {
		r.logger.Warn("fetch_playlist", "reason", "count_mismatch", "expected", snapshot.ExpectedTotal, "fetched", len(snapshot.IDs))
	} else {
		r.logger.Info("fetch_playlist", "expected", snapshot.ExpectedTotal, "fetched", len(snapshot.IDs))
	}

	r.snapshot = &snapshot
	return snapshot, nil
}

// Plan computes the writes that bring desired to the front of snapshot.
//
// Duplicate desired ids keep their first position. Every desired id already
// on the playlist is removed and reinserted, since the destination cannot
// move items. A snapshot that already starts with desired yields an empty plan.
func Plan(desired []string, snapshot models.PlaylistSnapshot) models.ReconciliationPlan {
	desired = unique(desired)
	if len(desired) == 0 {
		return models.ReconciliationPlan{}
	}
	if len(snapshot.IDs) >= len(desired) && slices.Equal(snapshot.IDs[:len(desired)], desired) {
		return models.ReconciliationPlan{}
	}

	present := make(map[string]bool, len(snapshot.IDs))
	for _, id := range snapshot.IDs {
		present[id] = true
	}

	plan := models.ReconciliationPlan{ToInsertOrdered: desired}
	for _, id := range desired {
		if present[id] {
			plan.ToRemove = append(plan.ToRemove, id)
		}
	}
	return plan
}

// Apply removes plan.ToRemove then inserts plan.ToInsertOrdered at position 0.
//
// Insert batches are sent last chunk first, each at position 0, so the
// playlist ends up in plan order. On success the cached snapshot becomes the
// inserted ids followed by the untouched remainder; on failure it is dropped.
func (r *Reconciler) Apply(ctx context.Context, plan models.ReconciliationPlan, progress chan<- ProgressUpdate) (ApplyResult, error) {
	result := ApplyResult{Plan: plan}
	if plan.Empty() {
		r.logger.Info("upload_tracks", "reason", "up_to_date")
		return result, nil
	}

	removals := Chunk(plan.ToRemove, r.opts.BatchSize)
	for i, batch := range removals {
		var snapshotID string
		err := r.withRetry(ctx, "remove_batch", func(ctx context.Context) error {
			var err error
			snapshotID, err = r.dest.RemoveItems(ctx, r.playlistID, batch)
			return err
		})
		if err != nil {
			r.Invalidate()
			return result, fmt.Errorf("remove batch %d/%d: %w", i+1, len(removals), err)
		}
		result.SnapshotID = snapshotID
		result.Removed += len(batch)
		result.RemoveBatches++
		r.logger.Info("remove_batch", "batch", i+1, "of", len(removals), "size", len(batch))
		sendProgress(progress, batchUpdate(RemoveItems, i+1, len(removals), len(batch)))
	}

	inserts := Chunk(plan.ToInsertOrdered, r.opts.BatchSize)
	for i := len(inserts) - 1; i >= 0; i-- {
		batch := inserts[i]
		step := len(inserts) - i
		var snapshotID string
		err := r.withRetry(ctx, "upload_batch", func(ctx context.Context) error {
			var err error
			snapshotID, err = r.dest.AddItems(ctx, r.playlistID, batch, 0)
			return err
		})
		if err != nil {
			r.Invalidate()
			return result, fmt.Errorf("insert batch %d/%d: %w", step, len(inserts), err)
		}
		result.SnapshotID = snapshotID
		result.Inserted += len(batch)
		result.InsertBatches++
		r.logger.Info("upload_batch", "batch", step, "of", len(inserts), "size", len(batch))
		sendProgress(progress, batchUpdate(InsertItems, step, len(inserts), len(batch)))
	}

	if r.snapshot != nil {
		next := Merge(plan, *r.snapshot)
		r.snapshot = &next
	}
	return result, nil
}

// Reconcile plans and applies desired against the current snapshot.
func (r *Reconciler) Reconcile(ctx context.Context, desired []string, progress chan<- ProgressUpdate) (ApplyResult, error) {
	snapshot, err := r.Snapshot(ctx)
	if err != nil {
		return ApplyResult{}, err
	}
	sendProgress(progress, fetchPlaylistUpdate(snapshot))

	plan := Plan(desired, snapshot)
	r.logger.Info("plan", "remove", len(plan.ToRemove), "insert", len(plan.ToInsertOrdered))
	return r.Apply(ctx, plan, progress)
}

func (r *Reconciler) withRetry(ctx context.Context, action string, fn func(context.Context) error) error {
	cfg := r.opts.Retry
	cfg.OnRetry = func(attempt int, err error) {
		r.logger.Warn(action, "reason", "transient", "attempt", attempt, "err", err)
	}
	return retry.Do(ctx, cfg, services.IsTransient, fn)
}

// Merge returns the snapshot that results from applying plan to snapshot:
// the inserted ids followed by the ids the plan did not touch.
func Merge(plan models.ReconciliationPlan, snapshot models.PlaylistSnapshot) models.PlaylistSnapshot {
	if plan.Empty() {
		return snapshot
	}
	removed := make(map[string]bool, len(plan.ToRemove))
	for _, id := range plan.ToRemove {
		removed[id] = true
	}

	ids := slices.Clone(plan.ToInsertOrdered)
	for _, id := range snapshot.IDs {
		if !removed[id] {
			ids = append(ids, id)
		}
	}
	return models.PlaylistSnapshot{IDs: ids, ExpectedTotal: len(ids)}
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = services.MaxBatchSize
	}
	var chunks [][]string
	for batch := range slices.Chunk(ids, size) {
		chunks = append(chunks, batch)
	}
	return chunks
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

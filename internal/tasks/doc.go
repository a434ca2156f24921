// Package tasks runs the playlist synchronization pipeline.
//
// # Reconciliation
//
// [Reconciler] makes the managed playlist start with the newest-first
// sequence of resolved ids:
//
//  1. [Reconciler.FetchSnapshot] pages through the playlist and caches it
//  2. [Plan] marks every desired id already present for removal
//  3. [Reconciler.Apply] removes in batches of 100, then inserts the desired
//     ids at position 0, last batch first, so their order is preserved
//
// The destination has no move operation, so re-ranking an item means
// removing and reinserting it. A playlist that already starts with the
// desired ids produces an empty plan.
//
// # Orchestration
//
// [SyncJob.RunOnce] resolves the checkpoint, crawls the source, resolves
// tracks, reconciles the playlist and commits the newest observed timestamp.
// [SyncJob.Loop] repeats it on a fixed delay measured from the end of each run.
//
// # Progress Reporting
//
// Runs accept an optional channel of [ProgressUpdate]. Sends never block; a
// full channel drops the update.
package tasks

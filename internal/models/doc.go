// Package models defines the data carried through one synchronization run.
//
// Source side:
//   - [AiredItem] : one visible row of the source listing
//   - [Track] : the extracted, corrected form of a row, compared structurally for dedup
//
// Destination side:
//   - [ResolvedTrack] : a track once mapped to a destination identifier
//   - [PlaylistSnapshot] : the destination playlist as last observed
//   - [ReconciliationPlan] : remove/insert batches computed from a snapshot
//
// Progress:
//   - [Checkpoint] : durable watermark plus an optional transient candidate
//   - [SyncRun] : one pipeline execution over a half-open window
package models

// package checkpoint implements the two-tier watermark store used by the sync job.
//
// The durable tier is a [Backend] (SQLite or Redis). The local tier is an
// in-process [LocalCache] that mirrors every write, so a value that reached
// memory but not the durable tier is found and repaired on the next run.
package checkpoint

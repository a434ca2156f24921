package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/resolver"
	"github.com/desertthunder/radiosync/internal/scraper"
	"github.com/desertthunder/radiosync/internal/shared"
)

// Crawler collects aired tracks newer than a watermark. Implemented by [scraper.Crawler].
type Crawler interface {
	Crawl(ctx context.Context, from time.Time) (scraper.CrawlResult, error)
}

// TrackResolver maps tracks to destination ids. Implemented by [resolver.Resolver].
type TrackResolver interface {
	ResolveAll(ctx context.Context, tracks []models.Track) (resolver.Result, error)
}

// PlaylistReconciler brings desired ids to the front of the managed playlist. Implemented by [Reconciler].
type PlaylistReconciler interface {
	Reconcile(ctx context.Context, desired []string, progress chan<- ProgressUpdate) (ApplyResult, error)
}

// Checkpointer resolves and commits the watermark. Implemented by checkpoint.Store.
type Checkpointer interface {
	Resolve(ctx context.Context) (models.Checkpoint, error)
	Commit(ctx context.Context, observed time.Time) (bool, error)
}

// RunObserver is notified after every run, successful or not.
type RunObserver interface {
	ObserveRun(run models.SyncRun)
}

// SyncJob runs the crawl, resolve, reconcile and commit pipeline.
//
// Runs never overlap: [SyncJob.Loop] schedules the next run only after the
// previous one has settled.
type SyncJob struct {
	checkpoints Checkpointer
	crawler     Crawler
	resolver    TrackResolver
	reconciler  PlaylistReconciler
	observers   []RunObserver
	logger      *log.Logger
	now         func() time.Time
}

// NewSyncJob wires the pipeline stages together.
func NewSyncJob(
	checkpoints Checkpointer,
	crawler Crawler,
	tracks TrackResolver,
	reconciler PlaylistReconciler,
	logger *log.Logger,
	observers ...RunObserver,
) *SyncJob {
	return &SyncJob{
		checkpoints: checkpoints,
		crawler:     crawler,
		resolver:    tracks,
		reconciler:  reconciler,
		observers:   observers,
		logger:      logger,
		now:         time.Now,
	}
}

// RunOnce executes a single sync run.
//
// The checkpoint is committed only after reconciliation succeeds; any error
// leaves it at its last committed value so the next run re-covers the window.
// A crawl that yields no tracks skips reconciliation and commits nothing.
func (j *SyncJob) RunOnce(ctx context.Context, progress chan<- ProgressUpdate) (run models.SyncRun, err error) {
	run = models.SyncRun{ID: shared.GenerateID(), StartedAt: j.now()}
	logger := shared.WithLogger(j.logger, "run", run.ID)

	defer func() {
		run.FinishedAt = j.now()
		run.Err = err
		if err != nil {
			logger.Error("sync_run", "err", err, "duration", run.Duration())
		} else {
			logger.Info("sync_run", "crawled", run.Crawled, "resolved", run.Resolved, "dropped", run.Dropped,
				"removed", run.Removed, "inserted", run.Inserted, "duration", run.Duration())
		}
		for _, o := range j.observers {
			o.ObserveRun(run)
		}
	}()

	cp, err := j.checkpoints.Resolve(ctx)
	if err != nil {
		return run, fmt.Errorf("resolve checkpoint: %w", err)
	}
	run.From = cp.Durable
	logger.Info("checkpoint", "from", cp.Durable, "first_run", cp.FirstRun, "repaired", cp.Repaired)
	sendProgress(progress, checkpointUpdate(cp))

	crawled, err := j.crawler.Crawl(ctx, cp.Durable)
	if err != nil {
		return run, fmt.Errorf("crawl: %w", err)
	}
	run.Until = crawled.Latest
	run.Crawled = len(crawled.Tracks)
	sendProgress(progress, crawlUpdate(len(crawled.Tracks), crawled.Days))

	if len(crawled.Tracks) == 0 {
		logger.Info("upload_tracks", "reason", "no_new_items")
		return run, nil
	}

	resolved, err := j.resolver.ResolveAll(ctx, crawled.Tracks)
	if err != nil {
		return run, fmt.Errorf("resolve tracks: %w", err)
	}
	run.Resolved = len(resolved.Tracks)
	run.Dropped = len(resolved.Misses)
	sendProgress(progress, resolveUpdate(run.Resolved, run.Crawled))

	applied, err := j.reconciler.Reconcile(ctx, resolved.IDs(), progress)
	run.Removed = applied.Removed
	run.Inserted = applied.Inserted
	if err != nil {
		return run, fmt.Errorf("reconcile playlist: %w", err)
	}

	committed, err := j.checkpoints.Commit(ctx, crawled.Latest)
	if err != nil {
		return run, fmt.Errorf("commit checkpoint: %w", err)
	}
	if committed {
		latest := crawled.Latest
		run.Committed = &latest
	}
	sendProgress(progress, commitUpdate(crawled.Latest, committed))
	return run, nil
}

// Loop runs the job until ctx ends, waiting interval after each run completes.
//
// A failed run is logged and the schedule continues. The interval is measured
// from the end of a run, so runs never overlap.
func (j *SyncJob) Loop(ctx context.Context, interval time.Duration, progress chan<- ProgressUpdate) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := j.RunOnce(ctx, progress); err != nil && ctx.Err() == nil {
			j.logger.Warn("sync_loop", "reason", "run_failed", "next_in", interval)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

package tasks

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/resolver"
	"github.com/desertthunder/radiosync/internal/scraper"
	"github.com/desertthunder/radiosync/internal/shared"
)

var watermark = time.Date(2025, 3, 10, 12, 12, 0, 0, time.UTC)

type mockCheckpoints struct {
	resolveErr error
	commitErr  error
	committed  []time.Time
}

func (m *mockCheckpoints) Resolve(context.Context) (models.Checkpoint, error) {
	if m.resolveErr != nil {
		return models.Checkpoint{}, m.resolveErr
	}
	return models.Checkpoint{Durable: watermark}, nil
}

func (m *mockCheckpoints) Commit(_ context.Context, observed time.Time) (bool, error) {
	if m.commitErr != nil {
		return false, m.commitErr
	}
	if observed.IsZero() {
		return false, nil
	}
	m.committed = append(m.committed, observed)
	return true, nil
}

type mockCrawler struct {
	result scraper.CrawlResult
	err    error
	from   []time.Time
}

func (m *mockCrawler) Crawl(_ context.Context, from time.Time) (scraper.CrawlResult, error) {
	m.from = append(m.from, from)
	return m.result, m.err
}

type mockResolver struct {
	err   error
	calls int
}

// ResolveAll resolves every track to its title, and misses tracks without one.
func (m *mockResolver) ResolveAll(_ context.Context, tracks []models.Track) (resolver.Result, error) {
	m.calls++
	var res resolver.Result
	if m.err != nil {
		return res, m.err
	}
	for _, t := range tracks {
		if t.Title == "" {
			res.Misses = append(res.Misses, t)
			continue
		}
		res.Tracks = append(res.Tracks, models.ResolvedTrack{Artist: t.Artist, Title: t.Title, DestinationID: t.Title})
	}
	return res, nil
}

type mockReconciler struct {
	err     error
	desired [][]string
}

func (m *mockReconciler) Reconcile(_ context.Context, desired []string, _ chan<- ProgressUpdate) (ApplyResult, error) {
	m.desired = append(m.desired, desired)
	if m.err != nil {
		return ApplyResult{}, m.err
	}
	return ApplyResult{Inserted: len(desired)}, nil
}

type recordingObserver struct {
	runs []models.SyncRun
}

func (o *recordingObserver) ObserveRun(run models.SyncRun) {
	o.runs = append(o.runs, run)
}

type pipeline struct {
	checkpoints *mockCheckpoints
	crawler     *mockCrawler
	resolver    *mockResolver
	reconciler  *mockReconciler
	observer    *recordingObserver
	job         *SyncJob
}

func newPipeline(tracks []models.Track, latest time.Time) *pipeline {
	p := &pipeline{
		checkpoints: &mockCheckpoints{},
		crawler:     &mockCrawler{result: scraper.CrawlResult{Tracks: tracks, Latest: latest, Days: 2}},
		resolver:    &mockResolver{},
		reconciler:  &mockReconciler{},
		observer:    &recordingObserver{},
	}
	p.job = NewSyncJob(p.checkpoints, p.crawler, p.resolver, p.reconciler, log.New(io.Discard), p.observer)
	return p
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	latest := watermark.Add(30 * time.Hour)
	tracks := []models.Track{
		{Artist: "A", Title: "t1"},
		{Artist: "B"},
		{Artist: "C", Title: "t2"},
	}

	t.Run("Success commits latest", func(t *testing.T) {
		p := newPipeline(tracks, latest)

		run, err := p.job.RunOnce(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !p.crawler.from[0].Equal(watermark) {
			t.Errorf("expected crawl from %v, got %v", watermark, p.crawler.from[0])
		}
		if !slices.Equal(p.reconciler.desired[0], []string{"t1", "t2"}) {
			t.Errorf("expected desired [t1 t2], got %v", p.reconciler.desired[0])
		}
		if len(p.checkpoints.committed) != 1 || !p.checkpoints.committed[0].Equal(latest) {
			t.Errorf("expected commit of %v, got %v", latest, p.checkpoints.committed)
		}
		if run.Crawled != 3 || run.Resolved != 2 || run.Dropped != 1 || run.Inserted != 2 {
			t.Errorf("unexpected run counters: %+v", run)
		}
		if run.Committed == nil || !run.Committed.Equal(latest) {
			t.Errorf("expected committed watermark, got %v", run.Committed)
		}
		if run.ID == "" || run.FinishedAt.IsZero() {
			t.Error("expected run id and finish time")
		}
		if len(p.observer.runs) != 1 || p.observer.runs[0].Err != nil {
			t.Errorf("expected one successful observed run, got %+v", p.observer.runs)
		}
	})

	t.Run("No items skips reconciliation", func(t *testing.T) {
		p := newPipeline(nil, time.Time{})

		run, err := p.job.RunOnce(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.resolver.calls != 0 || len(p.reconciler.desired) != 0 {
			t.Error("expected resolution and reconciliation to be skipped")
		}
		if len(p.checkpoints.committed) != 0 || run.Committed != nil {
			t.Error("expected no commit")
		}
	})

	t.Run("Reconcile failure keeps watermark", func(t *testing.T) {
		p := newPipeline(tracks, latest)
		p.reconciler.err = shared.ErrDestinationFatal

		run, err := p.job.RunOnce(ctx, nil)
		if !errors.Is(err, shared.ErrDestinationFatal) {
			t.Fatalf("expected ErrDestinationFatal, got %v", err)
		}
		if len(p.checkpoints.committed) != 0 {
			t.Error("expected no commit after failed reconciliation")
		}
		if !errors.Is(run.Err, shared.ErrDestinationFatal) {
			t.Errorf("expected run error to be recorded, got %v", run.Err)
		}
		if len(p.observer.runs) != 1 || p.observer.runs[0].Err == nil {
			t.Error("expected failed run to be observed")
		}
	})

	t.Run("Crawl failure", func(t *testing.T) {
		p := newPipeline(nil, time.Time{})
		p.crawler.err = shared.ErrExtraction

		if _, err := p.job.RunOnce(ctx, nil); !errors.Is(err, shared.ErrExtraction) {
			t.Fatalf("expected ErrExtraction, got %v", err)
		}
		if p.resolver.calls != 0 {
			t.Error("expected resolution to be skipped")
		}
	})

	t.Run("Resolve failure", func(t *testing.T) {
		p := newPipeline(tracks, latest)
		p.resolver.err = shared.ErrDestinationFatal

		if _, err := p.job.RunOnce(ctx, nil); err == nil {
			t.Fatal("expected error")
		}
		if len(p.reconciler.desired) != 0 || len(p.checkpoints.committed) != 0 {
			t.Error("expected no reconciliation and no commit")
		}
	})

	t.Run("Checkpoint failure", func(t *testing.T) {
		p := newPipeline(tracks, latest)
		p.checkpoints.resolveErr = errors.New("database is locked")

		if _, err := p.job.RunOnce(ctx, nil); err == nil {
			t.Fatal("expected error")
		}
		if len(p.crawler.from) != 0 {
			t.Error("expected crawl to be skipped")
		}
	})

	t.Run("All misses still commit", func(t *testing.T) {
		p := newPipeline([]models.Track{{Artist: "X"}}, latest)

		if _, err := p.job.RunOnce(ctx, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(p.checkpoints.committed) != 1 {
			t.Error("expected commit when every track was dropped")
		}
	})

	t.Run("Progress", func(t *testing.T) {
		p := newPipeline(tracks, latest)
		progress := make(chan ProgressUpdate, 10)

		if _, err := p.job.RunOnce(ctx, progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		want := []Phase{ResolveCheckpoint, CrawlSource, ResolveTracks, CommitCheckpoint}
		if !slices.Equal(phases, want) {
			t.Errorf("expected phases %v, got %v", want, phases)
		}
	})
}

func TestLoop(t *testing.T) {
	t.Run("Continues after failures", func(t *testing.T) {
		p := newPipeline(nil, time.Time{})
		p.crawler.err = shared.ErrExtraction

		ctx, cancel := context.WithCancel(context.Background())
		p.job.observers = append(p.job.observers, observerFunc(func(models.SyncRun) {
			if len(p.crawler.from) == 3 {
				cancel()
			}
		}))

		err := p.job.Loop(ctx, time.Millisecond, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(p.crawler.from) != 3 {
			t.Errorf("expected 3 runs, got %d", len(p.crawler.from))
		}
	})
}

type observerFunc func(models.SyncRun)

func (f observerFunc) ObserveRun(run models.SyncRun) { f(run) }

func TestPhaseString(t *testing.T) {
	if CommitCheckpoint.String() != "commit_checkpoint" {
		t.Errorf("unexpected phase name %q", CommitCheckpoint.String())
	}
	if Phase(99).String() != "" {
		t.Error("expected empty name for unknown phase")
	}
}

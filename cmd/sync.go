package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/server"
	"github.com/desertthunder/radiosync/internal/tasks"
)

// Run runs the sync loop, and the status server when an address is configured, until SIGINT or SIGTERM.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	interval := cmd.Duration("interval")
	if interval <= 0 {
		interval = r.config.Sync.Interval.Duration
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr
	}

	p, err := r.buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	progress := make(chan tasks.ProgressUpdate, 32)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(progress)
		return p.job.Loop(ctx, interval, progress)
	})
	g.Go(func() error {
		for update := range progress {
			r.logger.Debug("progress", "phase", update.Phase, "message", update.Message)
		}
		return nil
	})
	if addr != "" {
		router := server.NewRouter(server.RouterOptions{
			Checkpoints: p.checkpoints,
			Status:      p.status,
			Metrics:     p.metrics,
			Logger:      r.logger,
		})
		srv := server.New(addr, router, r.logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	r.logger.Info("app_start", "interval", interval, "addr", addr)
	err = g.Wait()
	r.logger.Info("app_stop")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Once runs a single sync and prints its summary.
func (r *Runner) Once(ctx context.Context, cmd *cli.Command) error {
	p, err := r.buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	progress := make(chan tasks.ProgressUpdate, 64)
	run, runErr := p.job.RunOnce(ctx, progress)
	close(progress)

	if cmd.Bool("json") {
		if err := r.writeJSON(server.NewRunSummary(run), true); err != nil {
			return err
		}
		return runErr
	}

	for update := range progress {
		r.writePlain("%s %s\n", styles.help.Render(fmt.Sprintf("[%s]", update.Phase)), update.Message)
	}
	r.writeRun(run)
	return runErr
}

func (r *Runner) writeRun(run models.SyncRun) {
	status := styles.ok.Render("✓ Sync complete")
	if run.Err != nil {
		status = styles.err.Render("✗ Sync failed")
	}

	committed := styles.warn.Render("unchanged")
	if run.Committed != nil {
		committed = r.formatTime(*run.Committed)
	}

	r.writeLines(
		"",
		styles.title.Render(status),
		styles.row("Run", run.ID),
		styles.row("From", r.formatTime(run.From)),
		styles.row("Crawled", fmt.Sprint(run.Crawled)),
		styles.row("Resolved", fmt.Sprint(run.Resolved)),
		styles.row("Dropped", fmt.Sprint(run.Dropped)),
		styles.row("Removed", fmt.Sprint(run.Removed)),
		styles.row("Inserted", fmt.Sprint(run.Inserted)),
		styles.row("Checkpoint", committed),
		styles.row("Duration", run.Duration().Round(time.Millisecond).String()),
	)
	if run.Err != nil {
		r.writeLines(styles.row("Error", styles.err.Render(run.Err.Error())))
	}
}

// formatTime renders ts in the source time zone.
func (r *Runner) formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	if loc, err := r.config.Source.Location(); err == nil {
		ts = ts.In(loc)
	}
	return ts.Format("2006-01-02 15:04 MST")
}

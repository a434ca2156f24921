package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/radiosync/internal/checkpoint"
	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/shared"
)

type checkpointOutput struct {
	Key     string     `json:"key"`
	Backend string     `json:"backend"`
	Durable *time.Time `json:"durable"`
}

// withCheckpoints opens the database and checkpoint store for the duration of fn.
func (r *Runner) withCheckpoints(ctx context.Context, fn func(*checkpoint.Store) error) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	store, closeStore, err := r.openCheckpoints(ctx, db)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}

// CheckpointGet prints the committed watermark.
func (r *Runner) CheckpointGet(ctx context.Context, cmd *cli.Command) error {
	return r.withCheckpoints(ctx, func(store *checkpoint.Store) error {
		out := checkpointOutput{Key: store.Key(), Backend: r.config.Checkpoint.Backend}

		ts, err := store.Get(ctx)
		switch {
		case err == nil:
			out.Durable = &ts
		case !errors.Is(err, shared.ErrCheckpointNotFound):
			return err
		}

		if cmd.Bool("json") {
			return r.writeJSON(out, true)
		}

		value := styles.warn.Render("not set (next run starts from now)")
		if out.Durable != nil {
			value = r.formatTime(*out.Durable)
		}
		return r.writeLines(
			styles.title.Render("Checkpoint"),
			styles.row("Key", out.Key),
			styles.row("Backend", out.Backend),
			styles.row("Durable", value),
		)
	})
}

// CheckpointSet overwrites the watermark.
func (r *Runner) CheckpointSet(ctx context.Context, cmd *cli.Command) error {
	raw := strings.TrimSpace(cmd.StringArg("time"))
	if raw == "" {
		return fmt.Errorf("%w: time", shared.ErrMissingArgument)
	}

	ts, err := r.parseTime(raw)
	if err != nil {
		return err
	}

	return r.withCheckpoints(ctx, func(store *checkpoint.Store) error {
		if err := store.Set(ctx, ts); err != nil {
			return fmt.Errorf("failed to set checkpoint: %w", err)
		}
		r.logger.Info("checkpoint", "set", ts)
		return r.writePlain("%s %s\n", styles.ok.Render("✓ Checkpoint set to"), r.formatTime(ts))
	})
}

// CheckpointClear deletes the watermark.
func (r *Runner) CheckpointClear(ctx context.Context, cmd *cli.Command) error {
	return r.withCheckpoints(ctx, func(store *checkpoint.Store) error {
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear checkpoint: %w", err)
		}
		return r.writePlain("%s\n", styles.ok.Render("✓ Checkpoint cleared"))
	})
}

// parseTime accepts RFC 3339 or the source's "MM/DD/YYYY HH:mm" in the source time zone.
func (r *Runner) parseTime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}

	loc, err := r.config.Source.Location()
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.ParseInLocation(models.DayFormat+" "+models.HourFormat, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is neither RFC 3339 nor MM/DD/YYYY HH:mm", shared.ErrInvalidArgument, raw)
	}
	return ts, nil
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/resolver"
	"github.com/desertthunder/radiosync/internal/services"
	"github.com/desertthunder/radiosync/internal/shared"
)

// Resolve maps an artist and title to a destination track id and prints it.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	track := models.Track{Artist: cmd.StringArg("artist"), Title: cmd.StringArg("title")}
	if track.Artist == "" || track.Title == "" {
		return fmt.Errorf("%w: artist and title", shared.ErrMissingArgument)
	}

	dest, err := r.spotify(ctx)
	if err != nil {
		return err
	}

	var res *resolver.Resolver
	if cmd.Bool("no-cache") {
		res = resolver.New(dest, nil, resolver.OptionsFromConfig(r.config), r.logger)
	} else {
		db, err := r.openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		if cmd.Bool("forget") {
			forgot, err := r.resolutionCache(dest, db).Forget(ctx, track.Artist, track.Title)
			if err != nil {
				return fmt.Errorf("forget cached resolution: %w", err)
			}
			r.logger.Info("cache_forget", "track", track.String(), "evicted", forgot)
			if forgot {
				if err := r.writePlain("%s %s\n", styles.ok.Render("✓ Forgot cached match for"), track); err != nil {
					return err
				}
			}
		}
		res = r.newResolver(dest, db)
	}

	resolved, err := res.Resolve(ctx, track)
	if errors.Is(err, shared.ErrResolutionMiss) {
		return r.writePlain("%s %s\n", styles.warn.Render("✗ No acceptable match for"), track)
	}
	if err != nil {
		return err
	}

	return r.writeLines(
		styles.ok.Render("✓ "+track.String()),
		styles.row("ID", resolved.DestinationID),
		styles.row("URI", services.TrackURI(resolved.DestinationID)),
	)
}

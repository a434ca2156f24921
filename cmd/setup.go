package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/radiosync/internal/shared"
)

// SetupConfig writes the embedded default configuration to --config.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)

	return r.writeLines(
		styles.ok.Render("✓ Config written to "+r.configPath),
		styles.help.Render("Next: set credentials.spotify, then run 'radiosync spotify auth'"),
	)
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("%s\n", styles.ok.Render(fmt.Sprintf("✓ Database ready at %s", r.config.Database.Path)))
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/radiosync/internal/browser"
	"github.com/desertthunder/radiosync/internal/checkpoint"
	"github.com/desertthunder/radiosync/internal/metrics"
	"github.com/desertthunder/radiosync/internal/repositories"
	"github.com/desertthunder/radiosync/internal/resolver"
	"github.com/desertthunder/radiosync/internal/scraper"
	"github.com/desertthunder/radiosync/internal/server"
	"github.com/desertthunder/radiosync/internal/services"
	"github.com/desertthunder/radiosync/internal/shared"
	"github.com/desertthunder/radiosync/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	logger      *log.Logger
	output      io.Writer
	destination services.Destination
	newDriver   scraper.DriverFactory
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Destination and DriverFactory replace the Spotify client and the
// playwright browser when set.
type RunnerOpts struct {
	Config        *shared.Config
	ConfigPath    string
	Logger        *log.Logger
	Output        io.Writer
	Destination   services.Destination
	DriverFactory scraper.DriverFactory
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		logger:      opts.Logger,
		output:      opts.Output,
		destination: opts.Destination,
		newDriver:   opts.DriverFactory,
	}
}

// App returns the root command.
func (r *Runner) App() *cli.Command {
	return &cli.Command{
		Name:    "radiosync",
		Usage:   "Mirror a radio station's aired tracks into a Spotify playlist",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("RADIOSYNC_CONFIG"),
			},
		},
		Before:   r.load,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, onceCommand, checkpointCommand, resolveCommand, setupCommand, spotifyCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// load reads the config file named by --config when it exists, then applies
// environment overrides and the log settings.
func (r *Runner) load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	r.config.ApplyEnv()
	shared.ConfigureLogger(r.logger, r.config.Log)
	return ctx, nil
}

// spotify returns the injected destination or an authenticated Spotify client.
func (r *Runner) spotify(ctx context.Context) (services.Destination, error) {
	if r.destination != nil {
		return r.destination, nil
	}

	svc, err := r.spotifyService()
	if err != nil {
		return nil, err
	}
	if err := svc.Authenticate(ctx, r.config.Credentials.Spotify.Map()); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Spotify: %w", err)
	}
	r.destination = svc
	return svc, nil
}

func (r *Runner) spotifyService() (*services.SpotifyService, error) {
	svc, err := services.NewSpotifyService(
		r.config.Credentials.Spotify.Map(),
		services.WithRateLimit(r.config.Sync.RequestsPerSecond),
		services.WithTokenCallback(r.persistToken),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	return svc, nil
}

// persistToken writes a refreshed token back to the config file.
func (r *Runner) persistToken(token *oauth2.Token) {
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		r.logger.Warn("token_refresh", "err", err)
		return
	}
	if _, err := os.Stat(r.configPath); err != nil {
		return
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		r.logger.Warn("token_refresh", "reason", "save failed", "err", err)
		return
	}
	r.logger.Debug("token_refresh", "path", r.configPath)
}

func (r *Runner) driverFactory() scraper.DriverFactory {
	if r.newDriver != nil {
		return r.newDriver
	}
	opts := browser.Options{Headless: r.config.Source.Headless, Timeout: 30 * time.Second, Install: true}
	return func(ctx context.Context) (browser.PageDriver, error) {
		return browser.NewPlaywrightDriver(opts, r.logger)
	}
}

// openDatabase opens the SQLite database with migrations applied.
func (r *Runner) openDatabase() (*sql.DB, error) {
	db, err := shared.OpenMigrated(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openCheckpoints builds the checkpoint store over the configured durable backend.
func (r *Runner) openCheckpoints(ctx context.Context, db *sql.DB) (*checkpoint.Store, func() error, error) {
	var (
		backend checkpoint.Backend
		closer  = func() error { return nil }
	)

	switch r.config.Checkpoint.Backend {
	case "redis":
		rb := checkpoint.NewRedisBackend(r.config.Redis)
		if err := rb.Ping(ctx); err != nil {
			r.logger.Warn("checkpoint", "reason", "redis unreachable, using local fallback", "err", err)
		}
		backend, closer = rb, rb.Close
	case "sqlite", "":
		backend = repositories.NewCheckpointRepository(db)
	default:
		return nil, nil, fmt.Errorf("%w: unknown checkpoint backend %q", shared.ErrInvalidConfig, r.config.Checkpoint.Backend)
	}

	store := checkpoint.NewStore(backend, checkpoint.NewLocalCache(), r.config.Checkpoint.Key, r.logger)
	return store, closer, nil
}

func (r *Runner) resolutionCache(dest services.Destination, db *sql.DB) *repositories.ResolutionCache {
	return repositories.NewResolutionCache(repositories.NewTrackRepository(db), dest.Name(), resolver.LookupKey)
}

func (r *Runner) newResolver(dest services.Destination, db *sql.DB) *resolver.Resolver {
	return resolver.New(dest, r.resolutionCache(dest, db), resolver.OptionsFromConfig(r.config), r.logger)
}

// pipeline is the wired sync job and the resources it holds.
type pipeline struct {
	job         *tasks.SyncJob
	checkpoints *checkpoint.Store
	metrics     *metrics.Metrics
	status      *server.RunStatus
	closers     []func() error
}

func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

// buildPipeline wires the checkpoint store, crawler, resolver and reconciler.
func (r *Runner) buildPipeline(ctx context.Context) (*pipeline, error) {
	if err := r.config.Validate(); err != nil {
		if r.destination == nil || !errors.Is(err, shared.ErrMissingCredentials) {
			return nil, err
		}
	}

	sourceOpts, err := scraper.OptionsFromConfig(r.config.Source)
	if err != nil {
		return nil, err
	}

	db, err := r.openDatabase()
	if err != nil {
		return nil, err
	}
	p := &pipeline{closers: []func() error{db.Close}}

	store, closeStore, err := r.openCheckpoints(ctx, db)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.closers = append(p.closers, closeStore)
	p.checkpoints = store

	dest, err := r.spotify(ctx)
	if err != nil {
		p.Close()
		return nil, err
	}

	crawler := scraper.NewCrawler(r.driverFactory(), sourceOpts, scraper.NewCorrections(r.config.Corrections), r.logger)
	reconciler := tasks.NewReconciler(
		dest,
		r.config.Credentials.Spotify.PlaylistID,
		tasks.ReconcileOptionsFromConfig(r.config.Sync),
		r.logger,
	)

	p.metrics = metrics.New()
	p.status = server.NewRunStatus()
	p.job = tasks.NewSyncJob(store, crawler, r.newResolver(dest, db), reconciler, r.logger, p.metrics, p.status)
	return p, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeLines(lines ...string) error {
	for _, line := range lines {
		if err := r.writePlain("%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

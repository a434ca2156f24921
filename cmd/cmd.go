// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// runCommand runs the sync loop
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the sync job on a fixed schedule",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Delay between the end of a run and the start of the next (defaults to sync.interval)",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Status and metrics listen address (defaults to server.addr; empty disables)",
			},
		},
		Action: r.Run,
	}
}

// onceCommand runs a single sync
func onceCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "once",
		Usage: "Run a single sync and print its summary",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the run summary as JSON",
			},
		},
		Action: r.Once,
	}
}

// checkpointCommand inspects and edits the watermark
func checkpointCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "checkpoint",
		Aliases: []string{"cp"},
		Usage:   "Inspect or change the sync watermark",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print the committed watermark",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CheckpointGet,
			},
			{
				Name:      "set",
				Usage:     "Set the watermark (RFC 3339 or \"MM/DD/YYYY HH:mm\" in the source time zone)",
				ArgsUsage: "<time>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "time"},
				},
				Action: r.CheckpointSet,
			},
			{
				Name:   "clear",
				Usage:  "Delete the watermark; the next run starts from now",
				Action: r.CheckpointClear,
			},
		},
	}
}

// resolveCommand looks up one track
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve an artist and title to a Spotify track id",
		ArgsUsage: "<artist> <title>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "artist"},
			&cli.StringArg{Name: "title"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Skip the resolution cache",
			},
			&cli.BoolFlag{
				Name:  "forget",
				Usage: "Evict the cached match before resolving again",
			},
		},
		Action: r.Resolve,
	}
}

// setupCommand initializes local state
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the default configuration file",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// spotifyCommand handles Spotify authorization
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:  "auth",
				Usage: "Authorize with a local callback server and save the refresh token",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the callback",
						Value: 2 * time.Minute,
					},
				},
				Action: r.SpotifyAuth,
			},
			{
				Name:   "auth-url",
				Usage:  "Print the authorization URL",
				Action: r.SpotifyAuthURL,
			},
			{
				Name:  "token",
				Usage: "Exchange an authorization code and save the refresh token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "code",
						Usage:    "Authorization code from the callback URL",
						Required: true,
					},
				},
				Action: r.SpotifyToken,
			},
		},
	}
}

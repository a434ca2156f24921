package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/radiosync/internal/server"
	"github.com/desertthunder/radiosync/internal/shared"
)

// SpotifyAuth performs the OAuth2 authorization code flow with a local callback server.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService()
	if err != nil {
		return err
	}

	redirect, err := url.Parse(r.config.Credentials.Spotify.RedirectURI)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: redirect_uri %q", shared.ErrInvalidConfig, r.config.Credentials.Spotify.RedirectURI)
	}

	state := shared.GenerateID()
	handler := server.NewOAuthHandler(svc.Exchange, state, redirect.Path)
	router := chi.NewRouter()
	server.Mount(router, handler)

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	srv := server.New(redirect.Host, router, r.logger)
	serverErrors := make(chan error, 1)
	go func() { serverErrors <- srv.Run(ctx) }()

	r.writeLines(
		styles.title.Render("Spotify authorization"),
		"Open this URL in your browser:",
		svc.GetAuthURL(state),
		"",
		styles.help.Render(fmt.Sprintf("→ Waiting for the callback on %s ...", redirect.Host)),
	)

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return fmt.Errorf("%w: callback server stopped", shared.ErrNotAuthenticated)
	case <-ctx.Done():
		return fmt.Errorf("%w: authorization timed out", shared.ErrNotAuthenticated)
	}
	cancel()
	<-serverErrors

	if result.Err != nil {
		return fmt.Errorf("authorization failed: %w", result.Err)
	}
	return r.saveToken(result.Token)
}

// SpotifyAuthURL prints the authorization URL for a manual flow.
func (r *Runner) SpotifyAuthURL(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService()
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", svc.GetAuthURL(shared.GenerateID()))
}

// SpotifyToken exchanges an authorization code from a manual flow.
func (r *Runner) SpotifyToken(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.spotifyService()
	if err != nil {
		return err
	}

	token, err := svc.Exchange(ctx, cmd.String("code"))
	if err != nil {
		return err
	}
	return r.saveToken(token)
}

func (r *Runner) saveToken(token *oauth2.Token) error {
	if token == nil || token.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token received", shared.ErrNotAuthenticated)
	}
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.logger.Info("spotify authorized", "expires", token.Expiry.Format(time.RFC3339))
	return r.writeLines(
		styles.ok.Render("✓ Authorization successful"),
		styles.ok.Render("✓ Tokens saved to "+r.configPath),
	)
}

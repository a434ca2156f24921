// Spotify API implementation of [Destination]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/radiosync/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
// Track is nil for episodes and unavailable items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedPlaylistTracks represents a page of playlist items.
type SpotifyPaginatedPlaylistTracks struct {
	Items  []SpotifyPlaylistTrack `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Next   *string                `json:"next"`
}

type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

type spotifyErrorResponse struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Option configures a [SpotifyService].
type Option func(*SpotifyService)

// WithBaseURL points the client at another API root (tests).
func WithBaseURL(u string) Option {
	return func(s *SpotifyService) { s.baseURL = u }
}

// WithTokenURL overrides the token endpoint (tests).
func WithTokenURL(u string) Option {
	return func(s *SpotifyService) { s.config.Endpoint.TokenURL = u }
}

// WithHTTPClient sets the base client used for token requests and API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *SpotifyService) { s.baseClient = c }
}

// WithRateLimit caps requests per second. Zero or less disables limiting.
func WithRateLimit(rps float64) Option {
	return func(s *SpotifyService) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithTokenCallback registers fn to be called whenever a new token is issued.
func WithTokenCallback(fn func(*oauth2.Token)) Option {
	return func(s *SpotifyService) { s.onTokenRefresh = fn }
}

// SpotifyService implements [Destination] for the Spotify Web API.
// Uses [oauth2] for authentication and provides methods for playlist and track operations.
type SpotifyService struct {
	config         *oauth2.Config
	baseURL        string
	baseClient     *http.Client
	httpClient     *http.Client
	limiter        *rate.Limiter
	onTokenRefresh func(*oauth2.Token)
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...Option) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id in credentials", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret in credentials", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	s := &SpotifyService{
		config:     config,
		baseURL:    spotifyBaseURL,
		baseClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Authenticate prepares the authenticated client.
//
// Credentials are tried in order: "refresh_token" (refreshed on demand),
// "auth_code" (exchanged once), "access_token" (used as is).
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.baseClient)

	var token *oauth2.Token
	switch {
	case credentials["refresh_token"] != "":
		token = &oauth2.Token{RefreshToken: credentials["refresh_token"]}
	case credentials["auth_code"] != "":
		exchanged, err := s.Exchange(ctx, credentials["auth_code"])
		if err != nil {
			return err
		}
		token = exchanged
	case credentials["access_token"] != "":
		s.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credentials["access_token"]}))
		return nil
	default:
		return fmt.Errorf("%w: missing refresh_token, auth_code or access_token", shared.ErrMissingCredentials)
	}

	source := &refreshableTokenSource{source: s.config.TokenSource(ctx, token), callback: s.onTokenRefresh}
	s.httpClient = oauth2.NewClient(ctx, source)
	return nil
}

// Exchange trades an authorization code for a token carrying a refresh token.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.baseClient)
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrNotAuthenticated, err)
	}
	return token, nil
}

// Token returns a valid token, refreshing it when needed.
func (s *SpotifyService) Token(ctx context.Context) (*oauth2.Token, error) {
	if s.httpClient == nil {
		return nil, shared.ErrNotAuthenticated
	}
	transport, ok := s.httpClient.Transport.(*oauth2.Transport)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected transport", shared.ErrNotAuthenticated)
	}
	token, err := transport.Source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return token, nil
}

// SearchTracks runs a track search.
func (s *SpotifyService) SearchTracks(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 3
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))

	var response spotifySearchResponse
	if err := s.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		candidate := Candidate{ID: item.ID, Title: item.Name}
		for _, artist := range item.Artists {
			candidate.Artists = append(candidate.Artists, artist.Name)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// PlaylistPage reads one page of track ids from a playlist.
//
// Items without a track (episodes, removed content) are skipped but still
// count towards Total.
func (s *SpotifyService) PlaylistPage(ctx context.Context, playlistID string, offset, limit int) (*PlaylistPage, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	if limit <= 0 || limit > MaxBatchSize {
		limit = MaxBatchSize
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks?offset=%d&limit=%d&fields=%s",
		url.PathEscape(playlistID), offset, limit, url.QueryEscape("items(track(id,uri)),total,next"))

	var response SpotifyPaginatedPlaylistTracks
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	page := &PlaylistPage{Total: response.Total, IDs: make([]string, 0, len(response.Items))}
	for _, item := range response.Items {
		if item.Track == nil {
			continue
		}
		id := item.Track.ID
		if item.Track.URI != "" {
			id = TrackIDFromURI(item.Track.URI)
		}
		if id == "" {
			continue
		}
		page.IDs = append(page.IDs, id)
	}
	if response.Next != nil && *response.Next != "" {
		next := offset + limit
		page.NextOffset = &next
	}
	return page, nil
}

// AddItems inserts up to [MaxBatchSize] tracks at position.
func (s *SpotifyService) AddItems(ctx context.Context, playlistID string, ids []string, position int) (string, error) {
	if err := checkBatch(playlistID, ids); err != nil {
		return "", err
	}

	uris := make([]string, 0, len(ids))
	for _, id := range ids {
		uris = append(uris, TrackURI(id))
	}
	body := map[string]any{"uris": uris, "position": position}

	var response snapshotResponse
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &response); err != nil {
		return "", err
	}
	return response.SnapshotID, nil
}

// RemoveItems removes up to [MaxBatchSize] tracks.
func (s *SpotifyService) RemoveItems(ctx context.Context, playlistID string, ids []string) (string, error) {
	if err := checkBatch(playlistID, ids); err != nil {
		return "", err
	}

	type trackRef struct {
		URI string `json:"uri"`
	}
	refs := make([]trackRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, trackRef{URI: TrackURI(id)})
	}
	body := map[string]any{"tracks": refs}

	var response snapshotResponse
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	if err := s.doRequest(ctx, http.MethodDelete, endpoint, body, &response); err != nil {
		return "", err
	}
	return response.SnapshotID, nil
}

func checkBatch(playlistID string, ids []string) error {
	switch {
	case playlistID == "":
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	case len(ids) == 0:
		return fmt.Errorf("%w: no track ids provided", shared.ErrInvalidArgument)
	case len(ids) > MaxBatchSize:
		return fmt.Errorf("%w: maximum %d track ids per call, got %d", shared.ErrInvalidArgument, MaxBatchSize, len(ids))
	}
	return nil
}

// doRequest performs an authenticated, rate limited request to the Spotify API.
//
// Failures are classified as [shared.ErrDestinationTransient] or [shared.ErrDestinationFatal].
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.httpClient == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return classify(fmt.Errorf("%w: %w", shared.ErrAPIRequest, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(newAPIError(resp))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload spotifyErrorResponse
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error.Message
		}
	}
	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(seconds) * time.Second
	}
	return apiErr
}

// refreshableTokenSource reports every new access token to callback.
type refreshableTokenSource struct {
	mu       sync.Mutex
	source   oauth2.TokenSource
	callback func(*oauth2.Token)
	last     string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}

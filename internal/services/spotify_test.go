package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/radiosync/internal/retry"
	"github.com/desertthunder/radiosync/internal/shared"
)

var testCredentials = map[string]string{
	"client_id":     "test_client_id",
	"client_secret": "test_client_secret",
}

// newTestService returns a service authenticated against srv with a static token.
func newTestService(t *testing.T, srv *httptest.Server) *SpotifyService {
	t.Helper()
	s, err := NewSpotifyService(testCredentials, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if err := s.Authenticate(context.Background(), map[string]string{"access_token": "test_token"}); err != nil {
		t.Fatalf("failed to authenticate: %v", err)
	}
	return s
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			srv, err := NewSpotifyService(testCredentials)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Name() != "Spotify" {
				t.Errorf("expected service name 'Spotify', got %s", srv.Name())
			}
			if srv.config.RedirectURL != "http://localhost:3000/callback" {
				t.Errorf("expected default redirect URI, got %s", srv.config.RedirectURL)
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_secret": "s"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_id": "c"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("Get AuthURL", func(t *testing.T) {
		srv, _ := NewSpotifyService(testCredentials)
		authURL := srv.GetAuthURL("test_state")

		for _, want := range []string{"accounts.spotify.com", "test_client_id", "test_state", "playlist-modify-public"} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL should contain %q: %s", want, authURL)
			}
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("Without Credentials", func(t *testing.T) {
			srv, _ := NewSpotifyService(testCredentials)
			err := srv.Authenticate(context.Background(), map[string]string{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Requests Before Authenticate", func(t *testing.T) {
			srv, _ := NewSpotifyService(testCredentials)
			_, err := srv.SearchTracks(context.Background(), "q", 3)
			if !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})

		t.Run("Refresh Token", func(t *testing.T) {
			var refreshes atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/token":
					refreshes.Add(1)
					if err := r.ParseForm(); err != nil {
						t.Errorf("failed to parse form: %v", err)
					}
					if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "rt" {
						t.Errorf("unexpected token request: %v", r.Form)
					}
					w.Header().Set("Content-Type", "application/json")
					fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
				case "/search":
					if got := r.Header.Get("Authorization"); got != "Bearer fresh" {
						t.Errorf("expected refreshed bearer token, got %q", got)
					}
					fmt.Fprint(w, `{"tracks":{"items":[]}}`)
				default:
					http.NotFound(w, r)
				}
			}))
			defer server.Close()

			var persisted []*oauth2.Token
			srv, _ := NewSpotifyService(testCredentials,
				WithBaseURL(server.URL),
				WithTokenURL(server.URL+"/token"),
				WithHTTPClient(server.Client()),
				WithTokenCallback(func(tok *oauth2.Token) { persisted = append(persisted, tok) }),
			)
			if err := srv.Authenticate(context.Background(), map[string]string{"refresh_token": "rt"}); err != nil {
				t.Fatalf("failed to authenticate: %v", err)
			}

			for range 3 {
				if _, err := srv.SearchTracks(context.Background(), "q", 3); err != nil {
					t.Fatalf("search failed: %v", err)
				}
			}
			if refreshes.Load() != 1 {
				t.Errorf("expected one refresh, got %d", refreshes.Load())
			}
			if len(persisted) != 1 || persisted[0].AccessToken != "fresh" {
				t.Errorf("expected callback with the fresh token, got %v", persisted)
			}
			if persisted[0].RefreshToken != "rt" {
				t.Errorf("expected refresh token to be kept, got %q", persisted[0].RefreshToken)
			}
		})
	})

	t.Run("SearchTracks", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/search" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			q := r.URL.Query()
			if q.Get("q") != "track:One More Time artist:Daft Punk" || q.Get("type") != "track" || q.Get("limit") != "3" {
				t.Errorf("unexpected query: %v", q)
			}
			fmt.Fprint(w, `{"tracks":{"items":[
				{"id":"0DiWol3AO6WpXZgp0goxAV","name":"One More Time","artists":[{"name":"Daft Punk"}]},
				{"id":"other","name":"One More Time - Radio Edit","artists":[{"name":"Daft Punk"},{"name":"Romanthony"}]}
			]}}`)
		}))
		defer server.Close()

		candidates, err := newTestService(t, server).SearchTracks(context.Background(), "track:One More Time artist:Daft Punk", 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(candidates) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(candidates))
		}
		if candidates[0].ID != "0DiWol3AO6WpXZgp0goxAV" || candidates[0].Title != "One More Time" {
			t.Errorf("unexpected first candidate: %+v", candidates[0])
		}
		if !slices.Equal(candidates[1].Artists, []string{"Daft Punk", "Romanthony"}) {
			t.Errorf("unexpected artists: %v", candidates[1].Artists)
		}
	})

	t.Run("PlaylistPage", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/playlists/pl/tracks" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			switch r.URL.Query().Get("offset") {
			case "0":
				fmt.Fprint(w, `{"items":[{"track":{"id":"a","uri":"spotify:track:a"}},{"track":null},{"track":{"id":"ep","uri":"spotify:episode:ep"}},{"track":{"id":"b"}}],"total":5,"next":"https://api/next"}`)
			default:
				fmt.Fprint(w, `{"items":[{"track":{"id":"c","uri":"spotify:track:c"}}],"total":5,"next":null}`)
			}
		}))
		defer server.Close()
		s := newTestService(t, server)

		first, err := s.PlaylistPage(context.Background(), "pl", 0, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(first.IDs, []string{"a", "b"}) || first.Total != 5 {
			t.Errorf("unexpected page: %+v", first)
		}
		if first.NextOffset == nil || *first.NextOffset != 3 {
			t.Fatalf("expected next offset 3, got %v", first.NextOffset)
		}

		last, err := s.PlaylistPage(context.Background(), "pl", 3, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if last.NextOffset != nil {
			t.Errorf("expected last page, got next %d", *last.NextOffset)
		}
		if !slices.Equal(last.IDs, []string{"c"}) {
			t.Errorf("expected [c], got %v", last.IDs)
		}
	})

	t.Run("AddItems", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			var body struct {
				URIs     []string `json:"uris"`
				Position int      `json:"position"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("failed to decode body: %v", err)
			}
			if !slices.Equal(body.URIs, []string{"spotify:track:t1", "spotify:track:t2"}) || body.Position != 0 {
				t.Errorf("unexpected body: %+v", body)
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"snapshot_id":"snap1"}`)
		}))
		defer server.Close()

		snapshot, err := newTestService(t, server).AddItems(context.Background(), "pl", []string{"t1", "t2"}, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snapshot != "snap1" {
			t.Errorf("expected snap1, got %s", snapshot)
		}
	})

	t.Run("RemoveItems", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				t.Errorf("expected DELETE, got %s", r.Method)
			}
			var body struct {
				Tracks []struct {
					URI string `json:"uri"`
				} `json:"tracks"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("failed to decode body: %v", err)
			}
			if len(body.Tracks) != 1 || body.Tracks[0].URI != "spotify:track:t2" {
				t.Errorf("unexpected body: %+v", body)
			}
			fmt.Fprint(w, `{"snapshot_id":"snap2"}`)
		}))
		defer server.Close()

		snapshot, err := newTestService(t, server).RemoveItems(context.Background(), "pl", []string{"t2"})
		if err != nil || snapshot != "snap2" {
			t.Errorf("expected snap2, got %q err=%v", snapshot, err)
		}
	})

	t.Run("Batch Validation", func(t *testing.T) {
		s, _ := NewSpotifyService(testCredentials)
		tooMany := make([]string, MaxBatchSize+1)

		if _, err := s.AddItems(context.Background(), "pl", tooMany, 0); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := s.RemoveItems(context.Background(), "pl", nil); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := s.AddItems(context.Background(), "", []string{"x"}, 0); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Error Classification", func(t *testing.T) {
		tests := []struct {
			name      string
			status    int
			transient bool
		}{
			{"rate limited", http.StatusTooManyRequests, true},
			{"server error", http.StatusBadGateway, true},
			{"not found", http.StatusNotFound, false},
			{"unauthorized", http.StatusUnauthorized, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Retry-After", "2")
					w.WriteHeader(tt.status)
					fmt.Fprintf(w, `{"error":{"status":%d,"message":"boom"}}`, tt.status)
				}))
				defer server.Close()

				_, err := newTestService(t, server).SearchTracks(context.Background(), "q", 1)
				if err == nil {
					t.Fatal("expected error")
				}
				if IsTransient(err) != tt.transient {
					t.Errorf("IsTransient() = %v, want %v (%v)", IsTransient(err), tt.transient, err)
				}
				wantSentinel := shared.ErrDestinationFatal
				if tt.transient {
					wantSentinel = shared.ErrDestinationTransient
				}
				if !errors.Is(err, wantSentinel) {
					t.Errorf("expected %v, got %v", wantSentinel, err)
				}

				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("expected APIError, got %T", err)
				}
				if apiErr.StatusCode != tt.status || apiErr.Message != "boom" || apiErr.RetryAfter.Seconds() != 2 {
					t.Errorf("unexpected APIError: %+v", apiErr)
				}

				wantDelay := time.Duration(0)
				if tt.status == http.StatusTooManyRequests {
					wantDelay = 2 * time.Second
				}
				var delayer retry.Delayer
				if !errors.As(err, &delayer) || delayer.RetryDelay() != wantDelay {
					t.Errorf("expected retry delay %v, got %v", wantDelay, apiErr.RetryDelay())
				}
			})
		}
	})
}

func TestTrackURI(t *testing.T) {
	if got := TrackURI("abc"); got != "spotify:track:abc" {
		t.Errorf("TrackURI() = %s", got)
	}
	if got := TrackIDFromURI("spotify:track:abc"); got != "abc" {
		t.Errorf("TrackIDFromURI() = %s", got)
	}
	if got := TrackIDFromURI("spotify:episode:abc"); got != "" {
		t.Errorf("expected empty id for episode, got %s", got)
	}
}

func TestIsTransient(t *testing.T) {
	timeout := &timeoutError{}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("nope"), false},
		{"timeout", fmt.Errorf("wrapped: %w", timeout), true},
		{"sentinel", fmt.Errorf("%w: x", shared.ErrDestinationTransient), true},
		{"fatal wins", fmt.Errorf("%w: %w", shared.ErrDestinationFatal, timeout), false},
		{"api 503", &APIError{StatusCode: 503}, true},
		{"api 400", &APIError{StatusCode: 400}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestRefreshableTokenSource(t *testing.T) {
	t.Run("calls callback only when token changes", func(t *testing.T) {
		callCount := 0
		mock := &mockTokenSource{token: &oauth2.Token{AccessToken: "token1"}}
		source := &refreshableTokenSource{source: mock, callback: func(*oauth2.Token) { callCount++ }}

		source.Token()
		source.Token()
		if callCount != 1 {
			t.Errorf("expected callback called once, got %d", callCount)
		}

		mock.token = &oauth2.Token{AccessToken: "token2"}
		token, _ := source.Token()
		if callCount != 2 || token.AccessToken != "token2" {
			t.Errorf("expected second callback with token2, got %d calls, %s", callCount, token.AccessToken)
		}
	})

	t.Run("handles nil callback gracefully", func(t *testing.T) {
		source := &refreshableTokenSource{source: &mockTokenSource{token: &oauth2.Token{AccessToken: "x"}}}
		if _, err := source.Token(); err != nil {
			t.Fatalf("expected no error with nil callback, got %v", err)
		}
	})

	t.Run("propagates source errors", func(t *testing.T) {
		source := &refreshableTokenSource{
			source:   &mockTokenSource{err: errors.New("token source error")},
			callback: func(*oauth2.Token) { t.Error("callback should not be called on error") },
		}
		token, err := source.Token()
		if err == nil || !strings.Contains(err.Error(), "token source error") {
			t.Errorf("expected source error, got %v", err)
		}
		if token != nil {
			t.Error("expected nil token on error")
		}
	})
}

// mockTokenSource implements [oauth2.TokenSource] for testing
type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	return m.token, m.err
}

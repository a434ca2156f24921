// Package services defines the [Destination] interface for the playlist service the sync job writes to
// and implements it for Spotify.
//
// # Destination Interface
//
// The sync job needs four operations: catalog search, cursor-paginated
// playlist reads, positional inserts and removals. Track references sent in
// add/remove batches use the "spotify:track:<id>" form built by [TrackURI].
//
// # Spotify Implementation
//
// [SpotifyService] authenticates with a long-lived refresh token. The
// [oauth2] transport refreshes the access token before any call that needs
// it; refreshed tokens are reported through [WithTokenCallback] so they can
// be persisted to config.
//
// Requests go through a [rate.Limiter] so bursts of searches stay under the
// API's rate limit.
//
// # Error Handling
//
// Non-2xx responses become [*APIError]. Errors are wrapped with
// [shared.ErrDestinationTransient] (429, 5xx, network timeouts) or
// [shared.ErrDestinationFatal] (everything else); use [IsTransient] to decide
// whether to retry.
package services

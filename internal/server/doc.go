// Package server exposes the sync job's status over HTTP and hosts the OAuth
// callback used to obtain a destination refresh token.
//
// # Status Router
//
// [NewRouter] builds a chi router with:
//   - GET /healthz : liveness
//   - GET /checkpoint : durable and transient watermark
//   - GET /runs/last : summary of the last finished run
//   - GET /metrics : Prometheus exposition
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter, exchanges the authorization
// code for a token and sends the result through a channel. It only processes
// one callback.
//
// # Handler Interface
//
// Custom handlers implement [Handler], which adds the list of routes they
// serve so [Mount] can register them on any router.
package server

// Package daemon hosts the long-running reelforge process: it holds the
// single-instance lock, runs the workflow manager, and serves the HTTP API
// the CLI talks to.
//
// The API is a chi router with request id, real ip, and panic recovery
// middleware. When paths.api_token is set every route requires a matching
// bearer token.
package daemon

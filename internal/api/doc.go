// Package api defines the wire-format types shared by the daemon HTTP API and
// the CLI, plus the HTTP client the CLI uses to reach a running daemon.
//
// DTOs use camelCase JSON tags. Internal enums (queue.Status, stage.ID) are
// exposed as lowercase strings and timestamps use RFC3339 with milliseconds.
//
// JobService renders store state into DTOs. The daemon serves it over HTTP
// and the CLI calls it directly when no daemon is reachable, so both paths
// print identical views.
package api

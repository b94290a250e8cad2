// Package main hosts the reelforge CLI.
//
// Read and control commands talk to a running daemon over its HTTP API and
// fall back to opening the job store directly when no daemon answers. Job
// creation and `job run` always work against the store.
package main

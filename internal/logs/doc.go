// Package logs reads per-job log files for `reelforge job logs`.
//
// Tail returns the last N lines plus a byte offset; Follow polls from that
// offset and hands each batch of new lines to a callback until the context
// ends. Memory use is bounded by the requested line count.
package logs

// Package ffprobe wraps ffprobe JSON output and turns it into the video
// metadata recorded on new jobs.
package ffprobe

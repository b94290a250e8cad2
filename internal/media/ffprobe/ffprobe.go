package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"reelforge/internal/queue"
)

// Result is the parsed ffprobe JSON for one file.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes one stream in the container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format is container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Inspect runs ffprobe against path and decodes its JSON report.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// PrimaryVideo returns the first video stream.
func (r Result) PrimaryVideo() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration, falling back to the
// video stream duration. It is 0 when neither is reported and NaN when the
// value is unparsable.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d != 0 {
		return d
	}
	if video, ok := r.PrimaryVideo(); ok {
		return parseFloat(video.Duration)
	}
	return 0
}

// SizeBytes returns the reported container size, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// ContainerFormat picks a short format name. ffprobe reports demuxer lists
// such as "mov,mp4,m4a,3gp,3g2,mj2"; the file extension decides when it is
// one of them.
func (r Result) ContainerFormat() string {
	names := strings.Split(strings.ToLower(strings.TrimSpace(r.Format.FormatName)), ",")
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(r.Format.Filename)), ".")
	for _, name := range names {
		if ext != "" && strings.TrimSpace(name) == ext {
			return ext
		}
	}
	return strings.TrimSpace(names[0])
}

// VideoMetadata converts the probe into job metadata. It fails when the file
// has no video stream or no usable duration.
func (r Result) VideoMetadata() (queue.VideoMetadata, error) {
	video, ok := r.PrimaryVideo()
	if !ok {
		return queue.VideoMetadata{}, errors.New("no video stream found")
	}
	duration := r.DurationSeconds()
	if math.IsNaN(duration) || duration <= 0 {
		return queue.VideoMetadata{}, fmt.Errorf("invalid duration %q", r.Format.Duration)
	}
	format := r.ContainerFormat()
	if format == "" {
		return queue.VideoMetadata{}, errors.New("unknown container format")
	}
	return queue.VideoMetadata{
		DurationSeconds: duration,
		Resolution:      queue.Resolution{Width: video.Width, Height: video.Height},
		Format:          format,
		SizeBytes:       r.SizeBytes(),
	}, nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || cleaned == "N/A" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

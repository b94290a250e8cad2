package ffprobe

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const sampleProbe = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080, "duration": "61.5"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio"}
  ],
  "format": {
    "filename": "/uploads/raw.MP4",
    "duration": "61.500000",
    "size": "52428800",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2"
  }
}`

func TestVideoMetadata(t *testing.T) {
	result, err := Parse([]byte(sampleProbe))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	meta, err := result.VideoMetadata()
	if err != nil {
		t.Fatalf("VideoMetadata: %v", err)
	}
	if meta.DurationSeconds != 61.5 || meta.Resolution.Width != 1920 || meta.Resolution.Height != 1080 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.Format != "mp4" {
		t.Fatalf("expected mp4, got %q", meta.Format)
	}
	if meta.SizeBytes != 52428800 {
		t.Fatalf("unexpected size %d", meta.SizeBytes)
	}
}

func TestContainerFormatFallsBackToFirstName(t *testing.T) {
	result := Result{Format: Format{Filename: "clip.bin", FormatName: "matroska,webm"}}
	if got := result.ContainerFormat(); got != "matroska" {
		t.Fatalf("expected matroska, got %q", got)
	}
}

func TestVideoMetadataRejectsAudioOnly(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio"}},
		Format:  Format{Duration: "10", FormatName: "mp3"},
	}
	if _, err := result.VideoMetadata(); err == nil {
		t.Fatal("expected error for audio-only file")
	}
}

func TestDurationFallbacks(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", Duration: "12.5"}},
		Format:  Format{Duration: "N/A"},
	}
	if got := result.DurationSeconds(); got != 12.5 {
		t.Fatalf("expected stream duration fallback, got %v", got)
	}
	bad := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if !math.IsNaN(bad.DurationSeconds()) {
		t.Fatalf("expected NaN, got %v", bad.DurationSeconds())
	}
	if bad.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", bad.SizeBytes())
	}
	if _, err := bad.VideoMetadata(); err == nil {
		t.Fatal("expected error without video stream")
	}
}

func TestInspectUsesBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffprobe")
	body := "#!/bin/sh\ncat <<'JSON'\n" + sampleProbe + "\nJSON\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	result, err := Inspect(context.Background(), script, "/uploads/raw.MP4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if _, ok := result.PrimaryVideo(); !ok {
		t.Fatal("expected a video stream")
	}
}

func TestInspectRejectsEmptyPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "ffprobe", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

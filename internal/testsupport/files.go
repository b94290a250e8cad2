package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/fileutil"
	"reelforge/internal/queue"
)

// WriteUpload stores a placeholder upload of size bytes under the
// configured base directory and returns its path.
func WriteUpload(t testing.TB, cfg *config.Config, name string, size int) string {
	t.Helper()

	path := filepath.Join(BaseDir(cfg), "uploads", name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir uploads: %v", err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, max(size, 1)), 0o644); err != nil {
		t.Fatalf("write upload %s: %v", name, err)
	}
	return path
}

// UploadMetadata returns SampleMetadata with the checksum and size of the
// file at path.
func UploadMetadata(t testing.TB, path string) queue.VideoMetadata {
	t.Helper()

	sum, size, err := fileutil.SHA256File(path)
	if err != nil {
		t.Fatalf("checksum %s: %v", path, err)
	}
	meta := SampleMetadata()
	meta.Checksum = sum
	meta.SizeBytes = size
	return meta
}

package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSHA256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	sum, size, err := SHA256File(path)
	if err != nil {
		t.Fatal(err)
	}
	if size != 11 {
		t.Fatalf("size = %d, want 11", size)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if sum != want {
		t.Fatalf("sum = %s, want %s", sum, want)
	}
}

func TestSHA256FileMissing(t *testing.T) {
	if _, _, err := SHA256File(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "job")
	path := filepath.Join(dir, "plan.json")

	in := map[string]any{"title": "desk", "segments": []any{"a", "b"}}
	if err := WriteJSONAtomic(path, in); err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := ReadJSON(path, &out); err != nil {
		t.Fatal(err)
	}
	if out["title"] != "desk" {
		t.Fatalf("unexpected content %v", out)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the final file, found %d entries", len(entries))
	}
}

func TestWriteJSONAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := WriteJSONAtomic(path, []int{1}); err != nil {
		t.Fatal(err)
	}
	if err := WriteJSONAtomic(path, []int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	var out []int
	if err := ReadJSON(path, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected replaced content, got %v", out)
	}
}

func TestReadJSONInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := ReadJSON(path, &out); err == nil {
		t.Fatal("expected decode error")
	}
}

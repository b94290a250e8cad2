package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPruneLogsHonorsPatternAgeAndKeep(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := now.Add(-10 * 24 * time.Hour)

	files := map[string]time.Time{
		"reelforged-1.log": old,
		"reelforged-2.log": old,
		"reelforged-3.log": now,
		"notes.txt":        old,
	}
	for name, mtime := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	current := filepath.Join(dir, "reelforged-2.log")

	removed := PruneLogs(nil, 7*24*time.Hour, now,
		RetentionTarget{Dir: dir, Pattern: "reelforged-*.log", Keep: []string{current}},
		RetentionTarget{Dir: filepath.Join(dir, "missing"), Pattern: "*.log"},
	)
	if removed != 1 {
		t.Fatalf("expected one file removed, got %d", removed)
	}
	for name, wantExists := range map[string]bool{
		"reelforged-1.log": false,
		"reelforged-2.log": true,
		"reelforged-3.log": true,
		"notes.txt":        true,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		if exists := err == nil; exists != wantExists {
			t.Fatalf("%s exists=%v, want %v", name, exists, wantExists)
		}
	}
}

func TestPruneLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reelforged-1.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if removed := PruneLogs(nil, 0, time.Now().Add(365*24*time.Hour), RetentionTarget{Dir: dir}); removed != 0 {
		t.Fatalf("zero retention should keep everything, removed %d", removed)
	}
}

// ABOUTME: Tests for checkpoint save/load round-trips and the missing-file fresh-run contract.
// ABOUTME: Round-trip equality holds up to the timestamp.
package attractor

import (
	"path/filepath"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := NewContext()
	ctx.Set("key", "value")
	ctx.Set("count", float64(3)) // JSON numbers decode as float64
	ctx.AppendLog("first")

	cp := NewCheckpoint(ctx, "node4", []string{"n1", "n2", "n3"}, map[string]int{"n2": 1})
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := cp.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected checkpoint, got nil")
	}
	if loaded.CurrentNode != "node4" {
		t.Errorf("currentNode = %q", loaded.CurrentNode)
	}
	if len(loaded.CompletedNodes) != 3 || loaded.CompletedNodes[0] != "n1" {
		t.Errorf("completedNodes = %v", loaded.CompletedNodes)
	}
	if loaded.NodeRetries["n2"] != 1 {
		t.Errorf("nodeRetries = %v", loaded.NodeRetries)
	}
	if loaded.Context["key"] != "value" || loaded.Context["count"] != float64(3) {
		t.Errorf("context = %v", loaded.Context)
	}
	if len(loaded.Logs) != 1 || loaded.Logs[0] != "first" {
		t.Errorf("logs = %v", loaded.Logs)
	}
}

func TestLoadCheckpointMissingFileIsFreshRun(t *testing.T) {
	cp, err := LoadCheckpoint(filepath.Join(t.TempDir(), "checkpoint.json"))
	if err != nil {
		t.Fatalf("missing checkpoint must not error: %v", err)
	}
	if cp != nil {
		t.Fatal("missing checkpoint should return nil")
	}
}

func TestCheckpointPath(t *testing.T) {
	if got := CheckpointPath("/logs/run1"); got != filepath.Join("/logs/run1", "checkpoint.json") {
		t.Errorf("unexpected path %q", got)
	}
}

func TestCheckpointSaveIsAtomicOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := CheckpointPath(dir)
	ctx := NewContext()

	first := NewCheckpoint(ctx, "a", []string{"a"}, nil)
	if err := first.Save(path); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second := NewCheckpoint(ctx, "b", []string{"a", "b"}, nil)
	if err := second.Save(path); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.CurrentNode != "b" || len(loaded.CompletedNodes) != 2 {
		t.Errorf("expected latest checkpoint, got %+v", loaded)
	}
}

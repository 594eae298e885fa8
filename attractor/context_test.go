// ABOUTME: Tests for the ordered context store: get/set/delete, snapshots, clones, and logs.
// ABOUTME: Verifies clone independence and insertion-order preservation.
package attractor

import "testing"

func TestContextSetGet(t *testing.T) {
	ctx := NewContext()
	ctx.Set("a", 1)
	if got := ctx.Get("a", nil); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	if got := ctx.Get("missing", "fallback"); got != "fallback" {
		t.Errorf("expected default, got %v", got)
	}
}

func TestContextGetString(t *testing.T) {
	ctx := NewContext()
	ctx.Set("s", "text")
	ctx.Set("n", 42)
	if got := ctx.GetString("s", ""); got != "text" {
		t.Errorf("expected text, got %q", got)
	}
	if got := ctx.GetString("n", ""); got != "42" {
		t.Errorf("expected stringified 42, got %q", got)
	}
	if got := ctx.GetString("missing", "d"); got != "d" {
		t.Errorf("expected default, got %q", got)
	}
}

func TestContextHasDelete(t *testing.T) {
	ctx := NewContext()
	ctx.Set("a", 1)
	if !ctx.Has("a") {
		t.Error("expected Has(a)")
	}
	ctx.Delete("a")
	if ctx.Has("a") {
		t.Error("expected a deleted")
	}
	ctx.Delete("a") // no-op
}

func TestContextKeysOrdered(t *testing.T) {
	ctx := NewContext()
	ctx.Set("z", 1)
	ctx.Set("a", 2)
	ctx.Set("m", 3)
	ctx.Set("z", 4) // update does not reorder
	keys := ctx.Keys()
	if len(keys) != 3 || keys[0] != "z" || keys[1] != "a" || keys[2] != "m" {
		t.Errorf("expected insertion order [z a m], got %v", keys)
	}
}

func TestContextCloneIndependent(t *testing.T) {
	ctx := NewContext()
	ctx.Set("shared", "original")
	ctx.AppendLog("one")

	cloned := ctx.Clone()
	cloned.Set("shared", "changed")
	cloned.Set("new", true)
	cloned.AppendLog("two")
	ctx.Set("only_parent", 1)

	if got := ctx.GetString("shared", ""); got != "original" {
		t.Errorf("parent mutated by clone: %q", got)
	}
	if cloned.Has("only_parent") {
		t.Error("clone mutated by parent")
	}
	if len(ctx.Logs()) != 1 || len(cloned.Logs()) != 2 {
		t.Errorf("log buffers should be independent: %d %d", len(ctx.Logs()), len(cloned.Logs()))
	}
}

func TestContextApplyUpdates(t *testing.T) {
	ctx := NewContext()
	ctx.Set("a", 1)
	ctx.ApplyUpdates(map[string]any{"a": 2, "b": 3})
	if ctx.Get("a", nil) != 2 || ctx.Get("b", nil) != 3 {
		t.Errorf("updates not applied: %v", ctx.Snapshot())
	}
}

func TestContextSnapshotIsCopy(t *testing.T) {
	ctx := NewContext()
	ctx.Set("a", 1)
	snap := ctx.Snapshot()
	snap["a"] = 99
	if ctx.Get("a", nil) != 1 {
		t.Error("snapshot mutation must not affect the context")
	}
}

func TestContextFromSnapshotRoundTrip(t *testing.T) {
	ctx := NewContext()
	ctx.Set("a", 1)
	ctx.Set("b", "two")
	restored := FromSnapshot(ctx.Snapshot())
	if restored.Get("a", nil) != 1 || restored.GetString("b", "") != "two" {
		t.Errorf("round trip lost values: %v", restored.Snapshot())
	}
}

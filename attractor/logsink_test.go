// ABOUTME: Tests for the filesystem and SQLite log sinks: append, tail, summarize, and run indexing.
// ABOUTME: The engine-subscription path is exercised through a real run.
package attractor

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFSLogSinkAppendTail(t *testing.T) {
	sink, err := NewFSLogSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSLogSink: %v", err)
	}
	defer sink.Close()

	for _, typ := range []EventType{EventPipelineStarted, EventStageStarted, EventStageCompleted} {
		if err := sink.Append("run1", Event{ID: string(typ), Type: typ}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := sink.Tail("run1", 0)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(all) != 3 || all[0].Type != EventPipelineStarted {
		t.Errorf("unexpected events: %+v", all)
	}

	last, err := sink.Tail("run1", 1)
	if err != nil {
		t.Fatalf("Tail(1): %v", err)
	}
	if len(last) != 1 || last[0].Type != EventStageCompleted {
		t.Errorf("unexpected tail: %+v", last)
	}
}

func TestFSLogSinkSummarize(t *testing.T) {
	sink, err := NewFSLogSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSLogSink: %v", err)
	}
	_ = sink.Append("run1", Event{ID: "1", Type: EventStageStarted})
	_ = sink.Append("run1", Event{ID: "2", Type: EventStageStarted})
	_ = sink.Append("run1", Event{ID: "3", Type: EventStageCompleted})

	summary, err := sink.Summarize("run1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.TotalEvents != 3 || summary.ByType[EventStageStarted] != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.FirstEvent == nil || summary.LastEvent == nil {
		t.Error("expected first/last event timestamps")
	}
}

func TestFSLogSinkRunsIndex(t *testing.T) {
	sink, err := NewFSLogSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSLogSink: %v", err)
	}
	_ = sink.Append("run1", Event{ID: "1", Type: EventStageStarted})
	_ = sink.Append("run2", Event{ID: "2", Type: EventStageStarted})

	runs, err := sink.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 indexed runs, got %d", len(runs))
	}
}

func TestFSLogSinkSubscribedToEngine(t *testing.T) {
	root := t.TempDir()
	sink, err := NewFSLogSink(root)
	if err != nil {
		t.Fatalf("NewFSLogSink: %v", err)
	}

	engine := NewEngine(EngineConfig{RunID: "test-run"})
	sink.SubscribeEngine(engine, "test-run")

	if _, err := engine.Run(context.Background(), linearSource); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	events, err := sink.Tail("test-run", 0)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected persisted events")
	}
	if events[0].Type != EventPipelineStarted {
		t.Errorf("first event should be pipeline_started, got %s", events[0].Type)
	}
	if events[len(events)-1].Type != EventPipelineCompleted {
		t.Errorf("last event should be pipeline_completed, got %s", events[len(events)-1].Type)
	}
}

func TestSqliteLogSinkRoundTrip(t *testing.T) {
	sink, err := OpenSqliteLogSink(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("OpenSqliteLogSink: %v", err)
	}
	defer sink.Close()

	_ = sink.Append("run1", Event{ID: "a", Type: EventPipelineStarted})
	_ = sink.Append("run1", Event{ID: "b", Type: EventStageStarted, NodeID: "n", Data: map[string]any{"index": 1}})
	_ = sink.Append("run2", Event{ID: "c", Type: EventPipelineStarted})

	events, err := sink.Tail("run1", 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for run1, got %d", len(events))
	}
	if events[1].NodeID != "n" {
		t.Errorf("node id lost: %+v", events[1])
	}

	summary, err := sink.Summarize("run1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.TotalEvents != 2 || summary.ByType[EventPipelineStarted] != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

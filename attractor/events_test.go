// ABOUTME: Tests for the event emitter: subscriber ordering, stream buffering, and cancellation.
// ABOUTME: Verifies timestamps and IDs are stamped and that slow streams drop oldest events.
package attractor

import (
	"testing"
)

func TestEmitterSubscriberOrder(t *testing.T) {
	emitter := NewEventEmitter()
	var seen []EventType
	emitter.Subscribe(func(evt Event) {
		seen = append(seen, evt.Type)
	})

	emitter.Emit(Event{Type: EventPipelineStarted})
	emitter.Emit(Event{Type: EventStageStarted})
	emitter.Emit(Event{Type: EventPipelineCompleted})

	want := []EventType{EventPipelineStarted, EventStageStarted, EventPipelineCompleted}
	if len(seen) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestEmitterStampsTimestampAndID(t *testing.T) {
	emitter := NewEventEmitter()
	var got Event
	emitter.Subscribe(func(evt Event) { got = evt })
	emitter.Emit(Event{Type: EventStageStarted})
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be stamped")
	}
	if got.ID == "" {
		t.Error("event id should be stamped")
	}
}

func TestEmitterStreamDelivers(t *testing.T) {
	emitter := NewEventEmitter()
	ch, cancel := emitter.Stream(8)
	defer cancel()

	emitter.Emit(Event{Type: EventStageStarted, NodeID: "a"})
	emitter.Emit(Event{Type: EventStageCompleted, NodeID: "a"})

	first := <-ch
	second := <-ch
	if first.Type != EventStageStarted || second.Type != EventStageCompleted {
		t.Errorf("unexpected stream order: %s %s", first.Type, second.Type)
	}
}

func TestEmitterStreamDropsOldestWhenFull(t *testing.T) {
	emitter := NewEventEmitter()
	ch, cancel := emitter.Stream(2)
	defer cancel()

	emitter.Emit(Event{Type: EventStageStarted, NodeID: "1"})
	emitter.Emit(Event{Type: EventStageStarted, NodeID: "2"})
	emitter.Emit(Event{Type: EventStageStarted, NodeID: "3"})

	first := <-ch
	second := <-ch
	if first.NodeID != "2" || second.NodeID != "3" {
		t.Errorf("expected oldest dropped, got %s %s", first.NodeID, second.NodeID)
	}
}

func TestEmitterStreamCancel(t *testing.T) {
	emitter := NewEventEmitter()
	ch, cancel := emitter.Stream(2)
	cancel()
	if _, open := <-ch; open {
		t.Error("cancelled stream channel should be closed")
	}
	// Emitting after cancel must not panic.
	emitter.Emit(Event{Type: EventStageStarted})
	cancel() // double cancel is a no-op
}

// ABOUTME: Typed pipeline event stream: an emitter with synchronous subscribers and bounded-queue pull streams.
// ABOUTME: Event types cover pipeline, stage, parallel, interview, checkpoint, and loop-restart lifecycle points.
package attractor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates pipeline events.
type EventType string

const (
	EventPipelineStarted         EventType = "pipeline_started"
	EventPipelineCompleted       EventType = "pipeline_completed"
	EventPipelineFailed          EventType = "pipeline_failed"
	EventStageStarted            EventType = "stage_started"
	EventStageCompleted          EventType = "stage_completed"
	EventStageFailed             EventType = "stage_failed"
	EventStageRetrying           EventType = "stage_retrying"
	EventParallelStarted         EventType = "parallel_started"
	EventParallelBranchStarted   EventType = "parallel_branch_started"
	EventParallelBranchCompleted EventType = "parallel_branch_completed"
	EventParallelCompleted       EventType = "parallel_completed"
	EventInterviewStarted        EventType = "interview_started"
	EventInterviewCompleted      EventType = "interview_completed"
	EventInterviewTimeout        EventType = "interview_timeout"
	EventCheckpointSaved         EventType = "checkpoint_saved"
	EventCheckpointResumed       EventType = "checkpoint_resumed"
	EventLoopRestarted           EventType = "loop_restarted"
)

// Event is a single pipeline event. Data carries event-specific fields keyed
// by snake_case names.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	NodeID    string         `json:"node_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subscriber receives events synchronously in emission order.
type Subscriber func(Event)

// EventEmitter fans out events to subscribers and bounded-queue streams.
// Emissions are serialized; events on a single traversal are delivered in
// emission order to every subscriber.
type EventEmitter struct {
	mu          sync.Mutex
	subscribers []Subscriber
	streams     []*eventStream
}

type eventStream struct {
	ch     chan Event
	closed bool
}

// NewEventEmitter creates an emitter with no subscribers.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{}
}

// Subscribe registers a synchronous subscriber.
func (e *EventEmitter) Subscribe(fn Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// Stream returns a bounded-queue pull channel of events plus a cancel
// function. When the queue is full the oldest event is dropped to make room,
// so a slow consumer never blocks the traversal.
func (e *EventEmitter) Stream(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	s := &eventStream{ch: make(chan Event, buffer)}

	e.mu.Lock()
	e.streams = append(e.streams, s)
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if s.closed {
			return
		}
		s.closed = true
		close(s.ch)
		for i, other := range e.streams {
			if other == s {
				e.streams = append(e.streams[:i], e.streams[i+1:]...)
				break
			}
		}
	}
	return s.ch, cancel
}

// Emit delivers an event to all subscribers and streams, stamping a
// timestamp and ID if unset.
func (e *EventEmitter) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, fn := range e.subscribers {
		fn(evt)
	}
	for _, s := range e.streams {
		if s.closed {
			continue
		}
		for {
			select {
			case s.ch <- evt:
			default:
				// Queue full: drop the oldest and retry.
				select {
				case <-s.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

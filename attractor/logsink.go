// ABOUTME: LogSink interface for persisting the event stream per run, with a filesystem JSONL implementation.
// ABOUTME: Each run gets <root>/<runID>/events.jsonl plus an index.json for fast enumeration.
package attractor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogSink persists pipeline events per run.
type LogSink interface {
	// Append writes an event to the run's log.
	Append(runID string, event Event) error

	// Tail returns the last n events for a run.
	Tail(runID string, n int) ([]Event, error)

	// Summarize returns aggregate statistics for a run.
	Summarize(runID string) (*EventSummary, error)

	// Close releases resources held by the sink.
	Close() error
}

// EventSummary holds aggregate statistics about a run's events.
type EventSummary struct {
	RunID       string            `json:"run_id"`
	TotalEvents int               `json:"total_events"`
	ByType      map[EventType]int `json:"by_type"`
	FirstEvent  *time.Time        `json:"first_event,omitempty"`
	LastEvent   *time.Time        `json:"last_event,omitempty"`
}

// RunIndexEntry is per-run metadata kept in index.json.
type RunIndexEntry struct {
	ID         string    `json:"id"`
	StartTime  time.Time `json:"start_time"`
	EventCount int       `json:"event_count"`
}

// FSLogSink stores each run's events as a JSONL file under a root directory.
type FSLogSink struct {
	mu   sync.Mutex
	root string
}

// NewFSLogSink creates a sink rooted at the given directory.
func NewFSLogSink(root string) (*FSLogSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create log root: %w", err)
	}
	return &FSLogSink{root: root}, nil
}

// SubscribeEngine attaches the sink to an engine's event stream for a run.
func (s *FSLogSink) SubscribeEngine(e *Engine, runID string) {
	e.Events().Subscribe(func(evt Event) {
		_ = s.Append(runID, evt)
	})
}

func (s *FSLogSink) runDir(runID string) string {
	return filepath.Join(s.root, runID)
}

// Append writes one event as a JSON line.
func (s *FSLogSink) Append(runID string, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.runDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	line, err := json.Marshal(event)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}

	return s.updateIndex(runID, event.Timestamp)
}

// updateIndex bumps the run's entry in index.json. Caller holds the lock.
func (s *FSLogSink) updateIndex(runID string, ts time.Time) error {
	indexPath := filepath.Join(s.root, "index.json")

	index := make(map[string]RunIndexEntry)
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = json.Unmarshal(data, &index)
	}

	entry, ok := index[runID]
	if !ok {
		entry = RunIndexEntry{ID: runID, StartTime: ts}
	}
	entry.EventCount++
	index[runID] = entry

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(indexPath, data, 0o644)
}

// load reads all events for a run.
func (s *FSLogSink) load(runID string) ([]Event, error) {
	f, err := os.Open(filepath.Join(s.runDir(runID), "events.jsonl"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var evt Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			continue
		}
		events = append(events, evt)
	}
	return events, scanner.Err()
}

// Tail returns the last n events for a run.
func (s *FSLogSink) Tail(runID string, n int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load(runID)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(events) {
		return events, nil
	}
	return events[len(events)-n:], nil
}

// Summarize aggregates a run's event log.
func (s *FSLogSink) Summarize(runID string) (*EventSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load(runID)
	if err != nil {
		return nil, err
	}

	summary := &EventSummary{
		RunID:       runID,
		TotalEvents: len(events),
		ByType:      make(map[EventType]int),
	}
	for _, evt := range events {
		summary.ByType[evt.Type]++
		ts := evt.Timestamp
		if summary.FirstEvent == nil || ts.Before(*summary.FirstEvent) {
			t := ts
			summary.FirstEvent = &t
		}
		if summary.LastEvent == nil || ts.After(*summary.LastEvent) {
			t := ts
			summary.LastEvent = &t
		}
	}
	return summary, nil
}

// Runs returns the run index entries.
func (s *FSLogSink) Runs() ([]RunIndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.root, "index.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	index := make(map[string]RunIndexEntry)
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}
	entries := make([]RunIndexEntry, 0, len(index))
	for _, entry := range index {
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close is a no-op for the filesystem sink.
func (s *FSLogSink) Close() error { return nil }

// ABOUTME: SQLite-backed LogSink keeping the event stream queryable across runs in a single database file.
// ABOUTME: The database is a rebuildable mirror of the event stream, not the source of truth.
package attractor

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteLogSink persists events into a SQLite database.
type SqliteLogSink struct {
	db *sql.DB
}

// OpenSqliteLogSink opens or creates the event database at the given path.
func OpenSqliteLogSink(path string) (*SqliteLogSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			node_id TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL DEFAULT '{}',
			timestamp TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, timestamp);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate events schema: %w", err)
	}

	return &SqliteLogSink{db: db}, nil
}

// SubscribeEngine attaches the sink to an engine's event stream for a run.
func (s *SqliteLogSink) SubscribeEngine(e *Engine, runID string) {
	e.Events().Subscribe(func(evt Event) {
		_ = s.Append(runID, evt)
	})
}

// Append inserts one event row.
func (s *SqliteLogSink) Append(runID string, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO events (id, run_id, type, node_id, data, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, runID, string(event.Type), event.NodeID, string(data),
		event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Tail returns the last n events for a run in chronological order.
func (s *SqliteLogSink) Tail(runID string, n int) ([]Event, error) {
	if n <= 0 {
		n = 100
	}
	rows, err := s.db.Query(
		`SELECT id, type, node_id, data, timestamp FROM events
		 WHERE run_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		runID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		var typ, data, ts string
		if err := rows.Scan(&evt.ID, &typ, &evt.NodeID, &data, &ts); err != nil {
			return nil, err
		}
		evt.Type = EventType(typ)
		if err := json.Unmarshal([]byte(data), &evt.Data); err != nil {
			evt.Data = nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			evt.Timestamp = parsed
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Summarize aggregates a run's event rows.
func (s *SqliteLogSink) Summarize(runID string) (*EventSummary, error) {
	rows, err := s.db.Query(
		`SELECT type, COUNT(*), MIN(timestamp), MAX(timestamp) FROM events
		 WHERE run_id = ? GROUP BY type`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &EventSummary{RunID: runID, ByType: make(map[EventType]int)}
	for rows.Next() {
		var typ, minTS, maxTS string
		var count int
		if err := rows.Scan(&typ, &count, &minTS, &maxTS); err != nil {
			return nil, err
		}
		summary.ByType[EventType(typ)] = count
		summary.TotalEvents += count
		if parsed, err := time.Parse(time.RFC3339Nano, minTS); err == nil {
			if summary.FirstEvent == nil || parsed.Before(*summary.FirstEvent) {
				summary.FirstEvent = &parsed
			}
		}
		if parsed, err := time.Parse(time.RFC3339Nano, maxTS); err == nil {
			if summary.LastEvent == nil || parsed.After(*summary.LastEvent) {
				summary.LastEvent = &parsed
			}
		}
	}
	return summary, rows.Err()
}

// Close closes the database.
func (s *SqliteLogSink) Close() error {
	return s.db.Close()
}

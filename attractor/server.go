// ABOUTME: HTTP monitor server exposing run status, event tails, an SSE stream, and a pending-question endpoint.
// ABOUTME: The HTTPInterviewer parks questions for remote answering, backing human gates over HTTP.
package attractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MonitorServer serves observability endpoints for a running engine.
type MonitorServer struct {
	engine      *Engine
	sink        LogSink
	interviewer *HTTPInterviewer
	runID       string

	mu     sync.RWMutex
	status string
	last   string
}

// NewMonitorServer creates a monitor for one engine run. The sink may be nil
// when event history endpoints are not needed.
func NewMonitorServer(engine *Engine, sink LogSink, runID string) *MonitorServer {
	s := &MonitorServer{
		engine:      engine,
		sink:        sink,
		interviewer: NewHTTPInterviewer(),
		runID:       runID,
		status:      "idle",
	}
	engine.Events().Subscribe(s.observe)
	return s
}

// Interviewer returns the HTTP-backed interviewer for wiring into the
// engine configuration.
func (s *MonitorServer) Interviewer() *HTTPInterviewer {
	return s.interviewer
}

// observe tracks coarse run status from the event stream.
func (s *MonitorServer) observe(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch evt.Type {
	case EventPipelineStarted:
		s.status = "running"
	case EventPipelineCompleted:
		s.status = "completed"
	case EventPipelineFailed:
		s.status = "failed"
	case EventStageStarted:
		s.last = evt.NodeID
	}
}

// Router builds the chi router for the monitor endpoints.
func (s *MonitorServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", s.handleStatus)
	r.Get("/events", s.handleEvents)
	r.Get("/events/stream", s.handleEventStream)
	r.Get("/question", s.handleQuestion)
	r.Post("/answer", s.handleAnswer)

	return r
}

func (s *MonitorServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	payload := map[string]any{
		"run_id":    s.runID,
		"status":    s.status,
		"last_node": s.last,
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, payload)
}

func (s *MonitorServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no log sink configured"})
		return
	}
	events, err := s.sink.Tail(s.runID, 200)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleEventStream streams events as server-sent events.
func (s *MonitorServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.engine.Events().Stream(256)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		}
	}
}

func (s *MonitorServer) handleQuestion(w http.ResponseWriter, r *http.Request) {
	q, ok := s.interviewer.Pending()
	if !ok {
		writeJSON(w, http.StatusNoContent, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      q.ID,
		"type":    string(q.Type),
		"text":    q.Text,
		"options": q.Options,
		"node_id": q.NodeID,
	})
}

func (s *MonitorServer) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID             string `json:"id"`
		Value          string `json:"value"`
		SelectedOption string `json:"selected_option"`
		Text           string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	answer := Answer{
		Value:          AnswerValue(body.Value),
		SelectedOption: body.SelectedOption,
		Text:           body.Text,
	}
	if !s.interviewer.Answer(body.ID, answer) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "no pending question with that id"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// HTTPInterviewer parks one question at a time for answering over HTTP.
type HTTPInterviewer struct {
	mu      sync.Mutex
	pending *Question
	answerC chan Answer
}

// NewHTTPInterviewer creates an HTTP-backed interviewer.
func NewHTTPInterviewer() *HTTPInterviewer {
	return &HTTPInterviewer{}
}

// Ask parks the question until an answer arrives via Answer or the context
// is cancelled.
func (h *HTTPInterviewer) Ask(ctx context.Context, q Question) (Answer, error) {
	h.mu.Lock()
	if h.pending != nil {
		h.mu.Unlock()
		return Answer{}, fmt.Errorf("a question is already pending")
	}
	parked := q
	h.pending = &parked
	ch := make(chan Answer, 1)
	h.answerC = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.pending = nil
		h.answerC = nil
		h.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return Answer{}, ctx.Err()
	case answer := <-ch:
		return answer, nil
	}
}

// Pending returns the currently parked question, if any.
func (h *HTTPInterviewer) Pending() (Question, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return Question{}, false
	}
	return *h.pending, true
}

// Answer delivers an answer to the pending question. Returns false when no
// matching question is parked.
func (h *HTTPInterviewer) Answer(id string, answer Answer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil || (id != "" && h.pending.ID != id) || h.answerC == nil {
		return false
	}
	h.answerC <- answer
	return true
}

// ABOUTME: Pipeline execution engine: parse, build, transform, validate, then traverse the graph.
// ABOUTME: Orchestrates handler dispatch, retries, timeouts, fidelity projection, checkpointing, and resume.
package attractor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/2389-research/attractor/dot"
)

// defaultMaxIterations bounds a single traversal; exceeding it means the
// graph is cycling without making progress.
const defaultMaxIterations = 10_000

// EngineConfig holds configuration for the pipeline execution engine.
type EngineConfig struct {
	LogsRoot      string               // checkpoint location; empty disables checkpointing and resume
	ArtifactDir   string               // base directory for file-backed artifacts; empty keeps artifacts in memory
	RunID         string               // run identifier; a ULID is generated when empty
	Handlers      *HandlerRegistry     // nil = DefaultHandlerRegistry
	Backend       CodergenBackend      // capability behind codergen nodes
	Interviewer   Interviewer          // capability behind human gates
	Env           ExecutionEnvironment // capability behind tool nodes
	Transforms    []Transform          // nil = DefaultTransforms (with VarOverrides applied)
	VarOverrides  map[string]string    // variable values overriding graph-declared defaults
	RetryPreset   string               // backoff preset name; empty = standard
	MaxIterations int                  // 0 = defaultMaxIterations
	Spans         SpanManager          // nil = NoopSpanManager
	MaxParallel   int                  // concurrent branch cap; 0 = 4
}

// RunResult is the final state of a traversal.
type RunResult struct {
	Status         StageStatus
	Reason         string
	CompletedNodes []string
	LastNode       string
	Context        *Context
}

// Engine runs attractor graph pipelines.
type Engine struct {
	config  EngineConfig
	emitter *EventEmitter
}

// NewEngine creates an engine with the given configuration.
func NewEngine(config EngineConfig) *Engine {
	return &Engine{config: config, emitter: NewEventEmitter()}
}

// Events returns the engine's event emitter for subscribing to the run.
func (e *Engine) Events() *EventEmitter {
	return e.emitter
}

// Run parses DOT source and executes the resulting graph. When a logs root
// is configured the source is saved alongside the checkpoint so Resume needs
// only the logs root.
func (e *Engine) Run(ctx context.Context, source string) (*RunResult, error) {
	ast, err := dot.Parse(source)
	if err != nil {
		return nil, err
	}
	graph, err := Build(ast)
	if err != nil {
		return nil, err
	}
	if e.config.LogsRoot != "" {
		if err := SaveGraphSource(e.config.LogsRoot, source); err != nil {
			return nil, err
		}
	}
	return e.RunGraph(ctx, graph)
}

// Resume restarts an interrupted run from its logs root: the graph source
// saved by the original Run is reloaded and traversal re-enters at the
// checkpointed node. Fails when the logs root holds no saved source or no
// checkpoint.
func (e *Engine) Resume(ctx context.Context) (*RunResult, error) {
	if e.config.LogsRoot == "" {
		return nil, fmt.Errorf("resume requires a logs root")
	}
	source, err := LoadGraphSource(e.config.LogsRoot)
	if err != nil {
		return nil, fmt.Errorf("no saved graph source under %s: %w", e.config.LogsRoot, err)
	}
	cp, err := LoadCheckpoint(CheckpointPath(e.config.LogsRoot))
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("no checkpoint to resume under %s", e.config.LogsRoot)
	}
	return e.Run(ctx, source)
}

// RunGraph transforms, validates, and executes an already-built graph,
// resuming from a checkpoint when one exists under the logs root.
func (e *Engine) RunGraph(ctx context.Context, graph *Graph) (*RunResult, error) {
	transforms := e.config.Transforms
	if transforms == nil {
		transforms = []Transform{
			&VariableExpansionTransform{Overrides: e.config.VarOverrides},
			&StylesheetTransform{},
		}
	}
	graph = ApplyTransforms(graph, transforms...)

	if _, err := ValidateOrRaise(graph); err != nil {
		return nil, err
	}

	runID := e.config.RunID
	if runID == "" {
		runID = ulid.Make().String()
	}

	spans := e.config.Spans
	if spans == nil {
		spans = NoopSpanManager()
	}

	registry := e.config.Handlers
	if registry == nil {
		registry = DefaultHandlerRegistry()
	}

	svc := &Services{
		Backend:     e.config.Backend,
		Interviewer: e.config.Interviewer,
		Env:         e.config.Env,
		Artifacts:   NewArtifactStore(e.config.ArtifactDir),
		Events:      e.emitter,
		Graph:       graph,
	}

	t := &traversal{
		engine:      e,
		graph:       graph,
		registry:    registry,
		svc:         svc,
		spans:       spans,
		runID:       runID,
		pctx:        NewContext(),
		nodeRetries: make(map[string]int),
	}

	// Mirror graph attributes into the context for conditions and handlers.
	for k, v := range graph.Attrs.Raw {
		t.pctx.Set(k, v)
	}

	startNode := graph.StartNode()
	if e.config.LogsRoot != "" {
		cp, err := LoadCheckpoint(CheckpointPath(e.config.LogsRoot))
		if err != nil {
			return nil, err
		}
		if cp != nil {
			resumeNode := graph.Node(cp.CurrentNode)
			if resumeNode == nil {
				return nil, coded(CodeCheckpointStale, "checkpoint node %q is not in the current graph", cp.CurrentNode)
			}
			t.pctx = FromSnapshot(cp.Context)
			for _, entry := range cp.Logs {
				t.pctx.AppendLog(entry)
			}
			t.completed = append(t.completed, cp.CompletedNodes...)
			for k, v := range cp.NodeRetries {
				t.nodeRetries[k] = v
			}
			startNode = resumeNode
			e.emitter.Emit(Event{Type: EventCheckpointResumed, NodeID: resumeNode.ID, Data: map[string]any{
				"resumed_from_node": resumeNode.ID,
				"skipped_nodes":     append([]string(nil), cp.CompletedNodes...),
			}})
		}
	}

	runCtx, runSpan := spans.StartRunSpan(ctx, graph.Name, runID)
	e.emitter.Emit(Event{Type: EventPipelineStarted, Data: map[string]any{"run_id": runID, "graph": graph.Name}})

	result, err := t.run(runCtx, startNode)
	spans.EndSpan(runSpan, err)
	return result, err
}

// traversal is the mutable state of one graph execution.
type traversal struct {
	engine      *Engine
	graph       *Graph
	registry    *HandlerRegistry
	svc         *Services
	spans       SpanManager
	runID       string
	pctx        *Context
	completed   []string
	nodeRetries map[string]int
	outcomes    map[string]*Outcome
}

func (t *traversal) emit(evt Event) {
	t.engine.emitter.Emit(evt)
}

// run is the traversal state machine loop.
func (t *traversal) run(ctx context.Context, startNode *GraphNode) (*RunResult, error) {
	t.outcomes = make(map[string]*Outcome)

	maxIterations := t.engine.config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	current := startNode
	var arrival *GraphEdge
	iteration := 0

	for {
		iteration++
		if iteration > maxIterations {
			return t.fail(current.ID, coded(CodeCycleNoProgress, "traversal exceeded %d iterations", maxIterations))
		}

		if err := ctx.Err(); err != nil {
			return t.fail(current.ID, coded(CodeCancelled, "run cancelled: %v", err))
		}

		node := current
		t.emit(Event{Type: EventStageStarted, NodeID: node.ID, Data: map[string]any{
			"name":  node.ID,
			"index": len(t.completed),
		}})

		outcome, err := t.executeNode(ctx, node, arrival)
		if err != nil {
			t.emit(Event{Type: EventStageFailed, NodeID: node.ID, Data: map[string]any{"reason": err.Error()}})
			return t.fail(node.ID, err)
		}

		// Apply context updates atomically, then mirror selection inputs.
		if outcome.ContextUpdates != nil {
			t.pctx.ApplyUpdates(outcome.ContextUpdates)
		}
		t.pctx.Set("outcome", string(outcome.Status))
		t.pctx.Set("preferred_label", outcome.PreferredLabel)

		t.completed = append(t.completed, node.ID)
		t.outcomes[node.ID] = outcome

		switch outcome.Status {
		case StatusFail:
			t.emit(Event{Type: EventStageFailed, NodeID: node.ID, Data: map[string]any{
				"status": string(outcome.Status),
				"reason": outcome.FailureReason,
			}})
		default:
			t.emit(Event{Type: EventStageCompleted, NodeID: node.ID, Data: map[string]any{
				"status": string(outcome.Status),
			}})
		}

		// Parallel fan-out regions are driven by the engine.
		if t.handlerType(node) == "parallel" && outcome.Status != StatusFail {
			fanIn, err := t.runParallelRegion(ctx, node)
			if err != nil {
				return t.fail(node.ID, err)
			}
			t.saveCheckpoint(fanIn.ID)
			current, arrival = fanIn, nil
			continue
		}

		if isTerminalNode(node) {
			if target := t.unsatisfiedGoalGate(); target != nil {
				t.saveCheckpoint(target.ID)
				current, arrival = target, nil
				continue
			}
			t.saveCheckpoint(node.ID)
			t.emit(Event{Type: EventPipelineCompleted, NodeID: node.ID, Data: map[string]any{
				"completed_nodes": len(t.completed),
			}})
			return &RunResult{
				Status:         StatusSuccess,
				CompletedNodes: t.completed,
				LastNode:       node.ID,
				Context:        t.pctx,
			}, nil
		}

		edges := t.graph.OutgoingEdges(node.ID)

		// A failed node may only continue along an explicit failure edge: one
		// whose condition matched. Otherwise the run terminates.
		if outcome.Status == StatusFail {
			var matched []*GraphEdge
			for _, edge := range edges {
				if edge.Condition != "" && EvaluateCondition(edge.Condition, outcome, t.pctx) {
					matched = append(matched, edge)
				}
			}
			if len(matched) == 0 {
				return t.fail(node.ID, coded(CodeHandlerFatal, "node %q failed: %s", node.ID, outcome.FailureReason))
			}
			edges = matched
		}

		next := SelectEdge(edges, outcome, t.pctx)
		if next == nil {
			return t.fail(node.ID, coded(CodeNoNextEdge, "node %q has no outgoing edge to follow", node.ID))
		}

		target := t.graph.Node(next.To)
		if target == nil {
			return t.fail(node.ID, coded(CodeNoNextEdge, "edge %s points to unknown node", edgeID(next)))
		}

		if next.LoopRestart {
			t.emit(Event{Type: EventLoopRestarted, NodeID: target.ID, Data: map[string]any{
				"from": node.ID,
				"to":   target.ID,
			}})
			t.nodeRetries[target.ID] = 0
		}

		t.saveCheckpoint(target.ID)
		current, arrival = target, next
	}
}

// handlerType resolves the effective handler type string for a node.
func (t *traversal) handlerType(node *GraphNode) string {
	if node.Type != "" {
		return node.Type
	}
	if node.Shape != "" {
		return ShapeToHandlerType(node.Shape)
	}
	return "codergen"
}

// executeNode projects the context, resolves the handler, and runs the
// attempt loop with timeout racing and backoff.
func (t *traversal) executeNode(ctx context.Context, node *GraphNode, arrival *GraphEdge) (*Outcome, error) {
	handler := t.registry.Resolve(node)
	if handler == nil {
		return nil, coded(CodeHandlerFatal, "no handler for node %q", node.ID)
	}

	mode := ResolveEffectiveFidelity(arrival, node, t.graph.Attrs.DefaultFidelity)
	policy := BuildRetryPolicy(node, t.graph)
	if preset := t.engine.config.RetryPreset; preset != "" {
		policy = RetryPolicyByName(preset)
		policy.MaxAttempts = node.MaxRetries + 1
	}

	nodeCtx, span := t.spans.StartNodeSpan(ctx, node.ID)
	outcome, err := t.attemptLoop(nodeCtx, handler, node, mode, policy)
	t.spans.EndSpan(span, err)
	return outcome, err
}

// attemptLoop runs the handler up to policy.MaxAttempts times, retrying on
// retry outcomes and transient errors with backoff between attempts.
func (t *traversal) attemptLoop(ctx context.Context, handler NodeHandler, node *GraphNode, mode FidelityMode, policy RetryPolicy) (*Outcome, error) {
	shouldRetry := policy.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = DefaultShouldRetry
	}

	var lastReason string

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, coded(CodeCancelled, "node %q cancelled: %v", node.ID, err)
		}

		projected := FromSnapshot(ApplyFidelity(t.pctx.Snapshot(), mode))
		outcome, err := t.runAttempt(ctx, handler, node, projected)

		if err != nil {
			lastReason = err.Error()
			if attempt < policy.MaxAttempts && shouldRetry(err) {
				t.retryDelay(ctx, node, attempt, policy)
				continue
			}
			return t.exhausted(node, attempt, lastReason), nil
		}

		switch outcome.Status {
		case StatusRetry:
			lastReason = outcome.FailureReason
			if attempt < policy.MaxAttempts {
				t.retryDelay(ctx, node, attempt, policy)
				continue
			}
			return t.exhausted(node, attempt, lastReason), nil
		default:
			if outcome.Status == StatusSuccess || outcome.Status == StatusPartialSuccess {
				t.nodeRetries[node.ID] = 0
			}
			return outcome, nil
		}
	}

	return t.exhausted(node, policy.MaxAttempts, lastReason), nil
}

// retryDelay emits the retry event, bumps the node's counter, and sleeps.
func (t *traversal) retryDelay(ctx context.Context, node *GraphNode, attempt int, policy RetryPolicy) {
	t.nodeRetries[node.ID]++
	delay := policy.Backoff.Delay(attempt)
	t.emit(Event{Type: EventStageRetrying, NodeID: node.ID, Data: map[string]any{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	}})
	sleepWithContext(ctx, delay)
}

// exhausted converts a spent retry budget into the node's final outcome.
func (t *traversal) exhausted(node *GraphNode, attempts int, reason string) *Outcome {
	if reason == "" {
		reason = "retries exhausted"
	}
	status := StatusFail
	if node.AllowPartial {
		status = StatusPartialSuccess
	}
	return &Outcome{
		Status:        status,
		FailureReason: fmt.Sprintf("%s (after %d attempt(s))", reason, attempts),
	}
}

// runAttempt executes one handler invocation, racing the node timeout when
// one is set. A timeout produces a retry outcome fed back into the attempt
// loop.
func (t *traversal) runAttempt(ctx context.Context, handler NodeHandler, node *GraphNode, projected *Context) (*Outcome, error) {
	if node.TimeoutMs == nil {
		return safeExecute(ctx, handler, node, projected, t.svc)
	}

	timeout := time.Duration(*node.TimeoutMs) * time.Millisecond
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type attemptResult struct {
		outcome *Outcome
		err     error
	}
	done := make(chan attemptResult, 1)
	go func() {
		outcome, err := safeExecute(attemptCtx, handler, node, projected, t.svc)
		done <- attemptResult{outcome, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &Outcome{
				Status:        StatusRetry,
				FailureReason: fmt.Sprintf("node %q timed out after %s", node.ID, timeout),
			}, nil
		}
		return r.outcome, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, coded(CodeCancelled, "node %q cancelled", node.ID)
		}
		return &Outcome{
			Status:        StatusRetry,
			FailureReason: fmt.Sprintf("node %q timed out after %s", node.ID, timeout),
		}, nil
	}
}

// unsatisfiedGoalGate scans executed goal-gate nodes for a failure and
// returns the retry target to jump to, or nil when all gates hold.
func (t *traversal) unsatisfiedGoalGate() *GraphNode {
	for _, node := range t.graph.Nodes() {
		if !node.GoalGate {
			continue
		}
		outcome, visited := t.outcomes[node.ID]
		if !visited {
			continue
		}
		if outcome.Status == StatusSuccess || outcome.Status == StatusPartialSuccess {
			continue
		}
		for _, target := range []string{
			node.RetryTarget,
			node.FallbackRetryTarget,
			t.graph.Attrs.RetryTarget,
			t.graph.Attrs.FallbackRetryTarget,
		} {
			if target != "" {
				if targetNode := t.graph.Node(target); targetNode != nil {
					return targetNode
				}
			}
		}
	}
	return nil
}

// saveCheckpoint persists the traversal state. Persistence errors are
// reported on the event stream but do not abort the run.
func (t *traversal) saveCheckpoint(currentNode string) {
	logsRoot := t.engine.config.LogsRoot
	if logsRoot == "" {
		return
	}
	cp := NewCheckpoint(t.pctx, currentNode, t.completed, t.nodeRetries)
	if err := cp.Save(CheckpointPath(logsRoot)); err != nil {
		t.pctx.AppendLog("checkpoint save failed: " + err.Error())
		t.emit(Event{Type: EventCheckpointSaved, NodeID: currentNode, Data: map[string]any{
			"error": err.Error(),
		}})
		return
	}
	t.emit(Event{Type: EventCheckpointSaved, NodeID: currentNode, Data: map[string]any{
		"completed_nodes": len(t.completed),
	}})
}

// fail emits the pipeline failure event and builds the failed RunResult.
func (t *traversal) fail(lastNode string, err error) (*RunResult, error) {
	reason := err.Error()
	if code := ErrorCode(err); code != "" {
		reason = code
	}
	t.emit(Event{Type: EventPipelineFailed, NodeID: lastNode, Data: map[string]any{
		"reason": reason,
		"error":  err.Error(),
	}})
	return &RunResult{
		Status:         StatusFail,
		Reason:         reason,
		CompletedNodes: t.completed,
		LastNode:       lastNode,
		Context:        t.pctx,
	}, err
}

// safeExecute wraps handler execution with panic recovery so a misbehaving
// handler cannot crash the engine.
func safeExecute(ctx context.Context, handler NodeHandler, node *GraphNode, pctx *Context, svc *Services) (outcome *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = coded(CodeHandlerFatal, "handler panic in node %q: %v\n%s", node.ID, r, debug.Stack())
		}
	}()
	return handler.Execute(ctx, node, pctx, svc)
}

// sleepWithContext sleeps for d, returning early on cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

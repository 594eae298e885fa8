// ABOUTME: Parallel fan-out/fan-in: branch traversals on cloned contexts joined at the fan-in node.
// ABOUTME: Branch failures cancel siblings unless the fan-in allows partial success; merges are last-writer-wins.
package attractor

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// branchOutcome is the result of one parallel branch traversal.
type branchOutcome struct {
	BranchID  string
	StartNode string
	Outcome   *Outcome
	Ctx       *Context
	Executed  []string
	Err       error
}

// succeeded reports whether the branch finished without error or a fail
// outcome.
func (b branchOutcome) succeeded() bool {
	return b.Err == nil && b.Outcome != nil && b.Outcome.Status != StatusFail
}

// runParallelRegion fans out the parallel node's outgoing edges into
// concurrent branch traversals, joins them at the fan-in node, and merges
// branch contexts back into the parent. Returns the fan-in node to continue
// from.
func (t *traversal) runParallelRegion(ctx context.Context, node *GraphNode) (*GraphNode, error) {
	parentOutcome := t.outcomes[node.ID]

	// Enumerate branches: outgoing edges after condition filtering.
	var starts []string
	for _, e := range t.graph.OutgoingEdges(node.ID) {
		if e.Condition != "" && !EvaluateCondition(e.Condition, parentOutcome, t.pctx) {
			continue
		}
		starts = append(starts, e.To)
	}
	if len(starts) == 0 {
		return nil, coded(CodeNoNextEdge, "parallel node %q has no eligible branches", node.ID)
	}

	fanIn := t.findFanIn(starts)
	if fanIn == nil {
		return nil, coded(CodeFanInUnreached, "no fan-in node reachable from parallel node %q", node.ID)
	}

	t.emit(Event{Type: EventParallelStarted, NodeID: node.ID, Data: map[string]any{
		"branch_count": len(starts),
	}})

	allowPartial := fanIn.AllowPartial

	branchCtx, cancelBranches := context.WithCancel(ctx)
	defer cancelBranches()

	maxParallel := t.engine.config.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}
	semaphore := make(chan struct{}, maxParallel)

	results := make([]branchOutcome, len(starts))
	var wg sync.WaitGroup

	for i, startID := range starts {
		wg.Add(1)
		go func(idx int, startID string) {
			defer wg.Done()

			branchID := uuid.New().String()
			t.emit(Event{Type: EventParallelBranchStarted, NodeID: startID, Data: map[string]any{
				"branch":    startID,
				"branch_id": branchID,
			}})

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-branchCtx.Done():
				results[idx] = branchOutcome{BranchID: branchID, StartNode: startID, Err: branchCtx.Err()}
				return
			}

			// Each branch runs on its own clone of the context. Keys are copied,
			// not deep-copied: maps or slices held as values are shared with the
			// parent and sibling branches.
			forked := t.pctx.Clone()
			outcome, executed, err := t.runBranch(branchCtx, forked, startID, fanIn.ID)
			results[idx] = branchOutcome{
				BranchID:  branchID,
				StartNode: startID,
				Outcome:   outcome,
				Ctx:       forked,
				Executed:  executed,
				Err:       err,
			}

			if !results[idx].succeeded() && !allowPartial {
				cancelBranches()
			}
		}(i, startID)
	}

	wg.Wait()

	successCount, failureCount := 0, 0
	failureReason := ""
	for _, br := range results {
		status := "fail"
		if br.succeeded() {
			successCount++
			status = string(br.Outcome.Status)
		} else {
			failureCount++
			switch {
			case br.Err != nil:
				failureReason = br.Err.Error()
			case br.Outcome != nil && br.Outcome.FailureReason != "":
				failureReason = br.Outcome.FailureReason
			}
		}
		t.emit(Event{Type: EventParallelBranchCompleted, NodeID: br.StartNode, Data: map[string]any{
			"branch":    br.StartNode,
			"branch_id": br.BranchID,
			"status":    status,
		}})
	}

	// Merge branch contexts back into the parent, last-writer-wins in branch
	// order, and record executed branch nodes as completed.
	for _, br := range results {
		if br.Ctx == nil {
			continue
		}
		if br.succeeded() || allowPartial {
			t.pctx.ApplyUpdates(br.Ctx.Snapshot())
		}
		t.completed = append(t.completed, br.Executed...)
		if br.Outcome != nil {
			t.outcomes[br.StartNode] = br.Outcome
		}
	}

	joined := StatusSuccess
	switch {
	case failureCount == 0:
		joined = StatusSuccess
	case allowPartial && successCount > 0:
		joined = StatusPartialSuccess
	default:
		joined = StatusFail
	}
	t.pctx.Set("parallel.status", string(joined))
	t.pctx.Set("parallel.success_count", successCount)
	t.pctx.Set("parallel.failure_count", failureCount)
	if failureReason != "" {
		t.pctx.Set("parallel.failure_reason", failureReason)
	}

	t.emit(Event{Type: EventParallelCompleted, NodeID: node.ID, Data: map[string]any{
		"success_count": successCount,
		"failure_count": failureCount,
	}})

	return fanIn, nil
}

// runBranch executes nodes from startID until the fan-in node is reached,
// the branch runs out of edges, or a node fails. The fan-in node itself is
// not executed.
func (t *traversal) runBranch(ctx context.Context, bctx *Context, startID, fanInID string) (*Outcome, []string, error) {
	currentID := startID
	var executed []string
	var lastOutcome *Outcome

	maxSteps := t.engine.config.MaxIterations
	if maxSteps <= 0 {
		maxSteps = defaultMaxIterations
	}

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, executed, coded(CodeCancelled, "branch %q cancelled: %v", startID, err)
		}

		if currentID == fanInID {
			if lastOutcome == nil {
				lastOutcome = &Outcome{Status: StatusSuccess}
			}
			return lastOutcome, executed, nil
		}

		node := t.graph.Node(currentID)
		if node == nil {
			return nil, executed, coded(CodeNoNextEdge, "branch node %q not found", currentID)
		}
		if isTerminalNode(node) {
			if lastOutcome == nil {
				lastOutcome = &Outcome{Status: StatusSuccess}
			}
			return lastOutcome, executed, nil
		}

		handler := t.registry.Resolve(node)
		if handler == nil {
			return nil, executed, coded(CodeHandlerFatal, "no handler for branch node %q", currentID)
		}

		t.emit(Event{Type: EventStageStarted, NodeID: node.ID, Data: map[string]any{"name": node.ID, "branch": startID}})

		mode := ResolveEffectiveFidelity(nil, node, t.graph.Attrs.DefaultFidelity)
		projected := FromSnapshot(ApplyFidelity(bctx.Snapshot(), mode))
		outcome, err := safeExecute(ctx, handler, node, projected, t.svc)
		if err != nil {
			t.emit(Event{Type: EventStageFailed, NodeID: node.ID, Data: map[string]any{"reason": err.Error(), "branch": startID}})
			return nil, executed, err
		}

		if outcome.ContextUpdates != nil {
			bctx.ApplyUpdates(outcome.ContextUpdates)
		}
		bctx.Set("outcome", string(outcome.Status))
		bctx.Set("preferred_label", outcome.PreferredLabel)

		executed = append(executed, node.ID)
		lastOutcome = outcome

		if outcome.Status == StatusFail {
			t.emit(Event{Type: EventStageFailed, NodeID: node.ID, Data: map[string]any{
				"reason": outcome.FailureReason, "branch": startID,
			}})
			return outcome, executed, nil
		}
		t.emit(Event{Type: EventStageCompleted, NodeID: node.ID, Data: map[string]any{
			"status": string(outcome.Status), "branch": startID,
		}})

		next := SelectEdge(t.graph.OutgoingEdges(node.ID), outcome, bctx)
		if next == nil {
			return outcome, executed, nil
		}
		currentID = next.To
	}

	return nil, executed, coded(CodeCycleNoProgress, "branch %q exceeded step budget", startID)
}

// findFanIn locates the fan-in node the branches converge to via BFS.
func (t *traversal) findFanIn(starts []string) *GraphNode {
	visited := make(map[string]bool)
	queue := append([]string(nil), starts...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		node := t.graph.Node(id)
		if node == nil {
			continue
		}
		if node.Shape == "tripleoctagon" || node.Type == "parallel.fan_in" {
			return node
		}
		for _, e := range t.graph.OutgoingEdges(id) {
			if !visited[e.To] {
				queue = append(queue, e.To)
			}
		}
	}
	return nil
}

// ABOUTME: Codergen handler delegating LLM-backed stages to the CodergenBackend capability.
// ABOUTME: Falls back to stub success when no backend is configured, so graphs are runnable in tests.
package attractor

import (
	"context"
	"fmt"
)

// CodergenHandler handles LLM coding task nodes (shape=box). It is also the
// default handler for nodes without an explicit type or a mapped shape.
type CodergenHandler struct{}

func (h *CodergenHandler) Type() string { return "codergen" }

func (h *CodergenHandler) Execute(ctx context.Context, node *GraphNode, pctx *Context, svc *Services) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := node.Prompt
	if prompt == "" {
		prompt = node.Label
	}
	if prompt == "" {
		prompt = node.ID
	}

	if svc == nil || svc.Backend == nil {
		return &Outcome{
			Status: StatusSuccess,
			Notes:  "codergen stub: " + prompt,
			ContextUpdates: map[string]any{
				"last_stage":      node.ID,
				"codergen.prompt": prompt,
			},
		}, nil
	}

	goal := ""
	if svc.Graph != nil {
		goal = svc.Graph.Attrs.Goal
	}

	var graphThread, graphFidelity string
	if svc.Graph != nil {
		graphThread = svc.Graph.Attrs.Raw["thread_id"]
		graphFidelity = svc.Graph.Attrs.DefaultFidelity
	}

	meta := NodeMeta{
		NodeID:          node.ID,
		Goal:            goal,
		LLMModel:        node.LLMModel,
		LLMProvider:     node.LLMProvider,
		ReasoningEffort: node.ReasoningEffort,
		ThreadKey: ResolveThreadKey(ThreadKeyOptions{
			Node:           node,
			GraphThreadID:  graphThread,
			PreviousNodeID: pctx.GetString("last_stage", ""),
		}),
		Fidelity: ResolveEffectiveFidelity(nil, node, graphFidelity),
	}

	outcome, err := svc.Backend.Run(ctx, prompt, pctx.Snapshot(), meta)
	if err != nil {
		return nil, fmt.Errorf("codergen backend for node %q: %w", node.ID, err)
	}
	if outcome == nil {
		return &Outcome{
			Status:        StatusFail,
			FailureReason: "codergen backend returned no outcome for node " + node.ID,
		}, nil
	}

	// Backends that only produce text can signal status via outcome markers.
	if outcome.Notes != "" {
		if status, ok := DetectOutcomeMarker(outcome.Notes); ok {
			outcome.Status = status
		}
	}
	if outcome.Status == "" {
		outcome.Status = StatusSuccess
	}

	if outcome.ContextUpdates == nil {
		outcome.ContextUpdates = make(map[string]any)
	}
	outcome.ContextUpdates["last_stage"] = node.ID
	return outcome, nil
}

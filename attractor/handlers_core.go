// ABOUTME: Built-in start, exit, conditional, tool, parallel-marker, and manager-loop handlers.
// ABOUTME: Parallel fan-out/fan-in traversal itself is driven by the engine, not by these handlers.
package attractor

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// StartHandler handles the pipeline entry node (shape=Mdiamond).
type StartHandler struct{}

func (h *StartHandler) Type() string { return "start" }

func (h *StartHandler) Execute(ctx context.Context, node *GraphNode, pctx *Context, svc *Services) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Outcome{
		Status: StatusSuccess,
		Notes:  "pipeline started at node " + node.ID,
		ContextUpdates: map[string]any{
			"internal.started_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

// ExitHandler handles the pipeline exit node (shape=Msquare). The engine
// treats its completion as terminal.
type ExitHandler struct{}

func (h *ExitHandler) Type() string { return "exit" }

func (h *ExitHandler) Execute(ctx context.Context, node *GraphNode, pctx *Context, svc *Services) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Outcome{
		Status: StatusSuccess,
		Notes:  "pipeline exited at node " + node.ID,
		ContextUpdates: map[string]any{
			"internal.finished_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

// ConditionalHandler handles routing nodes (shape=diamond). It passes the
// prior node's outcome through so edge conditions evaluate against the real
// upstream result; the engine then drives selection.
type ConditionalHandler struct{}

func (h *ConditionalHandler) Type() string { return "conditional" }

func (h *ConditionalHandler) Execute(ctx context.Context, node *GraphNode, pctx *Context, svc *Services) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	status := StatusSuccess
	if prev := pctx.GetString("outcome", ""); prev != "" {
		status = StageStatus(prev)
	}
	return &Outcome{
		Status:         status,
		PreferredLabel: pctx.GetString("preferred_label", ""),
		ContextUpdates: map[string]any{"last_stage": node.ID},
	}, nil
}

// ToolHandler handles external tool nodes (shape=parallelogram). It runs the
// node's pre_hook, tool_command, and post_hook in the execution environment.
// Without an environment it records the command and succeeds, so graphs can
// be exercised in tests.
type ToolHandler struct{}

func (h *ToolHandler) Type() string { return "tool" }

func (h *ToolHandler) Execute(ctx context.Context, node *GraphNode, pctx *Context, svc *Services) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	command := node.Attrs["tool_command"]
	if command == "" {
		return &Outcome{
			Status:        StatusFail,
			FailureReason: "no tool_command specified for tool node " + node.ID,
		}, nil
	}

	updates := map[string]any{
		"last_stage":   node.ID,
		"tool.command": command,
	}

	if svc == nil || svc.Env == nil {
		return &Outcome{
			Status:         StatusSuccess,
			Notes:          "tool recorded (no execution environment): " + command,
			ContextUpdates: updates,
		}, nil
	}

	workDir := node.Attrs["workdir"]
	if workDir == "" && svc.Artifacts != nil {
		workDir = svc.Artifacts.BaseDir()
	}

	commands := []string{}
	if pre := node.Attrs["pre_hook"]; pre != "" {
		commands = append(commands, pre)
	}
	commands = append(commands, command)
	if post := node.Attrs["post_hook"]; post != "" {
		commands = append(commands, post)
	}

	var lastResult *ToolResult
	for _, cmd := range commands {
		result, err := svc.Env.Run(ctx, cmd, workDir)
		if err != nil {
			return &Outcome{
				Status:         StatusRetry,
				FailureReason:  fmt.Sprintf("tool %q: %v", cmd, err),
				ContextUpdates: updates,
			}, nil
		}
		if result.ExitCode != 0 {
			updates["tool.exit_code"] = result.ExitCode
			updates["tool.stderr"] = result.Stderr
			return &Outcome{
				Status:         StatusFail,
				FailureReason:  fmt.Sprintf("tool %q exited with code %d", cmd, result.ExitCode),
				ContextUpdates: updates,
			}, nil
		}
		lastResult = result
	}

	updates["tool.exit_code"] = 0
	if lastResult != nil {
		updates["tool.stdout"] = lastResult.Stdout
	}
	return &Outcome{
		Status:         StatusSuccess,
		Notes:          "tool executed: " + command,
		ContextUpdates: updates,
	}, nil
}

// ParallelHandler handles fan-out nodes (shape=component). The engine
// detects the parallel type and runs the branch fan-out itself; the handler
// only validates that branches exist.
type ParallelHandler struct{}

func (h *ParallelHandler) Type() string { return "parallel" }

func (h *ParallelHandler) Execute(ctx context.Context, node *GraphNode, pctx *Context, svc *Services) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if svc == nil || svc.Graph == nil || len(svc.Graph.OutgoingEdges(node.ID)) == 0 {
		return &Outcome{
			Status:        StatusFail,
			FailureReason: "parallel node " + node.ID + " has no outgoing branches",
		}, nil
	}
	return &Outcome{
		Status:         StatusSuccess,
		ContextUpdates: map[string]any{"last_stage": node.ID},
	}, nil
}

// FanInHandler handles fan-in nodes (shape=tripleoctagon). Branch joining and
// context merging happen in the engine before this handler runs; it reports
// the merged result recorded in context.
type FanInHandler struct{}

func (h *FanInHandler) Type() string { return "parallel.fan_in" }

func (h *FanInHandler) Execute(ctx context.Context, node *GraphNode, pctx *Context, svc *Services) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	status := StatusSuccess
	if s := pctx.GetString("parallel.status", ""); s != "" {
		status = StageStatus(s)
	}
	outcome := &Outcome{
		Status:         status,
		ContextUpdates: map[string]any{"last_stage": node.ID},
	}
	if status == StatusFail {
		outcome.FailureReason = pctx.GetString("parallel.failure_reason", "parallel branch failure")
	}
	return outcome, nil
}

// ManagerLoopHandler handles stack manager loop nodes (shape=house): a loop
// driver that routes back into its loop body until the node's
// manager.stop_condition attribute holds or the cycle budget runs out. The
// node's goal_gate attribute is not consulted.
type ManagerLoopHandler struct{}

func (h *ManagerLoopHandler) Type() string { return "stack.manager_loop" }

func (h *ManagerLoopHandler) Execute(ctx context.Context, node *GraphNode, pctx *Context, svc *Services) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxCycles := 1000
	if v, ok := node.Attrs["manager.max_cycles"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxCycles = n
		}
	}

	cycleKey := "manager." + node.ID + ".cycle"
	cycle := 0
	if v, ok := pctx.Get(cycleKey, nil).(int); ok {
		cycle = v
	}
	cycle++

	updates := map[string]any{
		"last_stage": node.ID,
		cycleKey:     cycle,
	}

	// The stop condition is evaluated against the running context; while it
	// does not hold, the loop label routes traversal back into the body.
	stop := node.Attrs["manager.stop_condition"]
	done := stop == "" || EvaluateCondition(stop, &Outcome{Status: StatusSuccess}, pctx)

	if !done && cycle >= maxCycles {
		return &Outcome{
			Status:         StatusFail,
			FailureReason:  fmt.Sprintf("manager loop %q exceeded %d cycles", node.ID, maxCycles),
			ContextUpdates: updates,
		}, nil
	}

	outcome := &Outcome{Status: StatusSuccess, ContextUpdates: updates}
	if done {
		outcome.PreferredLabel = "done"
	} else {
		outcome.PreferredLabel = "loop"
	}
	return outcome, nil
}

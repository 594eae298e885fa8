// ABOUTME: Graph validation emitting diagnostics that enforce structural invariants before execution.
// ABOUTME: Checks start/terminal shape, reachability, condition syntax, fidelity modes, and timeouts.
package attractor

import (
	"fmt"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// String returns a human-readable name for the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Diagnostic is a single validation finding.
type Diagnostic struct {
	Severity Severity
	Code     string
	Message  string
	NodeID   string // optional
	EdgeID   string // optional, "from->to"
}

func edgeID(e *GraphEdge) string {
	return e.From + "->" + e.To
}

// Validate walks the graph and returns all diagnostics.
func Validate(g *Graph) []Diagnostic {
	var diags []Diagnostic
	diags = append(diags, checkStartNode(g)...)
	diags = append(diags, checkTerminalReachable(g)...)
	diags = append(diags, checkEdgeEndpoints(g)...)
	diags = append(diags, checkConditions(g)...)
	diags = append(diags, checkFidelity(g)...)
	diags = append(diags, checkTimeouts(g)...)
	return diags
}

// ValidateOrRaise validates and fails with the first error-severity
// diagnostic, if any.
func ValidateOrRaise(g *Graph) ([]Diagnostic, error) {
	diags := Validate(g)
	for _, d := range diags {
		if d.Severity == SeverityError {
			return diags, coded(d.Code, "%s", d.Message)
		}
	}
	return diags, nil
}

// checkStartNode requires exactly one start-shape node.
func checkStartNode(g *Graph) []Diagnostic {
	var starts []string
	for _, n := range g.Nodes() {
		if isStartNode(n) {
			starts = append(starts, n.ID)
		}
	}
	switch len(starts) {
	case 0:
		return []Diagnostic{{
			Severity: SeverityError,
			Code:     CodeNoStart,
			Message:  "graph has no start node (shape=Mdiamond)",
		}}
	case 1:
		return nil
	default:
		return []Diagnostic{{
			Severity: SeverityError,
			Code:     CodeMultipleStarts,
			Message:  fmt.Sprintf("graph has %d start nodes, expected exactly 1: %v", len(starts), starts),
		}}
	}
}

// checkTerminalReachable requires at least one terminal-shape node reachable
// from the start node.
func checkTerminalReachable(g *Graph) []Diagnostic {
	hasTerminal := false
	for _, n := range g.Nodes() {
		if isTerminalNode(n) {
			hasTerminal = true
			break
		}
	}
	if !hasTerminal {
		return []Diagnostic{{
			Severity: SeverityError,
			Code:     CodeNoTerminal,
			Message:  "graph has no terminal node (shape=Msquare)",
		}}
	}

	start := g.StartNode()
	if start == nil {
		return nil // NO_START already reported
	}

	visited := map[string]bool{start.ID: true}
	queue := []string{start.ID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if isTerminalNode(g.Node(current)) {
			return nil
		}
		for _, e := range g.OutgoingEdges(current) {
			if !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}

	return []Diagnostic{{
		Severity: SeverityError,
		Code:     "TERMINAL_UNREACHABLE",
		Message:  fmt.Sprintf("no terminal node is reachable from start node %q", start.ID),
	}}
}

// checkEdgeEndpoints asserts every edge references known nodes. The builder
// materializes default nodes, so a failure here is a construction bug.
func checkEdgeEndpoints(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, e := range g.Edges {
		if g.Node(e.From) == nil {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Code:     "EDGE_ENDPOINT_MISSING",
				Message:  fmt.Sprintf("edge source %q does not exist", e.From),
				EdgeID:   edgeID(e),
			})
		}
		if g.Node(e.To) == nil {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Code:     "EDGE_ENDPOINT_MISSING",
				Message:  fmt.Sprintf("edge target %q does not exist", e.To),
				EdgeID:   edgeID(e),
			})
		}
	}
	return diags
}

// checkConditions requires every non-empty edge condition to parse.
func checkConditions(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, e := range g.Edges {
		if e.Condition == "" {
			continue
		}
		if err := ValidateConditionSyntax(e.Condition); err != nil {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Code:     CodeBadCondition,
				Message:  fmt.Sprintf("invalid condition %q on edge %s: %v", e.Condition, edgeID(e), err),
				EdgeID:   edgeID(e),
			})
		}
	}
	return diags
}

// checkFidelity warns on unrecognized fidelity attributes.
func checkFidelity(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes() {
		if n.Fidelity != "" && !IsValidFidelity(n.Fidelity) {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Code:     CodeBadFidelity,
				Message:  fmt.Sprintf("node %q has unrecognized fidelity mode %q", n.ID, n.Fidelity),
				NodeID:   n.ID,
			})
		}
	}
	for _, e := range g.Edges {
		if e.Fidelity != "" && !IsValidFidelity(e.Fidelity) {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Code:     CodeBadFidelity,
				Message:  fmt.Sprintf("edge %s has unrecognized fidelity mode %q", edgeID(e), e.Fidelity),
				EdgeID:   edgeID(e),
			})
		}
	}
	return diags
}

// checkTimeouts requires parsed timeouts to be non-negative.
func checkTimeouts(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes() {
		if n.TimeoutMs != nil && *n.TimeoutMs < 0 {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Code:     CodeBadTimeout,
				Message:  fmt.Sprintf("node %q has negative timeout %dms", n.ID, *n.TimeoutMs),
				NodeID:   n.ID,
			})
		}
	}
	return diags
}

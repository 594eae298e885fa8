// ABOUTME: Fidelity modes controlling how much context is projected into a handler invocation.
// ABOUTME: Implements snapshot projection, precedence resolution (edge > node > graph > compact), and thread keys.
package attractor

import "fmt"

// FidelityMode is a context projection policy applied before a handler runs.
type FidelityMode string

const (
	FidelityFull          FidelityMode = "full"
	FidelityTruncate      FidelityMode = "truncate"
	FidelityCompact       FidelityMode = "compact"
	FidelitySummaryLow    FidelityMode = "summary:low"
	FidelitySummaryMedium FidelityMode = "summary:medium"
	FidelitySummaryHigh   FidelityMode = "summary:high"
)

// internalKeyPrefix marks context keys dropped by compact projection.
const internalKeyPrefix = "internal."

var validFidelityModes = map[string]bool{
	string(FidelityFull):          true,
	string(FidelityTruncate):      true,
	string(FidelityCompact):       true,
	string(FidelitySummaryLow):    true,
	string(FidelitySummaryMedium): true,
	string(FidelitySummaryHigh):   true,
}

// IsValidFidelity reports whether the string is a recognized fidelity mode.
func IsValidFidelity(mode string) bool {
	return validFidelityModes[mode]
}

// ApplyFidelity projects a context snapshot according to the fidelity mode.
// Unknown or empty modes behave as full. The input map is never mutated.
func ApplyFidelity(snapshot map[string]any, mode FidelityMode) map[string]any {
	switch mode {
	case FidelityTruncate:
		return projectValues(snapshot, func(v any) any { return truncateString(v, 1000) })
	case FidelityCompact:
		out := make(map[string]any, len(snapshot))
		for k, v := range snapshot {
			if len(k) >= len(internalKeyPrefix) && k[:len(internalKeyPrefix)] == internalKeyPrefix {
				continue
			}
			out[k] = truncateString(v, 1000)
		}
		return out
	case FidelitySummaryLow:
		return projectValues(snapshot, func(any) any { return "" })
	case FidelitySummaryMedium:
		return projectValues(snapshot, func(v any) any { return truncateString(stringify(v), 100) })
	case FidelitySummaryHigh:
		return projectValues(snapshot, func(v any) any { return truncateString(stringify(v), 500) })
	default:
		return projectValues(snapshot, func(v any) any { return v })
	}
}

func projectValues(snapshot map[string]any, f func(any) any) map[string]any {
	out := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		out[k] = f(v)
	}
	return out
}

// truncateString caps string values at max characters with a "..." marker.
// Non-string values pass through unchanged.
func truncateString(v any, max int) any {
	s, ok := v.(string)
	if !ok || len(s) <= max {
		return v
	}
	return s[:max] + "..."
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ResolveEffectiveFidelity resolves the fidelity mode for entering a node:
// the first recognized mode of edge attribute, node attribute, graph default;
// otherwise compact.
func ResolveEffectiveFidelity(edge *GraphEdge, node *GraphNode, graphDefault string) FidelityMode {
	if edge != nil && IsValidFidelity(edge.Fidelity) {
		return FidelityMode(edge.Fidelity)
	}
	if node != nil && IsValidFidelity(node.Fidelity) {
		return FidelityMode(node.Fidelity)
	}
	if IsValidFidelity(graphDefault) {
		return FidelityMode(graphDefault)
	}
	return FidelityCompact
}

// ThreadKeyOptions carries the inputs for thread key resolution.
type ThreadKeyOptions struct {
	Node           *GraphNode
	Edge           *GraphEdge
	GraphThreadID  string
	PreviousNodeID string
}

// ResolveThreadKey returns the session thread key for a handler invocation:
// the first non-empty of node thread id, edge thread id, graph default
// thread, and the node's first subgraph class; otherwise the previous node
// id, or "default".
func ResolveThreadKey(opts ThreadKeyOptions) string {
	if opts.Node != nil && opts.Node.ThreadID != "" {
		return opts.Node.ThreadID
	}
	if opts.Edge != nil && opts.Edge.ThreadID != "" {
		return opts.Edge.ThreadID
	}
	if opts.GraphThreadID != "" {
		return opts.GraphThreadID
	}
	if opts.Node != nil && len(opts.Node.Classes) > 0 {
		return opts.Node.Classes[0]
	}
	if opts.PreviousNodeID != "" {
		return opts.PreviousNodeID
	}
	return "default"
}

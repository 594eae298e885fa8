// ABOUTME: Builder lowering a typed dot.AstGraph to the semantic Graph model.
// ABOUTME: Resolves inherited defaults, subgraph-derived classes, typed attributes, and edge chain expansion.
package attractor

import (
	"strconv"
	"strings"

	"github.com/2389-research/attractor/dot"
)

// buildScope carries inherited node defaults, edge defaults, and
// subgraph-derived classes. Entering a subgraph forks the scope so mutations
// inside do not leak outward.
type buildScope struct {
	nodeDefaults map[string]dot.Value
	edgeDefaults map[string]dot.Value
	classes      []string
}

func (s *buildScope) fork() *buildScope {
	forked := &buildScope{
		nodeDefaults: make(map[string]dot.Value, len(s.nodeDefaults)),
		edgeDefaults: make(map[string]dot.Value, len(s.edgeDefaults)),
		classes:      append([]string(nil), s.classes...),
	}
	for k, v := range s.nodeDefaults {
		forked.nodeDefaults[k] = v
	}
	for k, v := range s.edgeDefaults {
		forked.edgeDefaults[k] = v
	}
	return forked
}

// builder accumulates graph state while walking the AST.
type builder struct {
	graph      *Graph
	graphAttrs map[string]dot.Value
}

// Build lowers an AstGraph into a semantic Graph.
func Build(ast *dot.AstGraph) (*Graph, error) {
	b := &builder{
		graph:      NewGraph(ast.Name),
		graphAttrs: make(map[string]dot.Value),
	}

	scope := &buildScope{
		nodeDefaults: make(map[string]dot.Value),
		edgeDefaults: make(map[string]dot.Value),
	}

	if err := b.walk(ast.Statements, scope, false); err != nil {
		return nil, err
	}

	if err := b.projectGraphAttrs(); err != nil {
		return nil, err
	}
	b.fillRetryDefaults()

	return b.graph, nil
}

// walk processes statements. Inside a subgraph, graph attribute statements
// are subgraph-local (they feed class derivation) and do not touch the
// top-level graph attributes.
func (b *builder) walk(stmts []dot.Statement, scope *buildScope, inSubgraph bool) error {
	for _, stmt := range stmts {
		switch stmt.Kind {
		case dot.StmtGraphAttrDecl:
			if !inSubgraph {
				b.graphAttrs[stmt.Key] = stmt.Value
			}

		case dot.StmtGraphAttr:
			if !inSubgraph {
				for _, a := range stmt.Attrs {
					b.graphAttrs[a.Key] = a.Value
				}
			}

		case dot.StmtNodeDefaults:
			for _, a := range stmt.Attrs {
				scope.nodeDefaults[a.Key] = a.Value
			}

		case dot.StmtEdgeDefaults:
			for _, a := range stmt.Attrs {
				scope.edgeDefaults[a.Key] = a.Value
			}

		case dot.StmtNode:
			node, err := b.buildNode(stmt.ID, stmt.Attrs, scope)
			if err != nil {
				return err
			}
			b.graph.AddNode(node)

		case dot.StmtEdge:
			if err := b.buildEdgeChain(stmt.Chain, stmt.Attrs, scope); err != nil {
				return err
			}

		case dot.StmtSubgraph:
			sub := scope.fork()
			if label := subgraphLabel(stmt.Body); label != "" {
				if class := deriveClassName(label); class != "" {
					sub.classes = append(sub.classes, class)
				}
			}
			if err := b.walk(stmt.Body, sub, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// subgraphLabel scans a subgraph body for a label set on the subgraph's own
// graph attributes, in either the "graph [label=...]" or "label = ..." form.
func subgraphLabel(body []dot.Statement) string {
	label := ""
	for _, stmt := range body {
		switch stmt.Kind {
		case dot.StmtGraphAttrDecl:
			if stmt.Key == "label" {
				label = stmt.Value.Text()
			}
		case dot.StmtGraphAttr:
			for _, a := range stmt.Attrs {
				if a.Key == "label" {
					label = a.Value.Text()
				}
			}
		}
	}
	return label
}

// deriveClassName produces a class token from a subgraph label: lowercase,
// spaces to hyphens, everything outside [a-z0-9-] stripped.
func deriveClassName(label string) string {
	lower := strings.ToLower(label)
	lower = strings.ReplaceAll(lower, " ", "-")
	var sb strings.Builder
	for _, ch := range lower {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '-' {
			sb.WriteRune(ch)
		}
	}
	return sb.String()
}

// mergeAttrs layers explicit attributes over inherited defaults.
func mergeAttrs(defaults map[string]dot.Value, explicit []dot.Attr) map[string]dot.Value {
	merged := make(map[string]dot.Value, len(defaults)+len(explicit))
	for k, v := range defaults {
		merged[k] = v
	}
	for _, a := range explicit {
		merged[a.Key] = a.Value
	}
	return merged
}

func rawMap(merged map[string]dot.Value) map[string]string {
	raw := make(map[string]string, len(merged))
	for k, v := range merged {
		raw[k] = v.Text()
	}
	return raw
}

func (b *builder) buildNode(id string, explicit []dot.Attr, scope *buildScope) (*GraphNode, error) {
	merged := mergeAttrs(scope.nodeDefaults, explicit)

	node := &GraphNode{
		ID:                  id,
		Label:               textAttr(merged, "label"),
		Shape:               textAttr(merged, "shape"),
		Type:                textAttr(merged, "type"),
		Prompt:              textAttr(merged, "prompt"),
		MaxRetries:          -1, // filled from the graph default after the walk
		GoalGate:            boolAttr(merged, "goal_gate"),
		RetryTarget:         textAttr(merged, "retry_target"),
		FallbackRetryTarget: textAttr(merged, "fallback_retry_target"),
		Fidelity:            textAttr(merged, "fidelity"),
		ThreadID:            textAttr(merged, "thread_id"),
		LLMModel:            textAttr(merged, "llm_model"),
		LLMProvider:         textAttr(merged, "llm_provider"),
		ReasoningEffort:     "high",
		AutoStatus:          textAttr(merged, "auto_status"),
		AllowPartial:        boolAttr(merged, "allow_partial"),
		Attrs:               rawMap(merged),
	}

	if v, ok := merged["reasoning_effort"]; ok && v.Text() != "" {
		node.ReasoningEffort = v.Text()
	}

	if v, ok := merged["max_retries"]; ok {
		n, err := intValue(v)
		if err != nil || n < 0 {
			return nil, coded(CodeBuild, "node %q: max_retries must be a non-negative integer, got %q", id, v.Text())
		}
		node.MaxRetries = n
	}

	if v, ok := merged["timeout"]; ok {
		node.TimeoutMs = durationMs(v)
	}

	classes := append([]string(nil), scope.classes...)
	if v, ok := merged["class"]; ok {
		for _, c := range strings.Split(v.Text(), ",") {
			if c = strings.TrimSpace(c); c != "" {
				classes = append(classes, c)
			}
		}
	}
	node.Classes = classes

	return node, nil
}

func (b *builder) buildEdgeChain(chain []string, explicit []dot.Attr, scope *buildScope) error {
	for _, id := range chain {
		if b.graph.Node(id) == nil {
			node, err := b.buildNode(id, nil, scope)
			if err != nil {
				return err
			}
			b.graph.AddNode(node)
		}
	}

	for i := 0; i+1 < len(chain); i++ {
		merged := mergeAttrs(scope.edgeDefaults, explicit)
		edge := &GraphEdge{
			From:        chain[i],
			To:          chain[i+1],
			Label:       textAttr(merged, "label"),
			Condition:   textAttr(merged, "condition"),
			Fidelity:    textAttr(merged, "fidelity"),
			ThreadID:    textAttr(merged, "thread_id"),
			LoopRestart: boolAttr(merged, "loop_restart"),
			Attrs:       rawMap(merged),
		}
		if v, ok := merged["weight"]; ok {
			if n, err := intValue(v); err == nil {
				edge.Weight = n
			}
		}
		b.graph.Edges = append(b.graph.Edges, edge)
	}
	return nil
}

// projectGraphAttrs plucks typed graph attributes from the collected map.
func (b *builder) projectGraphAttrs() error {
	attrs := &b.graph.Attrs
	attrs.Raw = rawMap(b.graphAttrs)
	attrs.Goal = textAttr(b.graphAttrs, "goal")
	attrs.Label = textAttr(b.graphAttrs, "label")
	attrs.ModelStylesheet = textAttr(b.graphAttrs, "model_stylesheet")
	attrs.RetryTarget = textAttr(b.graphAttrs, "retry_target")
	attrs.FallbackRetryTarget = textAttr(b.graphAttrs, "fallback_retry_target")
	attrs.DefaultFidelity = textAttr(b.graphAttrs, "default_fidelity")

	if v, ok := b.graphAttrs["default_max_retry"]; ok {
		n, err := intValue(v)
		if err != nil || n < 0 {
			return coded(CodeBuild, "default_max_retry must be a non-negative integer, got %q", v.Text())
		}
		attrs.DefaultMaxRetry = n
	}

	if v, ok := b.graphAttrs["vars"]; ok {
		attrs.Vars = parseVarDecls(v.Text())
	}

	return nil
}

// parseVarDecls parses a vars declaration of the form "NAME=default,OTHER".
func parseVarDecls(s string) []VarDecl {
	var vars []VarDecl
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if idx := strings.Index(entry, "="); idx >= 0 {
			vars = append(vars, VarDecl{
				Name:    strings.TrimSpace(entry[:idx]),
				Default: strings.TrimSpace(entry[idx+1:]),
			})
		} else {
			vars = append(vars, VarDecl{Name: entry})
		}
	}
	return vars
}

// fillRetryDefaults applies the graph-level retry budget to nodes without an
// explicit max_retries attribute.
func (b *builder) fillRetryDefaults() {
	for _, node := range b.graph.Nodes() {
		if node.MaxRetries < 0 {
			node.MaxRetries = b.graph.Attrs.DefaultMaxRetry
		}
	}
}

func textAttr(m map[string]dot.Value, key string) string {
	if v, ok := m[key]; ok {
		return v.Text()
	}
	return ""
}

func boolAttr(m map[string]dot.Value, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	if v.Kind == dot.ValueBoolean {
		return v.Bool
	}
	return v.Text() == "true"
}

func intValue(v dot.Value) (int, error) {
	if v.Kind == dot.ValueInteger {
		return int(v.Int), nil
	}
	return strconv.Atoi(v.Text())
}

// durationMs converts an attribute value to milliseconds. Duration literals
// carry their pre-converted value; bare integers are taken as milliseconds;
// strings are parsed with the same unit suffixes. Unparseable values yield nil.
func durationMs(v dot.Value) *int64 {
	switch v.Kind {
	case dot.ValueDuration:
		ms := v.DurationMs
		return &ms
	case dot.ValueInteger:
		ms := v.Int
		return &ms
	default:
		return parseDurationText(v.Text())
	}
}

// parseDurationText parses "500ms"/"30s"/"5m"/"2h"/"1d" or a bare integer of
// milliseconds. Returns nil when the text does not parse.
func parseDurationText(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	unit := int64(1)
	switch {
	case strings.HasSuffix(s, "ms"):
		s = strings.TrimSuffix(s, "ms")
	case strings.HasSuffix(s, "s"):
		s, unit = strings.TrimSuffix(s, "s"), 1000
	case strings.HasSuffix(s, "m"):
		s, unit = strings.TrimSuffix(s, "m"), 60_000
	case strings.HasSuffix(s, "h"):
		s, unit = strings.TrimSuffix(s, "h"), 3_600_000
	case strings.HasSuffix(s, "d"):
		s, unit = strings.TrimSuffix(s, "d"), 86_400_000
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	ms := n * unit
	return &ms
}

// ABOUTME: Tests for the DOT parser covering statement kinds, edge chains, subgraphs, and error codes.
// ABOUTME: Includes the empty-source boundary case and typed attribute value parsing.
package dot

import (
	"errors"
	"strings"
	"testing"
)

func parseBody(t *testing.T, body string) *AstGraph {
	t.Helper()
	g, err := Parse("digraph test {\n" + body + "\n}")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return g
}

func TestParseEmptySource(t *testing.T) {
	_, err := Parse("")
	if err == nil {
		t.Fatal("expected error for empty source")
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !strings.HasPrefix(perr.Code, "PARSE_EXPECTED_DIGRAPH") {
		t.Errorf("expected PARSE_EXPECTED_DIGRAPH code, got %q", perr.Code)
	}
}

func TestParseEmptyGraph(t *testing.T) {
	g, err := Parse("digraph empty {}")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if g.Name != "empty" {
		t.Errorf("expected graph name 'empty', got %q", g.Name)
	}
	if len(g.Statements) != 0 {
		t.Errorf("expected no statements, got %d", len(g.Statements))
	}
}

func TestParseNodeStatement(t *testing.T) {
	g := parseBody(t, `start [shape=Mdiamond, label="Begin"]`)
	if len(g.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(g.Statements))
	}
	stmt := g.Statements[0]
	if stmt.Kind != StmtNode || stmt.ID != "start" {
		t.Fatalf("expected node statement for 'start', got %v %q", stmt.Kind, stmt.ID)
	}
	if len(stmt.Attrs) != 2 {
		t.Fatalf("expected 2 attrs, got %d", len(stmt.Attrs))
	}
	if stmt.Attrs[0].Key != "shape" || stmt.Attrs[0].Value.Text() != "Mdiamond" {
		t.Errorf("unexpected first attr: %+v", stmt.Attrs[0])
	}
	if stmt.Attrs[1].Key != "label" || stmt.Attrs[1].Value.Kind != ValueString {
		t.Errorf("unexpected second attr: %+v", stmt.Attrs[1])
	}
}

func TestParseEdgeChain(t *testing.T) {
	g := parseBody(t, "a -> b -> c [weight=3]")
	stmt := g.Statements[0]
	if stmt.Kind != StmtEdge {
		t.Fatalf("expected edge statement, got %v", stmt.Kind)
	}
	if len(stmt.Chain) != 3 {
		t.Fatalf("expected chain of 3, got %v", stmt.Chain)
	}
	if stmt.Chain[0] != "a" || stmt.Chain[1] != "b" || stmt.Chain[2] != "c" {
		t.Errorf("unexpected chain: %v", stmt.Chain)
	}
	if len(stmt.Attrs) != 1 || stmt.Attrs[0].Value.Int != 3 {
		t.Errorf("expected weight=3 attr, got %+v", stmt.Attrs)
	}
}

func TestParseGraphAttrDecl(t *testing.T) {
	g := parseBody(t, `goal = "ship it"`)
	stmt := g.Statements[0]
	if stmt.Kind != StmtGraphAttrDecl || stmt.Key != "goal" {
		t.Fatalf("expected graph attr decl, got %+v", stmt)
	}
	if stmt.Value.Str != "ship it" {
		t.Errorf("expected 'ship it', got %q", stmt.Value.Str)
	}
}

func TestParseDefaults(t *testing.T) {
	g := parseBody(t, "node [shape=box]\nedge [weight=1]\ngraph [label=Main]")
	if g.Statements[0].Kind != StmtNodeDefaults {
		t.Errorf("expected node defaults, got %v", g.Statements[0].Kind)
	}
	if g.Statements[1].Kind != StmtEdgeDefaults {
		t.Errorf("expected edge defaults, got %v", g.Statements[1].Kind)
	}
	if g.Statements[2].Kind != StmtGraphAttr {
		t.Errorf("expected graph attr stmt, got %v", g.Statements[2].Kind)
	}
}

func TestParseSubgraph(t *testing.T) {
	g := parseBody(t, `subgraph cluster_a { graph [label="Loop A"]; x [shape=box]; x -> y }`)
	stmt := g.Statements[0]
	if stmt.Kind != StmtSubgraph || stmt.ID != "cluster_a" {
		t.Fatalf("expected subgraph cluster_a, got %+v", stmt)
	}
	if len(stmt.Body) != 3 {
		t.Fatalf("expected 3 body statements, got %d", len(stmt.Body))
	}
	if stmt.Body[0].Kind != StmtGraphAttr {
		t.Errorf("expected graph attr inside subgraph, got %v", stmt.Body[0].Kind)
	}
}

func TestParseAnonymousSubgraph(t *testing.T) {
	g := parseBody(t, "subgraph { a [shape=box] }")
	stmt := g.Statements[0]
	if stmt.Kind != StmtSubgraph || stmt.ID != "" {
		t.Fatalf("expected anonymous subgraph, got %+v", stmt)
	}
}

func TestParseTypedValues(t *testing.T) {
	g := parseBody(t, "n [a=5, b=2.5, c=true, d=30s, e=hello, f=\"str\"]")
	attrs := g.Statements[0].Attrs
	kinds := []ValueKind{ValueInteger, ValueFloat, ValueBoolean, ValueDuration, ValueIdentifier, ValueString}
	for i, k := range kinds {
		if attrs[i].Value.Kind != k {
			t.Errorf("attr %q: expected kind %v, got %v", attrs[i].Key, k, attrs[i].Value.Kind)
		}
	}
	if attrs[3].Value.DurationMs != 30_000 {
		t.Errorf("expected 30s = 30000ms, got %d", attrs[3].Value.DurationMs)
	}
}

func TestParseDottedAttrKey(t *testing.T) {
	g := parseBody(t, "n [manager.max_cycles=10]")
	if g.Statements[0].Attrs[0].Key != "manager.max_cycles" {
		t.Errorf("expected dotted key, got %q", g.Statements[0].Attrs[0].Key)
	}
}

func TestParseSemicolonsOptional(t *testing.T) {
	g := parseBody(t, "a [shape=box];;\nb [shape=box]\na -> b;")
	if len(g.Statements) != 3 {
		t.Errorf("expected 3 statements, got %d", len(g.Statements))
	}
}

func TestParseUnexpectedTokenError(t *testing.T) {
	_, err := Parse("digraph g { a -> }")
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if !strings.HasPrefix(perr.Code, "PARSE_EXPECTED_") {
		t.Errorf("expected PARSE_EXPECTED_ code, got %q", perr.Code)
	}
	if perr.Pos.Line != 1 {
		t.Errorf("expected error on line 1, got %d", perr.Pos.Line)
	}
}

func TestParseValueRoundTripText(t *testing.T) {
	g := parseBody(t, "n [a=5, b=true, c=30s]")
	attrs := g.Statements[0].Attrs
	want := []string{"5", "true", "30s"}
	for i, w := range want {
		if attrs[i].Value.Text() != w {
			t.Errorf("attr %d: expected text %q, got %q", i, w, attrs[i].Value.Text())
		}
	}
}

// ABOUTME: Typed AST for the DOT pipeline DSL: attribute values and statements as tagged unions.
// ABOUTME: The parser produces an AstGraph; the attractor builder lowers it to a semantic graph model.
package dot

import (
	"fmt"
	"strconv"
)

// ValueKind discriminates the variants of a Value.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueInteger
	ValueFloat
	ValueBoolean
	ValueDuration
	ValueIdentifier
)

// String returns a human-readable name for the value kind.
func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueInteger:
		return "integer"
	case ValueFloat:
		return "float"
	case ValueBoolean:
		return "boolean"
	case ValueDuration:
		return "duration"
	case ValueIdentifier:
		return "identifier"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Value is a tagged attribute value. Exactly the fields relevant to Kind are
// meaningful; Raw always holds the verbatim source text.
type Value struct {
	Kind       ValueKind
	Str        string  // ValueString, ValueIdentifier
	Int        int64   // ValueInteger
	Float      float64 // ValueFloat
	Bool       bool    // ValueBoolean
	DurationMs int64   // ValueDuration: pre-converted milliseconds
	Unit       string  // ValueDuration: verbatim unit suffix
	Raw        string
}

// StringValue constructs a string Value.
func StringValue(s string) Value {
	return Value{Kind: ValueString, Str: s, Raw: s}
}

// IdentifierValue constructs an identifier Value.
func IdentifierValue(s string) Value {
	return Value{Kind: ValueIdentifier, Str: s, Raw: s}
}

// IntegerValue constructs an integer Value.
func IntegerValue(n int64) Value {
	return Value{Kind: ValueInteger, Int: n, Raw: strconv.FormatInt(n, 10)}
}

// Text returns the value's canonical string form, used when attributes are
// flattened into the semantic graph's raw attribute maps.
func (v Value) Text() string {
	switch v.Kind {
	case ValueString, ValueIdentifier:
		return v.Str
	case ValueInteger:
		return strconv.FormatInt(v.Int, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ValueBoolean:
		return strconv.FormatBool(v.Bool)
	case ValueDuration:
		return v.Raw
	default:
		return v.Raw
	}
}

// Attr is a single key=value attribute.
type Attr struct {
	Key   string
	Value Value
}

// StatementKind discriminates the variants of a Statement.
type StatementKind int

const (
	StmtNode StatementKind = iota
	StmtEdge
	StmtGraphAttr
	StmtNodeDefaults
	StmtEdgeDefaults
	StmtGraphAttrDecl
	StmtSubgraph
)

// String returns a human-readable name for the statement kind.
func (k StatementKind) String() string {
	switch k {
	case StmtNode:
		return "node"
	case StmtEdge:
		return "edge"
	case StmtGraphAttr:
		return "graph_attr"
	case StmtNodeDefaults:
		return "node_defaults"
	case StmtEdgeDefaults:
		return "edge_defaults"
	case StmtGraphAttrDecl:
		return "graph_attr_decl"
	case StmtSubgraph:
		return "subgraph"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Statement is a tagged parse-tree statement. The fields used depend on Kind:
//   - StmtNode: ID, Attrs
//   - StmtEdge: Chain (>= 2 ids, expanded pairwise by the builder), Attrs
//   - StmtGraphAttr, StmtNodeDefaults, StmtEdgeDefaults: Attrs
//   - StmtGraphAttrDecl: Key, Value
//   - StmtSubgraph: ID (may be empty), Body
type Statement struct {
	Kind  StatementKind
	ID    string
	Chain []string
	Attrs []Attr
	Key   string
	Value Value
	Body  []Statement
	Pos   Pos
}

// AstGraph is the parse result for a single digraph.
type AstGraph struct {
	Name       string
	Statements []Statement
}

// ABOUTME: Semantic graph model for the attractor pipeline runner: typed nodes, edges, and graph attributes.
// ABOUTME: Produced by the builder from a dot.AstGraph; consumed by transforms, validation, and the engine.
package attractor

// Graph is the validated, executable pipeline model. Nodes preserve creation
// order; Edges are in declaration order after chain expansion.
type Graph struct {
	Name      string
	nodes     map[string]*GraphNode
	nodeOrder []string
	Edges     []*GraphEdge
	Attrs     GraphAttrs
}

// GraphAttrs holds typed graph-level attributes plus the unprojected
// original attribute map.
type GraphAttrs struct {
	Goal                string
	Label               string
	ModelStylesheet     string
	DefaultMaxRetry     int // default 50
	RetryTarget         string
	FallbackRetryTarget string
	DefaultFidelity     string
	Vars                []VarDecl
	Raw                 map[string]string
}

// VarDecl is a pipeline variable declaration: a name with an optional default.
type VarDecl struct {
	Name    string
	Default string
}

// GraphNode is a pipeline stage with typed fields plucked from its attributes.
// Attrs retains the full raw map for handler consumption.
type GraphNode struct {
	ID                  string
	Label               string
	Shape               string
	Type                string
	Prompt              string
	MaxRetries          int
	GoalGate            bool
	RetryTarget         string
	FallbackRetryTarget string
	Fidelity            string
	ThreadID            string
	Classes             []string
	TimeoutMs           *int64 // nil = no timeout
	LLMModel            string
	LLMProvider         string
	ReasoningEffort     string // default "high"
	AutoStatus          string
	AllowPartial        bool
	Attrs               map[string]string
}

// GraphEdge is a transition between nodes.
type GraphEdge struct {
	From        string
	To          string
	Label       string
	Condition   string
	Weight      int
	Fidelity    string
	ThreadID    string
	LoopRestart bool
	Attrs       map[string]string
}

// NewGraph creates an empty graph with defaulted graph attributes.
func NewGraph(name string) *Graph {
	return &Graph{
		Name:  name,
		nodes: make(map[string]*GraphNode),
		Attrs: GraphAttrs{
			DefaultMaxRetry: 50,
			Raw:             make(map[string]string),
		},
	}
}

// AddNode inserts a node, preserving creation order. An existing node with
// the same ID is replaced in place without disturbing the order.
func (g *Graph) AddNode(n *GraphNode) {
	if _, exists := g.nodes[n.ID]; !exists {
		g.nodeOrder = append(g.nodeOrder, n.ID)
	}
	g.nodes[n.ID] = n
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id string) *GraphNode {
	return g.nodes[id]
}

// Nodes returns all nodes in creation order.
func (g *Graph) Nodes() []*GraphNode {
	result := make([]*GraphNode, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		result = append(result, g.nodes[id])
	}
	return result
}

// NodeIDs returns all node IDs in creation order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.nodeOrder))
	copy(ids, g.nodeOrder)
	return ids
}

// OutgoingEdges returns all edges originating at the given node, in
// declaration order.
func (g *Graph) OutgoingEdges(nodeID string) []*GraphEdge {
	var result []*GraphEdge
	for _, e := range g.Edges {
		if e.From == nodeID {
			result = append(result, e)
		}
	}
	return result
}

// IncomingEdges returns all edges terminating at the given node.
func (g *Graph) IncomingEdges(nodeID string) []*GraphEdge {
	var result []*GraphEdge
	for _, e := range g.Edges {
		if e.To == nodeID {
			result = append(result, e)
		}
	}
	return result
}

// StartNode returns the unique start node, or nil when absent. Start nodes
// are recognized via shape=Mdiamond or an explicit start type.
func (g *Graph) StartNode() *GraphNode {
	for _, id := range g.nodeOrder {
		if isStartNode(g.nodes[id]) {
			return g.nodes[id]
		}
	}
	return nil
}

// isStartNode reports whether the node is a pipeline entry point.
func isStartNode(n *GraphNode) bool {
	return n != nil && (n.Shape == "Mdiamond" || n.Type == "start")
}

// isTerminalNode reports whether the node is a pipeline exit point.
func isTerminalNode(n *GraphNode) bool {
	return n != nil && (n.Shape == "Msquare" || n.Type == "exit")
}

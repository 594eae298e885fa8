// ABOUTME: Node handler interface, services bundle, registry, and the shape-to-handler-type table.
// ABOUTME: Resolution order: explicit type attribute, shape mapping, then the codergen default.
package attractor

import "context"

// Services bundles the capabilities handlers may consume. Fields are nil
// when the corresponding capability is not configured.
type Services struct {
	Backend     CodergenBackend
	Interviewer Interviewer
	Env         ExecutionEnvironment
	Artifacts   *ArtifactStore
	Events      *EventEmitter
	Graph       *Graph
}

// emit forwards an event when an emitter is configured.
func (s *Services) emit(evt Event) {
	if s != nil && s.Events != nil {
		s.Events.Emit(evt)
	}
}

// NodeHandler executes a single node and produces an outcome. Handlers see a
// fidelity-projected copy of the traversal context via pctx.
type NodeHandler interface {
	Type() string
	Execute(ctx context.Context, node *GraphNode, pctx *Context, svc *Services) (*Outcome, error)
}

// HandlerRegistry maps handler type strings to handler instances.
type HandlerRegistry struct {
	handlers map[string]NodeHandler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]NodeHandler)}
}

// Register adds a handler keyed by its Type(), replacing any previous entry.
func (r *HandlerRegistry) Register(h NodeHandler) {
	r.handlers[h.Type()] = h
}

// Get returns the handler for a type string, or nil.
func (r *HandlerRegistry) Get(typeName string) NodeHandler {
	return r.handlers[typeName]
}

// Resolve finds the handler for a node: explicit type attribute first, then
// the shape mapping, then the codergen default.
func (r *HandlerRegistry) Resolve(node *GraphNode) NodeHandler {
	if node.Type != "" {
		if h, ok := r.handlers[node.Type]; ok {
			return h
		}
	}
	if node.Shape != "" {
		if h, ok := r.handlers[ShapeToHandlerType(node.Shape)]; ok {
			return h
		}
	}
	return r.handlers["codergen"]
}

// DefaultHandlerRegistry creates a registry with all built-in handlers.
func DefaultHandlerRegistry() *HandlerRegistry {
	reg := NewHandlerRegistry()
	reg.Register(&StartHandler{})
	reg.Register(&ExitHandler{})
	reg.Register(&CodergenHandler{})
	reg.Register(&ConditionalHandler{})
	reg.Register(&ParallelHandler{})
	reg.Register(&FanInHandler{})
	reg.Register(&ToolHandler{})
	reg.Register(&ManagerLoopHandler{})
	reg.Register(&WaitForHumanHandler{})
	return reg
}

// shapeToType maps Graphviz shape names to handler type strings.
var shapeToType = map[string]string{
	"Mdiamond":      "start",
	"Msquare":       "exit",
	"box":           "codergen",
	"hexagon":       "wait.human",
	"diamond":       "conditional",
	"component":     "parallel",
	"tripleoctagon": "parallel.fan_in",
	"parallelogram": "tool",
	"house":         "stack.manager_loop",
}

// ShapeToHandlerType returns the handler type for a shape; unknown shapes
// fall through to codergen.
func ShapeToHandlerType(shape string) string {
	if t, ok := shapeToType[shape]; ok {
		return t
	}
	return "codergen"
}

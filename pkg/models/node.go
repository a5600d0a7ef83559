package models

// Node is one step in a workflow graph. Type resolves to a registered handler
// ("http-request", "slack.sendMessage", ...). Config holds handler-specific
// parameters and may contain {{placeholder}} expressions resolved against the
// execution context at run time.
type Node struct {
	ID     string         `json:"id"     validate:"required"`
	Type   string         `json:"type"   validate:"required"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// DisplayName returns the node name, falling back to its type.
func (n *Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}

	return n.Type
}

// Connection is a directed edge from one node's output to another node's
// input. Multiple connections may share a source (fan-out) or a target
// (fan-in, not synchronized).
type Connection struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// GraphDoc is the persisted {nodes, connections} document stored on a
// WorkflowVersion. Referential integrity between connections and nodes is
// checked at execution time, not at save time.
type GraphDoc struct {
	Nodes       []*Node       `json:"nodes"`
	Connections []*Connection `json:"connections"`
}

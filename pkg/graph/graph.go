// Package graph provides the in-memory workflow graph parsed from one
// version's {nodes, connections} document. The graph is read-only once
// constructed and shared safely across concurrent node executions.
package graph

import (
	"fmt"

	"github.com/cascadehq/cascade/pkg/models"
)

// ErrNodeNotFound reports a node id referenced by a connection or task that
// is absent from the node set. This is a structural error detected at
// execution time; workflow saves do not validate referential integrity.
type ErrNodeNotFound struct {
	NodeID string
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node %q not found in workflow graph", e.NodeID)
}

// WorkflowGraph indexes a version's nodes and connections for traversal.
type WorkflowGraph struct {
	nodes      map[string]*models.Node
	order      []string            // node ids in document order
	successors map[string][]string // source id -> target ids in edge-list order
	targets    map[string]struct{} // ids appearing as a connection target
}

// New builds a graph from a parsed graph document. A nil document yields an
// empty graph.
func New(doc *models.GraphDoc) *WorkflowGraph {
	g := &WorkflowGraph{
		nodes:      make(map[string]*models.Node),
		successors: make(map[string][]string),
		targets:    make(map[string]struct{}),
	}

	if doc == nil {
		return g
	}

	for _, node := range doc.Nodes {
		if node == nil || node.ID == "" {
			continue
		}

		if _, exists := g.nodes[node.ID]; !exists {
			g.order = append(g.order, node.ID)
		}

		g.nodes[node.ID] = node
	}

	for _, conn := range doc.Connections {
		if conn == nil {
			continue
		}

		g.successors[conn.Source] = append(g.successors[conn.Source], conn.Target)
		g.targets[conn.Target] = struct{}{}
	}

	return g
}

// FindStartNodes returns the ids of all nodes that never appear as a
// connection target, in document order. A single node with no connections is
// always a start node.
func (g *WorkflowGraph) FindStartNodes() []string {
	startNodes := make([]string, 0, len(g.order))

	for _, id := range g.order {
		if _, isTarget := g.targets[id]; !isTarget {
			startNodes = append(startNodes, id)
		}
	}

	return startNodes
}

// SuccessorsOf returns the targets of all connections whose source is nodeID,
// in edge-list order. Unknown ids have no successors.
func (g *WorkflowGraph) SuccessorsOf(nodeID string) []string {
	return g.successors[nodeID]
}

// Node returns the node with the given id.
func (g *WorkflowGraph) Node(nodeID string) (*models.Node, error) {
	node, ok := g.nodes[nodeID]
	if !ok {
		return nil, &ErrNodeNotFound{NodeID: nodeID}
	}

	return node, nil
}

// Len returns the number of nodes in the graph.
func (g *WorkflowGraph) Len() int {
	return len(g.nodes)
}

// Package testutil provides test data builders shared across packages.
package testutil

import (
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/google/uuid"
)

// Workflow creates an active manual-trigger workflow with overridable
// defaults.
func Workflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		ProjectID:   uuid.New().String(),
		Name:        "Test Workflow",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeManual,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// WithTrigger sets the trigger type.
func WithTrigger(triggerType models.TriggerType) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.TriggerType = triggerType
	}
}

// WithWebhookToken sets the webhook token.
func WithWebhookToken(token string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.WebhookToken = token
	}
}

// Version creates an active version of the given workflow holding graph.
func Version(workflowID string, graph *models.GraphDoc) *models.WorkflowVersion {
	return &models.WorkflowVersion{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Version:    "1.0.0",
		Graph:      graph,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
}

// Node creates a log node with the given id.
func Node(id string, overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:     id,
		Type:   "log",
		Name:   "Node " + id,
		Config: map[string]any{"message": "test"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// Graph builds a graph document from nodes and source->target pairs.
func Graph(nodes []*models.Node, edges ...[2]string) *models.GraphDoc {
	connections := make([]*models.Connection, 0, len(edges))
	for _, edge := range edges {
		connections = append(connections, &models.Connection{Source: edge[0], Target: edge[1]})
	}

	return &models.GraphDoc{Nodes: nodes, Connections: connections}
}

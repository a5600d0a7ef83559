package web

import "github.com/cascadehq/cascade/pkg/models"

// CreateWorkflowRequest is the payload for POST /workflows.
type CreateWorkflowRequest struct {
	Name           string             `json:"name"            validate:"required,min=3"`
	Description    string             `json:"description"`
	ProjectID      string             `json:"project_id"`
	TriggerType    models.TriggerType `json:"trigger_type"    validate:"required,oneof=manual webhook schedule polling"`
	CronExpression string             `json:"cron_expression"`
}

// ExecuteWorkflowRequest is the payload for POST /workflows/:id/execute.
type ExecuteWorkflowRequest struct {
	UserID string         `json:"user_id" validate:"required"`
	Input  map[string]any `json:"input"`
}

// SaveVersionRequest is the payload for POST /workflows/:id/versions.
type SaveVersionRequest struct {
	Graph *models.GraphDoc `json:"workflow_json" validate:"required"`
	Notes string           `json:"notes"`
}

// ExecutionAccepted acknowledges a trigger; the caller polls the execution
// for the outcome, the engine never answers synchronously.
type ExecutionAccepted struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	Status      string `json:"status"`
}

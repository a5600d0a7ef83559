// Package models defines the core domain models for workflow automation.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft  WorkflowStatus = "draft"  // Editable, not executable
	WorkflowStatusActive WorkflowStatus = "active" // Executable by any trigger
	WorkflowStatusPaused WorkflowStatus = "paused" // Temporarily not executable
	WorkflowStatusError  WorkflowStatus = "error"  // Disabled after repeated failures
)

// TriggerType enumerates how a workflow execution can be started.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "manual"
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypePolling  TriggerType = "polling"
)

// Workflow is the owning entity for versions and executions. The engine only
// reads workflow metadata; all mutation happens in the CRUD layer.
type Workflow struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"project_id"`
	Name            string         `json:"name"                       validate:"required,min=3"`
	Description     string         `json:"description"`
	Status          WorkflowStatus `json:"status"                     validate:"required"`
	TriggerType     TriggerType    `json:"trigger_type"               validate:"required"`
	CronExpression  string         `json:"cron_expression,omitempty"`
	WebhookToken    string         `json:"webhook_token,omitempty"`
	ActiveVersionID string         `json:"active_version_id,omitempty"`
	LastRunAt       *time.Time     `json:"last_run_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       *time.Time     `json:"deleted_at,omitempty"`
}

func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// WorkflowVersion is an immutable snapshot of a workflow's graph. Only the
// IsActive flag toggles after creation; exactly one version per workflow is
// active at any time.
type WorkflowVersion struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	Version    string     `json:"version"`
	Notes      string     `json:"notes,omitempty"`
	Graph      *GraphDoc  `json:"workflow_json"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

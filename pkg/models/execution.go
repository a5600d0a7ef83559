package models

import "time"

// ExecutionStatus represents the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusTimedOut  ExecutionStatus = "timed_out"
)

// IsTerminal reports whether the status can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusTimedOut
}

// Execution is one run of a workflow's active version, created at trigger
// time with status running. The terminal status is written exactly once:
// the first writer wins and later terminal transitions are no-ops.
type Execution struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflow_id"`
	VersionID     string          `json:"version_id"`
	Status        ExecutionStatus `json:"status"`
	TriggerType   TriggerType     `json:"trigger_type"`
	TriggerData   map[string]any  `json:"trigger_data,omitempty"`
	Input         map[string]any  `json:"input,omitempty"`
	Output        map[string]any  `json:"output,omitempty"`
	Error         string          `json:"error,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	ExecutionTime int64           `json:"execution_time,omitempty"` // milliseconds
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
}

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogStatus is the outcome of a node execution attempt. A log entry starts
// with no status ("pending") and is closed once as completed or failed.
type LogStatus string

const (
	LogStatusCompleted LogStatus = "completed"
	LogStatusFailed    LogStatus = "failed"
)

// ExecutionLog records one node execution attempt within an execution.
// Data carries the input snapshot taken when the node starts, then the
// output and completed_at (or error, trace, failed_at) when it closes.
type ExecutionLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeName    string         `json:"node_name"`
	NodeType    string         `json:"node_type"`
	Level       LogLevel       `json:"level"`
	Status      LogStatus      `json:"status,omitempty"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

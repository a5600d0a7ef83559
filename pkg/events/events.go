// Package events defines the event types exchanged over the workflow queue.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every workflow engine event. Messages are keyed by workflow
// id so partitioned brokers keep per-workflow ordering.
const Topic = "cascade.workflows"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// WorkflowTriggeredEvent starts a run: the runner reacts by creating an
	// execution and activating the graph's start nodes.
	WorkflowTriggeredEvent EventType = "workflow.triggered"

	// NodeActivationEvent is the unit of asynchronous work: execute one node
	// of one execution. One event per (execution, node) pair per branch.
	NodeActivationEvent EventType = "node.activation"

	// Node lifecycle notifications, published for observability.
	NodeExecutionFinishedEvent EventType = "node.execution.finished"
	NodeExecutionFailedEvent   EventType = "node.execution.failed"

	// Execution terminal notifications.
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	WorkerID   string    `json:"worker_id,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type WorkflowTriggered struct {
	BaseEvent

	TriggerType string         `json:"trigger_type"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (w WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

// NodeActivation schedules one node execution. Context carries the data
// accumulated along this branch; Attempt counts deliveries of this
// activation (1-based) for the retry/backoff policy.
type NodeActivation struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	VersionID   string         `json:"version_id"`
	NodeID      string         `json:"node_id"`
	Context     map[string]any `json:"context,omitempty"`
	Attempt     int            `json:"attempt"`
}

func (n NodeActivation) GetType() EventType {
	return NodeActivationEvent
}

type NodeExecutionFinished struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Output      map[string]any `json:"output,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

func (n NodeExecutionFinished) GetType() EventType {
	return NodeExecutionFinishedEvent
}

type NodeExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
	Attempt     int    `json:"attempt"`
	Final       bool   `json:"final"`
}

func (n NodeExecutionFailed) GetType() EventType {
	return NodeExecutionFailedEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Output      map[string]any `json:"output,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

func (w WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id,omitempty"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
}

func (w WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

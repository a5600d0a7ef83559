package services

import (
	"context"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// ExecutionStatus is the polling view of one run.
type ExecutionStatus struct {
	Execution *models.Execution      `json:"execution"`
	Logs      []*models.ExecutionLog `json:"logs,omitempty"`
}

// Executions reports execution state to API callers.
type Executions struct {
	persistence persistence.Persistence
}

func NewExecutions(persistence persistence.Persistence) *Executions {
	return &Executions{persistence: persistence}
}

func (e *Executions) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	return e.persistence.Executions().ExecutionByID(ctx, id)
}

// Status returns the execution along with its node logs in creation order.
func (e *Executions) Status(ctx context.Context, id string) (*ExecutionStatus, error) {
	execution, err := e.persistence.Executions().ExecutionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	logs, err := e.persistence.Executions().LogsByExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	return &ExecutionStatus{Execution: execution, Logs: logs}, nil
}

// ListByWorkflow returns a workflow's executions, newest first.
func (e *Executions) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return e.persistence.Executions().ExecutionsByWorkflow(ctx, workflowID)
}

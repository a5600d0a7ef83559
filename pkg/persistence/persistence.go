// Package persistence abstracts durable storage for workflows, executions,
// logs, and connected accounts. The engine treats it as a transactional
// key-value store keyed by UUID; terminal execution transitions must be
// conditional so the first writer wins.
package persistence

import (
	"context"

	"github.com/cascadehq/cascade/pkg/models"
)

type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Accounts() AccountRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository reads workflow metadata and versions. The engine only
// reads; writes happen in the CRUD layer.
type WorkflowRepository interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error

	// ActiveWorkflows returns workflows in active status with the given
	// trigger type, for the scheduler and queue trigger.
	ActiveWorkflows(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error)

	VersionByID(ctx context.Context, id string) (*models.WorkflowVersion, error)
	ActiveVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error)
	LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error)
	SaveVersion(ctx context.Context, version *models.WorkflowVersion) error

	// ActivateVersion flips is_active to the given version and off for all
	// siblings in one transaction, and stamps the workflow's active-version
	// pointer.
	ActivateVersion(ctx context.Context, workflowID, versionID string) error
}

// ExecutionRepository stores executions and their logs.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)

	// FinishExecution writes a terminal status if and only if the execution
	// is still running (compare-and-swap on status). It reports whether this
	// caller performed the transition; false means another branch already
	// finished the execution and nothing was changed.
	FinishExecution(ctx context.Context, id string, status models.ExecutionStatus, output map[string]any, errMsg string) (bool, error)

	CreateLog(ctx context.Context, log *models.ExecutionLog) error
	UpdateLog(ctx context.Context, log *models.ExecutionLog) error
	LogsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLog, error)
}

// AccountRepository stores OAuth connected accounts used by provider
// handlers.
type AccountRepository interface {
	AccountByUserAndProvider(ctx context.Context, userID, provider string) (*models.ConnectedAccount, error)
	SaveAccount(ctx context.Context, account *models.ConnectedAccount) error
}

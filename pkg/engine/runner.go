package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/graph"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/google/uuid"
)

// ErrWorkflowNotRunnable reports a start attempt against a workflow that is
// not in active status or has no active version.
type ErrWorkflowNotRunnable struct {
	WorkflowID string
	Reason     string
}

func (e *ErrWorkflowNotRunnable) Error() string {
	return fmt.Sprintf("workflow %s is not runnable: %s", e.WorkflowID, e.Reason)
}

// Runner is the single entry point for starting a workflow run, shared by
// the manual trigger, webhook trigger, scheduler, and queue trigger. It
// creates the execution record and dispatches the graph's start nodes; the
// run itself proceeds asynchronously on the work queue.
type Runner struct {
	persistence persistence.Persistence
	dispatcher  *Dispatcher
	logger      *slog.Logger
	now         func() time.Time
}

func NewRunner(persistence persistence.Persistence, dispatcher *Dispatcher, logger *slog.Logger) *Runner {
	return &Runner{
		persistence: persistence,
		dispatcher:  dispatcher,
		logger:      logger.With("module", "runner"),
		now:         time.Now,
	}
}

// Start begins one run of the workflow's active version and returns the
// execution record immediately; callers poll the execution for the outcome.
func (r *Runner) Start(
	ctx context.Context,
	workflow *models.Workflow,
	triggerType models.TriggerType,
	triggerData map[string]any,
) (*models.Execution, error) {
	logger := r.logger.With("workflow_id", workflow.ID, "trigger_type", triggerType)

	if !workflow.IsActive() {
		return nil, &ErrWorkflowNotRunnable{WorkflowID: workflow.ID, Reason: "status is " + string(workflow.Status)}
	}

	version, err := r.persistence.Workflows().ActiveVersion(ctx, workflow.ID)
	if err != nil {
		return nil, &ErrWorkflowNotRunnable{WorkflowID: workflow.ID, Reason: err.Error()}
	}

	g := graph.New(version.Graph)

	execution := &models.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  workflow.ID,
		VersionID:   version.ID,
		Status:      models.ExecutionStatusRunning,
		TriggerType: triggerType,
		TriggerData: triggerData,
		Input:       triggerData,
		StartedAt:   r.now().UTC(),
	}

	err = r.persistence.Executions().CreateExecution(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	logger = logger.With("execution_id", execution.ID, "version_id", version.ID)
	logger.InfoContext(ctx, "Starting workflow execution")

	r.stampLastRun(ctx, workflow)

	startNodes := g.FindStartNodes()
	if len(startNodes) == 0 {
		// An empty graph has nothing to run; the execution completes at once.
		_, err = r.persistence.Executions().FinishExecution(ctx, execution.ID, models.ExecutionStatusCompleted, nil, "")
		if err != nil {
			return nil, fmt.Errorf("failed to finish empty execution: %w", err)
		}

		logger.InfoContext(ctx, "Workflow has no nodes, execution completed immediately")

		return execution, nil
	}

	err = r.dispatcher.Dispatch(ctx, workflow.ID, execution.ID, version.ID, startNodes, triggerData)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Dispatched start nodes", "count", len(startNodes))

	return execution, nil
}

// StartByID loads the workflow and starts it; used by queue consumers that
// only carry a workflow id.
func (r *Runner) StartByID(
	ctx context.Context,
	workflowID string,
	triggerType models.TriggerType,
	triggerData map[string]any,
) (*models.Execution, error) {
	workflow, err := r.persistence.Workflows().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return r.Start(ctx, workflow, triggerType, triggerData)
}

// stampLastRun records the trigger time on the workflow. Failure to stamp
// never blocks the run.
func (r *Runner) stampLastRun(ctx context.Context, workflow *models.Workflow) {
	lastRun := r.now().UTC()
	workflow.LastRunAt = &lastRun

	err := r.persistence.Workflows().SaveWorkflow(ctx, workflow)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to stamp last run time", "workflow_id", workflow.ID, "error", err)
	}
}

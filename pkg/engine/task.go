package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/graph"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/registry"
	"github.com/google/uuid"
)

const (
	// MaxAttempts bounds deliveries of one node activation.
	MaxAttempts = 3

	logMessageStarted = "Node execution started"
)

// BackoffSchedule holds the delay before each redelivery.
var BackoffSchedule = []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second}

// BackoffFor returns the delay to wait before redelivering a failed
// activation whose last delivery was the given 1-based attempt.
func BackoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}

	if idx >= len(BackoffSchedule) {
		idx = len(BackoffSchedule) - 1
	}

	return BackoffSchedule[idx]
}

// Task executes one node of one execution. One activation per
// (execution, node) pair per incoming branch; converging branches activate
// the shared node once each, independently.
type Task struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	dispatcher  *Dispatcher
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewTask(
	persistence persistence.Persistence,
	registry *registry.Registry,
	dispatcher *Dispatcher,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Task {
	return &Task{
		persistence: persistence,
		registry:    registry,
		dispatcher:  dispatcher,
		publisher:   publisher,
		logger:      logger.With("module", "task"),
		now:         time.Now,
	}
}

// Run processes one activation delivery. A returned error is retryable
// under the queue's backoff policy; structural failures and state-guard
// aborts return nil so the delivery is acked without redelivery. The
// execution is marked failed either immediately (structural errors) or on
// the final failed attempt (handler errors); a successful retry before
// that leaves the execution running.
func (t *Task) Run(ctx context.Context, activation *events.NodeActivation) error {
	logger := t.logger.With(
		"workflow_id", activation.WorkflowID,
		"execution_id", activation.ExecutionID,
		"node_id", activation.NodeID,
		"attempt", activation.Attempt,
	)

	execution, err := t.persistence.Executions().ExecutionByID(ctx, activation.ExecutionID)
	if err != nil {
		if persistence.IsNotFound(err) {
			logger.ErrorContext(ctx, "Execution record not found, dropping activation")

			return nil
		}

		return err
	}

	// Guard: a late or duplicate activation for a finished execution is a
	// silent no-op, never a duplicate log or a second terminal write.
	if execution.Status != models.ExecutionStatusRunning {
		logger.DebugContext(ctx, "Execution no longer running, skipping node", "status", execution.Status)

		return nil
	}

	version, err := t.persistence.Workflows().VersionByID(ctx, activation.VersionID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return t.failStructural(ctx, logger, activation, err)
		}

		return err
	}

	g := graph.New(version.Graph)

	node, err := g.Node(activation.NodeID)
	if err != nil {
		return t.failStructural(ctx, logger, activation, err)
	}

	entry := &models.ExecutionLog{
		ID:          uuid.New().String(),
		ExecutionID: activation.ExecutionID,
		NodeID:      node.ID,
		NodeName:    node.DisplayName(),
		NodeType:    node.Type,
		Level:       models.LogLevelInfo,
		Message:     logMessageStarted,
		Data:        map[string]any{"input": activation.Context},
		CreatedAt:   t.now().UTC(),
	}

	err = t.persistence.Executions().CreateLog(ctx, entry)
	if err != nil {
		return err
	}

	handler, err := t.registry.Resolve(ctx, node.Type)
	if err != nil {
		t.closeLogFailed(ctx, logger, entry, err)

		return t.failStructural(ctx, logger, activation, err)
	}

	merged := Merge(activation.Context, map[string]any{"execution_id": activation.ExecutionID})

	handlerCtx, cancel := nodeTimeout(ctx, node.Config)
	defer cancel()

	started := t.now()
	result, err := handler.Handle(handlerCtx, node.Config, merged)

	if err != nil {
		return t.handleFailure(ctx, logger, activation, entry, err)
	}

	t.closeLogCompleted(ctx, logger, entry, result)

	t.publish(ctx, logger, activation.WorkflowID, events.NodeExecutionFinished{
		BaseEvent:   events.NewBaseEvent(events.NodeExecutionFinishedEvent, activation.WorkflowID),
		ExecutionID: activation.ExecutionID,
		NodeID:      node.ID,
		Output:      result,
		DurationMs:  t.now().Sub(started).Milliseconds(),
	})

	successors := g.SuccessorsOf(node.ID)
	if len(successors) == 0 {
		return t.finalizeCompleted(ctx, logger, activation, execution, result)
	}

	return t.dispatcher.Dispatch(
		ctx,
		activation.WorkflowID,
		activation.ExecutionID,
		activation.VersionID,
		successors,
		Merge(activation.Context, result),
	)
}

// finalizeCompleted writes the completed terminal state. With fan-out the
// last branch to finish wins the conditional write; losers are no-ops.
func (t *Task) finalizeCompleted(
	ctx context.Context,
	logger *slog.Logger,
	activation *events.NodeActivation,
	execution *models.Execution,
	result map[string]any,
) error {
	won, err := t.persistence.Executions().FinishExecution(
		ctx, activation.ExecutionID, models.ExecutionStatusCompleted, result, "")
	if err != nil {
		return err
	}

	if !won {
		logger.DebugContext(ctx, "Execution already finished by another branch")

		return nil
	}

	logger.InfoContext(ctx, "Workflow execution completed")

	t.publish(ctx, logger, activation.WorkflowID, events.WorkflowExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionCompletedEvent, activation.WorkflowID),
		ExecutionID: activation.ExecutionID,
		Output:      result,
		DurationMs:  t.now().UTC().Sub(execution.StartedAt).Milliseconds(),
	})

	return nil
}

// handleFailure closes the log for this attempt and decides between
// redelivery and a terminal failed write. Only handler errors are
// retryable; the execution stays running until the retry budget is spent.
func (t *Task) handleFailure(
	ctx context.Context,
	logger *slog.Logger,
	activation *events.NodeActivation,
	entry *models.ExecutionLog,
	handlerErr error,
) error {
	t.closeLogFailed(ctx, logger, entry, handlerErr)

	var he *protocol.HandlerError

	retryable := errors.As(handlerErr, &he)
	final := !retryable || activation.Attempt >= MaxAttempts

	t.publish(ctx, logger, activation.WorkflowID, events.NodeExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.NodeExecutionFailedEvent, activation.WorkflowID),
		ExecutionID: activation.ExecutionID,
		NodeID:      activation.NodeID,
		Error:       handlerErr.Error(),
		Attempt:     activation.Attempt,
		Final:       final,
	})

	if !final {
		logger.WarnContext(ctx, "Node execution failed, will retry", "error", handlerErr)

		return handlerErr
	}

	logger.ErrorContext(ctx, "Node execution failed permanently", "error", handlerErr)

	won, err := t.persistence.Executions().FinishExecution(
		ctx, activation.ExecutionID, models.ExecutionStatusFailed, nil, handlerErr.Error())
	if err != nil {
		return err
	}

	if won {
		t.publish(ctx, logger, activation.WorkflowID, events.WorkflowExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionFailedEvent, activation.WorkflowID),
			ExecutionID: activation.ExecutionID,
			NodeID:      activation.NodeID,
			Error:       handlerErr.Error(),
		})
	}

	return nil
}

// failStructural marks the execution failed for an error that no retry can
// fix, such as a missing node or unknown node type.
func (t *Task) failStructural(
	ctx context.Context,
	logger *slog.Logger,
	activation *events.NodeActivation,
	cause error,
) error {
	logger.ErrorContext(ctx, "Structural error, failing execution", "error", cause)

	won, err := t.persistence.Executions().FinishExecution(
		ctx, activation.ExecutionID, models.ExecutionStatusFailed, nil, cause.Error())
	if err != nil {
		return err
	}

	if won {
		t.publish(ctx, logger, activation.WorkflowID, events.WorkflowExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionFailedEvent, activation.WorkflowID),
			ExecutionID: activation.ExecutionID,
			NodeID:      activation.NodeID,
			Error:       cause.Error(),
		})
	}

	return nil
}

func (t *Task) closeLogCompleted(ctx context.Context, logger *slog.Logger, entry *models.ExecutionLog, result map[string]any) {
	now := t.now().UTC()

	entry.Status = models.LogStatusCompleted
	entry.Message = "Node execution completed"
	entry.Data["output"] = result
	entry.Data["completed_at"] = now.Format(time.RFC3339Nano)
	entry.UpdatedAt = now

	err := t.persistence.Executions().UpdateLog(ctx, entry)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to close execution log", "error", err)
	}
}

func (t *Task) closeLogFailed(ctx context.Context, logger *slog.Logger, entry *models.ExecutionLog, cause error) {
	now := t.now().UTC()

	entry.Status = models.LogStatusFailed
	entry.Level = models.LogLevelError
	entry.Message = "Node execution failed"
	entry.Data["error"] = cause.Error()
	entry.Data["trace"] = fmt.Sprintf("%+v", cause)
	entry.Data["failed_at"] = now.Format(time.RFC3339Nano)
	entry.UpdatedAt = now

	err := t.persistence.Executions().UpdateLog(ctx, entry)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to close execution log", "error", err)
	}
}

func (t *Task) publish(ctx context.Context, logger *slog.Logger, key string, event eventbus.Event) {
	err := t.publisher.Publish(ctx, key, event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// nodeTimeout derives the handler context from the node config's timeout
// in seconds. Without one the handler call is bounded only by its own
// client timeouts.
func nodeTimeout(ctx context.Context, config map[string]any) (context.Context, context.CancelFunc) {
	var seconds float64

	switch v := config["timeout"].(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	}

	if seconds <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, time.Duration(seconds*float64(time.Second)))
}

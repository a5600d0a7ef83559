package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Worker consumes the work queue: it starts runs for triggered workflows
// and executes node activations, scheduling redeliveries with backoff when
// a retryable attempt fails.
type Worker struct {
	id       string
	eventBus eventbus.EventBus
	runner   *Runner
	task     *Task
	tracer   trace.Tracer
	logger   *slog.Logger

	// after is swapped in tests to avoid real backoff waits.
	after func(d time.Duration, f func()) *time.Timer
}

func NewWorker(id string, eventBus eventbus.EventBus, runner *Runner, task *Task, tracer trace.Tracer, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		eventBus: eventBus,
		runner:   runner,
		task:     task,
		tracer:   tracer,
		logger:   logger.With("module", "worker", "worker_id", id),
		after:    time.AfterFunc,
	}
}

// Start registers the worker's event handlers and begins consuming. It
// returns once the subscription is established; consumption continues until
// ctx is cancelled or the bus is closed.
func (w *Worker) Start(ctx context.Context) error {
	err := w.eventBus.Handle(events.WorkflowTriggeredEvent, w.handleWorkflowTriggered)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.NodeActivationEvent, w.handleNodeActivation)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	return nil
}

func (w *Worker) handleWorkflowTriggered(ctx context.Context, event any) error {
	triggered, ok := event.(*events.WorkflowTriggered)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event payload for workflow trigger")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow.start",
		attribute.String(otelhelper.WorkflowIDKey, triggered.WorkflowID),
		attribute.String(otelhelper.EventIDKey, triggered.ID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	_, err := w.runner.StartByID(ctx, triggered.WorkflowID, models.TriggerType(triggered.TriggerType), triggered.TriggerData)
	if err != nil {
		otelhelper.SetError(span, err)
		w.logger.ErrorContext(ctx, "Failed to start workflow",
			"workflow_id", triggered.WorkflowID, "error", err)
	}

	// Trigger events are never redelivered; a failed start is final.
	return nil
}

func (w *Worker) handleNodeActivation(ctx context.Context, event any) error {
	activation, ok := event.(*events.NodeActivation)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event payload for node activation")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "node.execute",
		attribute.String(otelhelper.WorkflowIDKey, activation.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, activation.ExecutionID),
		attribute.String(otelhelper.NodeIDKey, activation.NodeID),
		attribute.Int(otelhelper.AttemptKey, activation.Attempt),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	err := w.task.Run(ctx, activation)
	if err == nil {
		return nil
	}

	otelhelper.SetError(span, err)

	if activation.Attempt >= MaxAttempts {
		// The task already wrote the terminal failure; ack the delivery.
		return nil
	}

	w.scheduleRetry(activation)

	return nil
}

// scheduleRetry republishes the activation with the attempt counter bumped
// after the backoff delay. The redelivered task runs in full, log open and
// close included. The timer is in-process and the failed delivery is already
// acked, so a worker crash inside the backoff window drops the retry and
// leaves the execution running.
func (w *Worker) scheduleRetry(activation *events.NodeActivation) {
	retry := *activation
	retry.BaseEvent = events.NewBaseEvent(events.NodeActivationEvent, activation.WorkflowID)
	retry.Attempt = activation.Attempt + 1

	delay := BackoffFor(activation.Attempt)

	w.logger.Warn("Scheduling node retry",
		"execution_id", activation.ExecutionID,
		"node_id", activation.NodeID,
		"attempt", retry.Attempt,
		"delay", delay,
	)

	w.after(delay, func() {
		err := w.eventBus.Publish(context.Background(), activation.WorkflowID, retry)
		if err != nil {
			w.logger.Error("Failed to publish retry activation",
				"execution_id", activation.ExecutionID,
				"node_id", activation.NodeID,
				"error", err,
			)
		}
	})
}

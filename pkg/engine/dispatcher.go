package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
)

// Dispatcher enqueues node activations onto the work queue. Enqueue is
// fire-and-forget; the caller never blocks on descendant completion, which
// keeps wide fan-outs from building synchronous call chains.
type Dispatcher struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewDispatcher(publisher eventbus.EventPublisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		logger:    logger.With("module", "dispatcher"),
	}
}

// Dispatch publishes one activation per node id, in the given order, each
// carrying its own copy of the branch context. Activations start at attempt 1.
func (d *Dispatcher) Dispatch(ctx context.Context, workflowID, executionID, versionID string, nodeIDs []string, execCtx map[string]any) error {
	for _, nodeID := range nodeIDs {
		activation := events.NodeActivation{
			BaseEvent:   events.NewBaseEvent(events.NodeActivationEvent, workflowID),
			ExecutionID: executionID,
			VersionID:   versionID,
			NodeID:      nodeID,
			Context:     Merge(execCtx, nil),
			Attempt:     1,
		}

		err := d.publisher.Publish(ctx, workflowID, activation)
		if err != nil {
			return fmt.Errorf("failed to dispatch node %s: %w", nodeID, err)
		}

		d.logger.DebugContext(ctx, "Dispatched node activation",
			"workflow_id", workflowID,
			"execution_id", executionID,
			"node_id", nodeID,
		)
	}

	return nil
}

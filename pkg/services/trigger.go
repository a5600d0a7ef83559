package services

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/cascadehq/cascade/pkg/engine"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// WebhookRequest carries the inbound webhook call as trigger data.
type WebhookRequest struct {
	Token   string
	Input   map[string]any
	Headers map[string]string
	IP      string
}

// Trigger turns external trigger requests into workflow executions. All
// rejections happen before any Execution record exists; the caller gets the
// execution id immediately and polls for the outcome.
type Trigger struct {
	persistence persistence.Persistence
	runner      *engine.Runner
	logger      *slog.Logger
}

func NewTrigger(persistence persistence.Persistence, runner *engine.Runner, logger *slog.Logger) *Trigger {
	return &Trigger{
		persistence: persistence,
		runner:      runner,
		logger:      logger.With("module", "trigger_service"),
	}
}

// ExecuteManual starts a run on behalf of a user.
func (t *Trigger) ExecuteManual(ctx context.Context, workflowID, userID string, input map[string]any) (*models.Execution, error) {
	workflow, err := t.persistence.Workflows().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsActive() {
		return nil, &ServiceError{Op: "ExecuteManual", Code: "workflow_not_active", Err: ErrWorkflowNotActive}
	}

	triggerData := map[string]any{
		"user_id": userID,
		"input":   input,
	}

	return t.runner.Start(ctx, workflow, models.TriggerTypeManual, triggerData)
}

// ExecuteWebhook starts a run from an inbound webhook. The token must match
// the workflow's stored token and the workflow must be active; both checks
// run before any execution record is created.
func (t *Trigger) ExecuteWebhook(ctx context.Context, workflowID string, req WebhookRequest) (*models.Execution, error) {
	workflow, err := t.persistence.Workflows().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !tokenMatches(workflow.WebhookToken, req.Token) {
		t.logger.WarnContext(ctx, "Webhook rejected: invalid token", "workflow_id", workflowID, "ip", req.IP)

		return nil, &ServiceError{Op: "ExecuteWebhook", Code: "invalid_webhook_token", Err: ErrInvalidWebhookToken}
	}

	if !workflow.IsActive() {
		return nil, &ServiceError{Op: "ExecuteWebhook", Code: "workflow_not_active", Err: ErrWorkflowNotActive}
	}

	headers := make(map[string]any, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = v
	}

	triggerData := map[string]any{
		"input":   req.Input,
		"headers": headers,
		"ip":      req.IP,
	}

	return t.runner.Start(ctx, workflow, models.TriggerTypeWebhook, triggerData)
}

func tokenMatches(stored, provided string) bool {
	if stored == "" || provided == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) == 1
}

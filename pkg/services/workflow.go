package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// graphSchema validates the shape of a workflow_json document at save time.
// Referential integrity between connections and nodes stays a runtime
// concern; edges pointing at missing nodes fail the execution, not the save.
const graphSchema = `{
	"type": "object",
	"required": ["nodes", "connections"],
	"properties": {
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "type"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"type": {"type": "string", "minLength": 1},
					"name": {"type": "string"},
					"config": {"type": "object"}
				}
			}
		},
		"connections": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source", "target"],
				"properties": {
					"source": {"type": "string", "minLength": 1},
					"target": {"type": "string", "minLength": 1}
				}
			}
		}
	}
}`

const webhookTokenLength = 40

// Workflows manages workflow metadata and versions.
type Workflows struct {
	persistence persistence.Persistence
	validator   *validator.Validate
	schema      *gojsonschema.Schema
	now         func() time.Time
}

func NewWorkflows(persistence persistence.Persistence) (*Workflows, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(graphSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile graph schema: %w", err)
	}

	return &Workflows{
		persistence: persistence,
		validator:   validator.New(),
		schema:      schema,
		now:         time.Now,
	}, nil
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflows) HealthCheck(ctx context.Context) (string, bool) {
	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (w *Workflows) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.Workflows().WorkflowByID(ctx, id)
}

// CreateWorkflow persists a new workflow in draft status. Webhook workflows
// get a fresh webhook token.
func (w *Workflows) CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if workflow.TriggerType == models.TriggerTypeWebhook && workflow.WebhookToken == "" {
		workflow.WebhookToken = generateWebhookToken()
	}

	err := w.validator.Struct(workflow)
	if err != nil {
		return nil, NewValidationError("CreateWorkflow", "invalid_workflow", err.Error(), ErrInvalidRequest)
	}

	now := w.now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	err = w.persistence.Workflows().SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// RotateWebhookToken replaces the workflow's webhook token, invalidating the
// previous webhook URL.
func (w *Workflows) RotateWebhookToken(ctx context.Context, workflowID string) (string, error) {
	workflow, err := w.persistence.Workflows().WorkflowByID(ctx, workflowID)
	if err != nil {
		return "", err
	}

	workflow.WebhookToken = generateWebhookToken()
	workflow.UpdatedAt = w.now().UTC()

	err = w.persistence.Workflows().SaveWorkflow(ctx, workflow)
	if err != nil {
		return "", err
	}

	return workflow.WebhookToken, nil
}

// SaveVersion validates the graph document and stores it as a new inactive
// version with the patch number bumped from the latest version.
func (w *Workflows) SaveVersion(ctx context.Context, workflowID string, graph *models.GraphDoc, notes string) (*models.WorkflowVersion, error) {
	if _, err := w.persistence.Workflows().WorkflowByID(ctx, workflowID); err != nil {
		return nil, err
	}

	err := w.validateGraph(graph)
	if err != nil {
		return nil, err
	}

	versionLabel := "1.0.0"

	latest, err := w.persistence.Workflows().LatestVersion(ctx, workflowID)
	if err == nil {
		versionLabel = BumpPatch(latest.Version)
	} else if !persistence.IsNotFound(err) {
		return nil, err
	}

	version := &models.WorkflowVersion{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Version:    versionLabel,
		Notes:      notes,
		Graph:      graph,
		CreatedAt:  w.now().UTC(),
	}

	err = w.persistence.Workflows().SaveVersion(ctx, version)
	if err != nil {
		return nil, err
	}

	return version, nil
}

// ActivateVersion makes the given version the one executions run, flipping
// any previously active sibling off in the same transaction.
func (w *Workflows) ActivateVersion(ctx context.Context, workflowID, versionID string) error {
	version, err := w.persistence.Workflows().VersionByID(ctx, versionID)
	if err != nil {
		return err
	}

	if version.WorkflowID != workflowID {
		return &ServiceError{Op: "ActivateVersion", Code: "version_not_owned", Err: ErrVersionNotOwned}
	}

	return w.persistence.Workflows().ActivateVersion(ctx, workflowID, versionID)
}

func (w *Workflows) validateGraph(graph *models.GraphDoc) error {
	if graph == nil {
		return NewValidationError("SaveVersion", "invalid_graph", "graph document is required", ErrInvalidGraph)
	}

	result, err := w.schema.Validate(gojsonschema.NewGoLoader(graph))
	if err != nil {
		return NewValidationError("SaveVersion", "invalid_graph", err.Error(), ErrInvalidGraph)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return NewValidationError("SaveVersion", "invalid_graph", strings.Join(details, "; "), ErrInvalidGraph)
	}

	return nil
}

// BumpPatch increments the patch component of a semver-ish "1.2.3" label.
// Unparseable labels restart at "1.0.0".
func BumpPatch(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return "1.0.0"
	}

	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return "1.0.0"
	}

	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}

func generateWebhookToken() string {
	buf := make([]byte, webhookTokenLength/2)
	_, _ = rand.Read(buf)

	return hex.EncodeToString(buf)
}

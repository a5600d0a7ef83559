package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cascadehq/cascade/pkg/engine"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/cascadehq/cascade/pkg/services"
	"github.com/cascadehq/cascade/pkg/testutil"
	"github.com/cascadehq/cascade/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopPublisher struct{}

func (nopPublisher) Publish(_ context.Context, _ string, _ eventbus.Event) error { return nil }

func newApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	logger := slog.Default()
	store := file.NewPersistence(t.TempDir())

	dispatcher := engine.NewDispatcher(nopPublisher{}, logger)
	runner := engine.NewRunner(store, dispatcher, logger)

	workflowService, err := services.NewWorkflows(store)
	require.NoError(t, err)

	handlers := web.NewAPIHandlers(
		workflowService,
		services.NewTrigger(store, runner, logger),
		services.NewExecutions(store),
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/versions", handlers.SaveVersion)
	w.Post("/:id/versions/:versionId/activate", handlers.ActivateVersion)
	w.Post("/:id/webhook-token/rotate", handlers.RotateWebhookToken)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Post("/:id/webhook/:token", handlers.Webhook)
	w.Get("/:id/executions", handlers.ListExecutions)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/logs", handlers.GetExecutionLogs)

	return app, store
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func seedActive(t *testing.T, store *file.Persistence, workflow *models.Workflow) {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))

	version := testutil.Version(workflow.ID, testutil.Graph([]*models.Node{testutil.Node("a")}))
	require.NoError(t, store.Workflows().SaveVersion(ctx, version))
}

func TestCreateWorkflow(t *testing.T) {
	t.Parallel()

	app, store := newApp(t)

	resp := postJSON(t, app, "/workflows", map[string]any{
		"name":         "Deploy notifier",
		"trigger_type": "webhook",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow

	decodeBody(t, resp, &created)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Len(t, created.WebhookToken, 40)

	stored, err := store.Workflows().WorkflowByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Deploy notifier", stored.Name)
}

func TestCreateWorkflowValidation(t *testing.T) {
	t.Parallel()

	app, _ := newApp(t)

	resp := postJSON(t, app, "/workflows", map[string]any{
		"name":         "ab",
		"trigger_type": "manual",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, app, "/workflows", map[string]any{
		"name":         "No trigger type",
		"trigger_type": "carrier-pigeon",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSaveAndActivateVersion(t *testing.T) {
	t.Parallel()

	app, store := newApp(t)

	workflow := testutil.Workflow()
	require.NoError(t, store.Workflows().SaveWorkflow(context.Background(), workflow))

	resp := postJSON(t, app, "/workflows/"+workflow.ID+"/versions", map[string]any{
		"workflow_json": map[string]any{
			"nodes":       []map[string]any{{"id": "a", "type": "log"}},
			"connections": []map[string]any{},
		},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var version models.WorkflowVersion

	decodeBody(t, resp, &version)
	assert.Equal(t, "1.0.0", version.Version)

	req := httptest.NewRequest(http.MethodPost,
		"/workflows/"+workflow.ID+"/versions/"+version.ID+"/activate", nil)

	activateResp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, activateResp.StatusCode)

	active, err := store.Workflows().ActiveVersion(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, version.ID, active.ID)
}

func TestSaveVersionInvalidGraph(t *testing.T) {
	t.Parallel()

	app, store := newApp(t)

	workflow := testutil.Workflow()
	require.NoError(t, store.Workflows().SaveWorkflow(context.Background(), workflow))

	resp := postJSON(t, app, "/workflows/"+workflow.ID+"/versions", map[string]any{
		"workflow_json": map[string]any{
			"nodes":       []map[string]any{{"id": "a"}},
			"connections": []map[string]any{},
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteWorkflowAccepted(t *testing.T) {
	t.Parallel()

	app, store := newApp(t)

	workflow := testutil.Workflow()
	seedActive(t, store, workflow)

	resp := postJSON(t, app, "/workflows/"+workflow.ID+"/execute", map[string]any{
		"user_id": "user-1",
		"input":   map[string]any{"city": "Lisbon"},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted web.ExecutionAccepted

	decodeBody(t, resp, &accepted)
	assert.Equal(t, workflow.ID, accepted.WorkflowID)
	assert.Equal(t, "running", accepted.Status)

	execution, err := store.Executions().ExecutionByID(context.Background(), accepted.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
}

func TestWebhookRejectsBadToken(t *testing.T) {
	t.Parallel()

	app, store := newApp(t)

	workflow := testutil.Workflow(
		testutil.WithTrigger(models.TriggerTypeWebhook),
		testutil.WithWebhookToken("secret-token"),
	)
	seedActive(t, store, workflow)

	resp := postJSON(t, app, "/workflows/"+workflow.ID+"/webhook/wrong", map[string]any{"event": "push"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	executions, err := store.Executions().ExecutionsByWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestWebhookAccepted(t *testing.T) {
	t.Parallel()

	app, store := newApp(t)

	workflow := testutil.Workflow(
		testutil.WithTrigger(models.TriggerTypeWebhook),
		testutil.WithWebhookToken("secret-token"),
	)
	seedActive(t, store, workflow)

	resp := postJSON(t, app, "/workflows/"+workflow.ID+"/webhook/secret-token", map[string]any{"event": "push"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted web.ExecutionAccepted

	decodeBody(t, resp, &accepted)

	execution, err := store.Executions().ExecutionByID(context.Background(), accepted.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerTypeWebhook, execution.TriggerType)
	assert.Equal(t, map[string]any{"event": "push"}, execution.TriggerData["input"])
}

func TestRotateWebhookToken(t *testing.T) {
	t.Parallel()

	app, store := newApp(t)

	workflow := testutil.Workflow(
		testutil.WithTrigger(models.TriggerTypeWebhook),
		testutil.WithWebhookToken("old-token"),
	)
	require.NoError(t, store.Workflows().SaveWorkflow(context.Background(), workflow))

	req := httptest.NewRequest(http.MethodPost, "/workflows/"+workflow.ID+"/webhook-token/rotate", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]string

	decodeBody(t, resp, &payload)
	assert.Len(t, payload["webhook_token"], 40)
	assert.NotEqual(t, "old-token", payload["webhook_token"])
}

func TestGetExecutionNotFound(t *testing.T) {
	t.Parallel()

	app, _ := newApp(t)

	req := httptest.NewRequest(http.MethodGet, "/executions/missing", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetExecutionLogs(t *testing.T) {
	t.Parallel()

	app, store := newApp(t)

	workflow := testutil.Workflow()
	seedActive(t, store, workflow)

	resp := postJSON(t, app, "/workflows/"+workflow.ID+"/execute", map[string]any{"user_id": "user-1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted web.ExecutionAccepted

	decodeBody(t, resp, &accepted)

	req := httptest.NewRequest(http.MethodGet, "/executions/"+accepted.ExecutionID+"/logs", nil)

	logsResp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, logsResp.StatusCode)

	var payload struct {
		ExecutionID string                 `json:"execution_id"`
		Status      models.ExecutionStatus `json:"status"`
		Logs        []*models.ExecutionLog `json:"logs"`
	}

	decodeBody(t, logsResp, &payload)
	assert.Equal(t, accepted.ExecutionID, payload.ExecutionID)
	assert.Equal(t, models.ExecutionStatusRunning, payload.Status)
	assert.Empty(t, payload.Logs)
}

// Package web provides the HTTP handlers for workflow management, trigger
// entry points, and execution polling.
package web

import (
	"net/http"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflows  *services.Workflows
	trigger    *services.Trigger
	executions *services.Executions
	validator  *validator.Validate
}

func NewAPIHandlers(
	workflows *services.Workflows,
	trigger *services.Trigger,
	executions *services.Executions,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflows:  workflows,
		trigger:    trigger,
		executions: executions,
		validator:  validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeCheck, ok := h.workflows.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  fiber.Map{"store": storeCheck},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:           req.Name,
		Description:    req.Description,
		ProjectID:      req.ProjectID,
		Status:         models.WorkflowStatusDraft,
		TriggerType:    req.TriggerType,
		CronExpression: req.CronExpression,
	}

	created, err := h.workflows.CreateWorkflow(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflows.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) SaveVersion(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req SaveVersionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := h.workflows.SaveVersion(c.Context(), id, req.Graph, req.Notes)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(version)
}

func (h *APIHandlers) ActivateVersion(c fiber.Ctx) error {
	id := c.Params("id")
	versionID := c.Params("versionId")

	if id == "" || versionID == "" {
		return badRequest(c, "Workflow ID and version ID are required")
	}

	err := h.workflows.ActivateVersion(c.Context(), id, versionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RotateWebhookToken(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	token, err := h.workflows.RotateWebhookToken(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"webhook_token": token})
}

// ExecuteWorkflow triggers a manual run and acknowledges immediately with
// the execution id.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ExecuteWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.trigger.ExecuteManual(c.Context(), id, req.UserID, req.Input)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecutionAccepted{
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		Status:      string(execution.Status),
	})
}

// Webhook triggers a run from an inbound webhook call. A bad token or an
// inactive workflow is rejected before any execution record exists.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	id := c.Params("id")
	token := c.Params("token")

	if id == "" || token == "" {
		return badRequest(c, "Workflow ID and token are required")
	}

	var input map[string]any
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&input); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	execution, err := h.trigger.ExecuteWebhook(c.Context(), id, services.WebhookRequest{
		Token:   token,
		Input:   input,
		Headers: headers,
		IP:      c.IP(),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ExecutionAccepted{
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		Status:      string(execution.Status),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.executions.ExecutionByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	status, err := h.executions.Status(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": id,
		"status":       status.Execution.Status,
		"logs":         status.Logs,
	})
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	executions, err := h.executions.ListByWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// WorkflowRepository handles workflow and version rows.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const workflowColumns = `
	id
  , project_id
  , name
  , description
  , status
  , trigger_type
  , cron_expression
  , webhook_token
  , active_version_id
  , last_run_at
  , created_at
  , updated_at
`

func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND deleted_at IS NULL`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to query workflow: %w", err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	query := `
		INSERT INTO workflows (
			id, project_id, name, description, status, trigger_type,
			cron_expression, webhook_token, active_version_id, last_run_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , status = EXCLUDED.status
		  , trigger_type = EXCLUDED.trigger_type
		  , cron_expression = EXCLUDED.cron_expression
		  , webhook_token = EXCLUDED.webhook_token
		  , active_version_id = EXCLUDED.active_version_id
		  , last_run_at = EXCLUDED.last_run_at
		  , updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		workflow.ID,
		nullableString(workflow.ProjectID),
		workflow.Name,
		workflow.Description,
		workflow.Status,
		workflow.TriggerType,
		nullableString(workflow.CronExpression),
		nullableString(workflow.WebhookToken),
		nullableString(workflow.ActiveVersionID),
		workflow.LastRunAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "SaveWorkflow", ID: workflow.ID, Err: err}
	}

	return nil
}

func (r *WorkflowRepository) ActiveWorkflows(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE status = 'active' AND trigger_type = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to query active workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

const versionColumns = `
	id
  , workflow_id
  , version
  , notes
  , workflow_json
  , is_active
  , created_at
`

func (r *WorkflowRepository) VersionByID(ctx context.Context, id string) (*models.WorkflowVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM workflow_versions WHERE id = $1 AND deleted_at IS NULL`

	version, err := scanVersion(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to query workflow version: %w", err)
	}

	return version, nil
}

func (r *WorkflowRepository) ActiveVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM workflow_versions
		WHERE workflow_id = $1 AND is_active AND deleted_at IS NULL
	`

	version, err := scanVersion(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNoActiveVersion
		}

		return nil, fmt.Errorf("failed to query active version: %w", err)
	}

	return version, nil
}

func (r *WorkflowRepository) LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM workflow_versions
		WHERE workflow_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	version, err := scanVersion(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to query latest version: %w", err)
	}

	return version, nil
}

func (r *WorkflowRepository) SaveVersion(ctx context.Context, version *models.WorkflowVersion) error {
	graphJSON, err := json.Marshal(version.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow graph: %w", err)
	}

	query := `
		INSERT INTO workflow_versions (id, workflow_id, version, notes, workflow_json, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		version.ID,
		version.WorkflowID,
		version.Version,
		version.Notes,
		graphJSON,
		version.IsActive,
		version.CreatedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "SaveVersion", ID: version.ID, Err: err}
	}

	return nil
}

func (r *WorkflowRepository) ActivateVersion(ctx context.Context, workflowID, versionID string) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin activation transaction: %w", err)
	}

	_, err = transaction.ExecContext(ctx,
		`UPDATE workflow_versions SET is_active = FALSE WHERE workflow_id = $1 AND id <> $2`,
		workflowID, versionID)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to deactivate sibling versions: %w", err)
	}

	result, err := transaction.ExecContext(ctx,
		`UPDATE workflow_versions SET is_active = TRUE WHERE id = $1 AND workflow_id = $2`,
		versionID, workflowID)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to activate version: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to read activation result: %w", err)
	}

	if affected == 0 {
		_ = transaction.Rollback()

		return persistence.ErrVersionNotFound
	}

	_, err = transaction.ExecContext(ctx,
		`UPDATE workflows SET active_version_id = $2, updated_at = NOW() WHERE id = $1`,
		workflowID, versionID)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to stamp active version on workflow: %w", err)
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow        models.Workflow
		projectID       sql.NullString
		cronExpression  sql.NullString
		webhookToken    sql.NullString
		activeVersionID sql.NullString
		lastRunAt       sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&projectID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&workflow.TriggerType,
		&cronExpression,
		&webhookToken,
		&activeVersionID,
		&lastRunAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.ProjectID = projectID.String
	workflow.CronExpression = cronExpression.String
	workflow.WebhookToken = webhookToken.String
	workflow.ActiveVersionID = activeVersionID.String

	if lastRunAt.Valid {
		t := lastRunAt.Time

		workflow.LastRunAt = &t
	}

	return &workflow, nil
}

func scanVersion(row rowScanner) (*models.WorkflowVersion, error) {
	var (
		version   models.WorkflowVersion
		graphJSON []byte
	)

	err := row.Scan(
		&version.ID,
		&version.WorkflowID,
		&version.Version,
		&version.Notes,
		&graphJSON,
		&version.IsActive,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(graphJSON) > 0 {
		err = json.Unmarshal(graphJSON, &version.Graph)
		if err != nil {
			return nil, fmt.Errorf("failed to decode workflow graph: %w", err)
		}
	}

	return &version, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

// ExecutionRepository handles execution and execution_log rows. Terminal
// transitions use a conditional UPDATE on status = 'running' so concurrent
// branches cannot both finalize one execution.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.Execution) error {
	triggerData, err := marshalMap(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	input, err := marshalMap(execution.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, version_id, status, trigger_type, trigger_data, input, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.VersionID,
		execution.Status,
		execution.TriggerType,
		triggerData,
		input,
		execution.StartedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "CreateExecution", ID: execution.ID, Err: err}
	}

	return nil
}

const executionColumns = `
	id
  , workflow_id
  , version_id
  , status
  , trigger_type
  , trigger_data
  , input
  , output
  , error
  , started_at
  , finished_at
  , execution_time
`

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1 AND deleted_at IS NULL`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to query execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE workflow_id = $1 AND deleted_at IS NULL
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) FinishExecution(ctx context.Context, id string, status models.ExecutionStatus, output map[string]any, errMsg string) (bool, error) {
	outputJSON, err := marshalMap(output)
	if err != nil {
		return false, fmt.Errorf("failed to marshal output: %w", err)
	}

	query := `
		UPDATE executions
		SET status = $2
		  , output = $3
		  , error = $4
		  , finished_at = $5
		  , execution_time = (EXTRACT(EPOCH FROM ($5::timestamptz - started_at)) * 1000)::bigint
		WHERE id = $1 AND status = 'running'
	`

	result, err := r.db.ExecContext(ctx, query, id, status, outputJSON, nullableString(errMsg), time.Now().UTC())
	if err != nil {
		return false, &persistence.StoreError{Op: "FinishExecution", ID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read finish result: %w", err)
	}

	return affected == 1, nil
}

func (r *ExecutionRepository) CreateLog(ctx context.Context, log *models.ExecutionLog) error {
	data, err := marshalMap(log.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal log data: %w", err)
	}

	query := `
		INSERT INTO execution_logs (id, execution_id, node_id, node_name, node_type, level, status, message, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		log.ExecutionID,
		log.NodeID,
		log.NodeName,
		log.NodeType,
		log.Level,
		nullableString(string(log.Status)),
		log.Message,
		data,
		log.CreatedAt,
		log.UpdatedAt,
	)
	if err != nil {
		return &persistence.StoreError{Op: "CreateLog", ID: log.ID, Err: err}
	}

	return nil
}

func (r *ExecutionRepository) UpdateLog(ctx context.Context, log *models.ExecutionLog) error {
	data, err := marshalMap(log.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal log data: %w", err)
	}

	query := `
		UPDATE execution_logs
		SET level = $2
		  , status = $3
		  , message = $4
		  , data = $5
		  , updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.Level,
		nullableString(string(log.Status)),
		log.Message,
		data,
	)
	if err != nil {
		return &persistence.StoreError{Op: "UpdateLog", ID: log.ID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read log update result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrLogNotFound
	}

	return nil
}

func (r *ExecutionRepository) LogsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	query := `
		SELECT id, execution_id, node_id, node_name, node_type, level, status, message, data, created_at, updated_at
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	logs := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		var (
			log    models.ExecutionLog
			status sql.NullString
			data   []byte
		)

		err := rows.Scan(
			&log.ID,
			&log.ExecutionID,
			&log.NodeID,
			&log.NodeName,
			&log.NodeType,
			&log.Level,
			&status,
			&log.Message,
			&data,
			&log.CreatedAt,
			&log.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		log.Status = models.LogStatus(status.String)

		if len(data) > 0 {
			err = json.Unmarshal(data, &log.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode log data: %w", err)
			}
		}

		logs = append(logs, &log)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return logs, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution     models.Execution
		triggerData   []byte
		input         []byte
		output        []byte
		errMsg        sql.NullString
		finishedAt    sql.NullTime
		executionTime sql.NullInt64
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.VersionID,
		&execution.Status,
		&execution.TriggerType,
		&triggerData,
		&input,
		&output,
		&errMsg,
		&execution.StartedAt,
		&finishedAt,
		&executionTime,
	)
	if err != nil {
		return nil, err
	}

	execution.Error = errMsg.String
	execution.ExecutionTime = executionTime.Int64

	if finishedAt.Valid {
		t := finishedAt.Time

		execution.FinishedAt = &t
	}

	for _, pair := range []struct {
		raw []byte
		out *map[string]any
	}{
		{triggerData, &execution.TriggerData},
		{input, &execution.Input},
		{output, &execution.Output},
	} {
		if len(pair.raw) == 0 {
			continue
		}

		err = json.Unmarshal(pair.raw, pair.out)
		if err != nil {
			return nil, fmt.Errorf("failed to decode execution payload: %w", err)
		}
	}

	return &execution, nil
}

// marshalMap returns nil for empty maps so the column stays NULL.
func marshalMap(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}

	return json.Marshal(m)
}

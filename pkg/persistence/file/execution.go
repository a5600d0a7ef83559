package file

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

const (
	executionsDir = "executions"
	logsDir       = "logs"
)

// ExecutionRepository stores executions and per-node logs as JSON files.
// FinishExecution performs its compare-and-swap under the store mutex so
// concurrent branches cannot both claim the terminal transition.
type ExecutionRepository struct {
	store *Persistence
}

func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.Execution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(executionsDir, execution.ID, execution)
}

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.executionByIDLocked(id)
}

func (r *ExecutionRepository) executionByIDLocked(id string) (*models.Execution, error) {
	var execution models.Execution

	err := r.store.read(executionsDir, id, &execution, persistence.ErrExecutionNotFound)
	if err != nil {
		return nil, err
	}

	return &execution, nil
}

func (r *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var executions []*models.Execution

	err := r.store.readAll(executionsDir, func(payload []byte) error {
		var execution models.Execution

		err := json.Unmarshal(payload, &execution)
		if err != nil {
			return err
		}

		if execution.WorkflowID == workflowID && execution.DeletedAt == nil {
			executions = append(executions, &execution)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

func (r *ExecutionRepository) FinishExecution(ctx context.Context, id string, status models.ExecutionStatus, output map[string]any, errMsg string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	execution, err := r.executionByIDLocked(id)
	if err != nil {
		return false, err
	}

	if execution.Status != models.ExecutionStatusRunning {
		return false, nil
	}

	now := time.Now().UTC()

	execution.Status = status
	execution.FinishedAt = &now
	execution.ExecutionTime = now.Sub(execution.StartedAt).Milliseconds()
	execution.Output = output
	execution.Error = errMsg

	err = r.store.write(executionsDir, execution.ID, execution)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *ExecutionRepository) CreateLog(ctx context.Context, log *models.ExecutionLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(filepath.Join(logsDir, log.ExecutionID), log.ID, log)
}

func (r *ExecutionRepository) UpdateLog(ctx context.Context, log *models.ExecutionLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	dir := filepath.Join(logsDir, log.ExecutionID)

	var existing models.ExecutionLog

	err := r.store.read(dir, log.ID, &existing, persistence.ErrLogNotFound)
	if err != nil {
		return err
	}

	return r.store.write(dir, log.ID, log)
}

func (r *ExecutionRepository) LogsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var logs []*models.ExecutionLog

	err := r.store.readAll(filepath.Join(logsDir, executionID), func(payload []byte) error {
		var log models.ExecutionLog

		err := json.Unmarshal(payload, &log)
		if err != nil {
			return err
		}

		logs = append(logs, &log)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].CreatedAt.Equal(logs[j].CreatedAt) {
			return logs[i].ID < logs[j].ID
		}

		return logs[i].CreatedAt.Before(logs[j].CreatedAt)
	})

	return logs, nil
}

package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/cascadehq/cascade/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *file.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func newExecution(t *testing.T, store *file.Persistence) *models.Execution {
	t.Helper()

	execution := &models.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  uuid.New().String(),
		VersionID:   uuid.New().String(),
		Status:      models.ExecutionStatusRunning,
		TriggerType: models.TriggerTypeManual,
		StartedAt:   time.Now().UTC(),
	}

	require.NoError(t, store.Executions().CreateExecution(context.Background(), execution))

	return execution
}

func TestFinishExecutionFirstWriterWins(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	execution := newExecution(t, store)
	ctx := context.Background()

	won, err := store.Executions().FinishExecution(ctx, execution.ID,
		models.ExecutionStatusCompleted, map[string]any{"value": "ok"}, "")
	require.NoError(t, err)
	assert.True(t, won)

	first, err := store.Executions().ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	require.NotNil(t, first.FinishedAt)

	// The losing write changes nothing, not even the timestamps.
	won, err = store.Executions().FinishExecution(ctx, execution.ID,
		models.ExecutionStatusFailed, nil, "too late")
	require.NoError(t, err)
	assert.False(t, won)

	second, err := store.Executions().ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, second.Status)
	assert.Empty(t, second.Error)
	assert.Equal(t, first.FinishedAt, second.FinishedAt)
}

func TestFinishExecutionUnknownID(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	_, err := store.Executions().FinishExecution(context.Background(), "missing",
		models.ExecutionStatusCompleted, nil, "")
	assert.True(t, persistence.IsNotFound(err))
}

func TestExecutionsByWorkflowNewestFirst(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()
	workflowID := uuid.New().String()

	base := time.Now().UTC()

	for i := range 3 {
		execution := &models.Execution{
			ID:          uuid.New().String(),
			WorkflowID:  workflowID,
			Status:      models.ExecutionStatusRunning,
			TriggerType: models.TriggerTypeManual,
			StartedAt:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Executions().CreateExecution(ctx, execution))
	}

	executions, err := store.Executions().ExecutionsByWorkflow(ctx, workflowID)
	require.NoError(t, err)
	require.Len(t, executions, 3)
	assert.True(t, executions[0].StartedAt.After(executions[1].StartedAt))
	assert.True(t, executions[1].StartedAt.After(executions[2].StartedAt))
}

func TestLogsRoundtripInCreationOrder(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	execution := newExecution(t, store)
	ctx := context.Background()

	base := time.Now().UTC()

	for i, nodeID := range []string{"a", "b"} {
		entry := &models.ExecutionLog{
			ID:          uuid.New().String(),
			ExecutionID: execution.ID,
			NodeID:      nodeID,
			Level:       models.LogLevelInfo,
			Message:     "Node execution started",
			Data:        map[string]any{"input": map[string]any{}},
			CreatedAt:   base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, store.Executions().CreateLog(ctx, entry))
	}

	logs, err := store.Executions().LogsByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "a", logs[0].NodeID)
	assert.Equal(t, "b", logs[1].NodeID)

	logs[0].Status = models.LogStatusCompleted
	require.NoError(t, store.Executions().UpdateLog(ctx, logs[0]))

	updated, err := store.Executions().LogsByExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LogStatusCompleted, updated[0].Status)
}

func TestUpdateLogUnknownID(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	err := store.Executions().UpdateLog(context.Background(), &models.ExecutionLog{
		ID:          uuid.New().String(),
		ExecutionID: uuid.New().String(),
	})
	assert.True(t, persistence.IsNotFound(err))
}

func TestActivateVersionFlipsSiblings(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	workflow := testutil.Workflow()
	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))

	graph := testutil.Graph([]*models.Node{testutil.Node("a")})

	first := testutil.Version(workflow.ID, graph)
	require.NoError(t, store.Workflows().SaveVersion(ctx, first))

	second := testutil.Version(workflow.ID, graph)
	second.IsActive = false
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, store.Workflows().SaveVersion(ctx, second))

	require.NoError(t, store.Workflows().ActivateVersion(ctx, workflow.ID, second.ID))

	active, err := store.Workflows().ActiveVersion(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	stale, err := store.Workflows().VersionByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, stale.IsActive)

	stored, err := store.Workflows().WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, stored.ActiveVersionID)
}

func TestActiveVersionMissing(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	workflow := testutil.Workflow()
	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))

	_, err := store.Workflows().ActiveVersion(ctx, workflow.ID)
	assert.ErrorIs(t, err, persistence.ErrNoActiveVersion)
}

func TestActiveWorkflowsFiltersByTriggerAndStatus(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	scheduled := testutil.Workflow(testutil.WithTrigger(models.TriggerTypeSchedule))
	manual := testutil.Workflow()
	paused := testutil.Workflow(
		testutil.WithTrigger(models.TriggerTypeSchedule),
		testutil.WithStatus(models.WorkflowStatusPaused),
	)

	for _, workflow := range []*models.Workflow{scheduled, manual, paused} {
		require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))
	}

	workflows, err := store.Workflows().ActiveWorkflows(ctx, models.TriggerTypeSchedule)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, scheduled.ID, workflows[0].ID)
}

func TestAccountRoundtrip(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	account := &models.ConnectedAccount{
		ID:           uuid.New().String(),
		UserID:       "user-1",
		Provider:     models.ProviderGoogle,
		Email:        "someone@example.com",
		AccessToken:  "token",
		RefreshToken: "refresh",
		ExpiresAt:    &expiry,
		CreatedAt:    time.Now().UTC(),
	}

	require.NoError(t, store.Accounts().SaveAccount(ctx, account))

	stored, err := store.Accounts().AccountByUserAndProvider(ctx, "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, account.ID, stored.ID)
	assert.Equal(t, "someone@example.com", stored.Email)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, expiry.Equal(*stored.ExpiresAt))

	_, err = store.Accounts().AccountByUserAndProvider(ctx, "user-1", models.ProviderSlack)
	assert.True(t, persistence.IsNotFound(err))
}

func TestWorkflowByIDSoftDelete(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	deleted := time.Now().UTC()

	workflow := testutil.Workflow()
	workflow.DeletedAt = &deleted
	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))

	_, err := store.Workflows().WorkflowByID(ctx, workflow.ID)
	assert.True(t, persistence.IsNotFound(err))
}

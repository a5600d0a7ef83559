package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/persistence/postgresql"
	"github.com/cascadehq/cascade/pkg/testutil"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last.
	for _, table := range []string{"execution_logs", "executions", "workflow_versions", "connected_accounts", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("cascade_test"),
			postgres.WithUsername("cascade"),
			postgres.WithPassword("cascade"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)

		require.NoError(t, store.Close(ctx))

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	for _, table := range []string{"workflows", "workflow_versions", "executions", "execution_logs", "connected_accounts"} {
		var exists bool

		err = db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestWorkflowRoundtrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testutil.Workflow(
		testutil.WithTrigger(models.TriggerTypeWebhook),
		testutil.WithWebhookToken("token-1234"),
	)
	workflow.Description = "posts a message on deploy"

	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))

	stored, err := store.Workflows().WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, stored.Name)
	assert.Equal(t, workflow.Description, stored.Description)
	assert.Equal(t, models.TriggerTypeWebhook, stored.TriggerType)
	assert.Equal(t, "token-1234", stored.WebhookToken)

	_, err = store.Workflows().WorkflowByID(ctx, uuid.New().String())
	assert.True(t, persistence.IsNotFound(err))
}

func TestVersionActivation(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testutil.Workflow()
	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))

	graph := testutil.Graph(
		[]*models.Node{testutil.Node("a"), testutil.Node("b")},
		[2]string{"a", "b"},
	)

	first := testutil.Version(workflow.ID, graph)
	first.IsActive = false
	require.NoError(t, store.Workflows().SaveVersion(ctx, first))

	second := testutil.Version(workflow.ID, graph)
	second.IsActive = false
	second.Version = "1.0.1"
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, store.Workflows().SaveVersion(ctx, second))

	latest, err := store.Workflows().LatestVersion(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	require.NoError(t, store.Workflows().ActivateVersion(ctx, workflow.ID, first.ID))
	require.NoError(t, store.Workflows().ActivateVersion(ctx, workflow.ID, second.ID))

	active, err := store.Workflows().ActiveVersion(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	require.NotNil(t, active.Graph)
	assert.Len(t, active.Graph.Nodes, 2)

	stale, err := store.Workflows().VersionByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, stale.IsActive)

	stored, err := store.Workflows().WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, stored.ActiveVersionID)
}

func TestFinishExecutionConditionalWrite(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testutil.Workflow()
	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))

	version := testutil.Version(workflow.ID, testutil.Graph([]*models.Node{testutil.Node("a")}))
	require.NoError(t, store.Workflows().SaveVersion(ctx, version))

	execution := &models.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  workflow.ID,
		VersionID:   version.ID,
		Status:      models.ExecutionStatusRunning,
		TriggerType: models.TriggerTypeManual,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.Executions().CreateExecution(ctx, execution))

	won, err := store.Executions().FinishExecution(ctx, execution.ID,
		models.ExecutionStatusCompleted, map[string]any{"value": "ok"}, "")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.Executions().FinishExecution(ctx, execution.ID,
		models.ExecutionStatusFailed, nil, "late branch")
	require.NoError(t, err)
	assert.False(t, won)

	stored, err := store.Executions().ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, map[string]any{"value": "ok"}, stored.Output)
	assert.Empty(t, stored.Error)
	require.NotNil(t, stored.FinishedAt)
}

func TestExecutionLogs(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testutil.Workflow()
	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))

	version := testutil.Version(workflow.ID, testutil.Graph([]*models.Node{testutil.Node("a")}))
	require.NoError(t, store.Workflows().SaveVersion(ctx, version))

	execution := &models.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  workflow.ID,
		VersionID:   version.ID,
		Status:      models.ExecutionStatusRunning,
		TriggerType: models.TriggerTypeManual,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.Executions().CreateExecution(ctx, execution))

	entry := &models.ExecutionLog{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		NodeID:      "a",
		NodeName:    "Node a",
		NodeType:    "log",
		Level:       models.LogLevelInfo,
		Message:     "Node execution started",
		Data:        map[string]any{"input": map[string]any{"city": "Lisbon"}},
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.Executions().CreateLog(ctx, entry))

	entry.Status = models.LogStatusCompleted
	entry.Message = "Node execution completed"
	entry.Data["output"] = map[string]any{"message": "done"}
	entry.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.Executions().UpdateLog(ctx, entry))

	logs, err := store.Executions().LogsByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogStatusCompleted, logs[0].Status)
	assert.Equal(t, map[string]any{"message": "done"}, logs[0].Data["output"])
}

func TestAccountRoundtrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

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
		UpdatedAt:    time.Now().UTC(),
	}

	require.NoError(t, store.Accounts().SaveAccount(ctx, account))

	stored, err := store.Accounts().AccountByUserAndProvider(ctx, "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, account.ID, stored.ID)
	assert.Equal(t, "token", stored.AccessToken)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, expiry.Equal(*stored.ExpiresAt))

	// Saving again updates in place.
	account.AccessToken = "token-2"
	require.NoError(t, store.Accounts().SaveAccount(ctx, account))

	stored, err = store.Accounts().AccountByUserAndProvider(ctx, "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "token-2", stored.AccessToken)

	_, err = store.Accounts().AccountByUserAndProvider(ctx, "user-2", models.ProviderGoogle)
	assert.True(t, persistence.IsNotFound(err))
}

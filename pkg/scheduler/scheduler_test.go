package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/cascadehq/cascade/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func withCron(expr string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.TriggerType = models.TriggerTypeSchedule
		w.CronExpression = expr
	}
}

func TestReconcileTracksActiveScheduleWorkflows(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	pub := &capturePublisher{}
	sched := New(store, pub, slog.Default())
	ctx := context.Background()

	hourly := testutil.Workflow(withCron("0 * * * *"))
	manual := testutil.Workflow()
	noExpr := testutil.Workflow(withCron(""))

	for _, workflow := range []*models.Workflow{hourly, manual, noExpr} {
		require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))
	}

	require.NoError(t, sched.Reconcile(ctx))

	assert.Len(t, sched.entries, 1)
	assert.Equal(t, "0 * * * *", sched.entries[hourly.ID].expr)
}

func TestReconcileReplacesChangedExpression(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	sched := New(store, &capturePublisher{}, slog.Default())
	ctx := context.Background()

	workflow := testutil.Workflow(withCron("0 * * * *"))
	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))
	require.NoError(t, sched.Reconcile(ctx))

	before := sched.entries[workflow.ID]

	workflow.CronExpression = "*/5 * * * *"
	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))
	require.NoError(t, sched.Reconcile(ctx))

	after := sched.entries[workflow.ID]
	assert.Equal(t, "*/5 * * * *", after.expr)
	assert.NotEqual(t, before.id, after.id)
}

func TestReconcileRemovesDeactivatedWorkflows(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	sched := New(store, &capturePublisher{}, slog.Default())
	ctx := context.Background()

	workflow := testutil.Workflow(withCron("0 * * * *"))
	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))
	require.NoError(t, sched.Reconcile(ctx))
	require.Len(t, sched.entries, 1)

	workflow.Status = models.WorkflowStatusPaused
	require.NoError(t, store.Workflows().SaveWorkflow(ctx, workflow))
	require.NoError(t, sched.Reconcile(ctx))

	assert.Empty(t, sched.entries)
}

func TestFirePublishesTriggerEvent(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	sched := New(file.NewPersistence(t.TempDir()), pub, slog.Default())

	sched.fire("wf-1", "0 * * * *")

	require.Len(t, pub.events, 1)

	triggered, ok := pub.events[0].(events.WorkflowTriggered)
	require.True(t, ok)
	assert.Equal(t, "wf-1", triggered.WorkflowID)
	assert.Equal(t, string(models.TriggerTypeSchedule), triggered.TriggerType)
	assert.Equal(t, "0 * * * *", triggered.TriggerData["cron"])
	assert.NotEmpty(t, triggered.TriggerData["timestamp"])
}

// Package scheduler fires schedule-trigger workflows from their cron
// expressions by publishing trigger events onto the work queue.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const defaultRefreshInterval = time.Minute

// Scheduler keeps one cron entry per active schedule-trigger workflow and
// reconciles the entry set against the store on an interval, so activating
// or pausing a workflow takes effect without a restart.
type Scheduler struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger

	cron    *cron.Cron
	refresh time.Duration

	mutex   sync.Mutex
	entries map[string]scheduledEntry // workflow id -> entry
	cancel  context.CancelFunc
}

type scheduledEntry struct {
	id   cron.EntryID
	expr string
}

func New(persistence persistence.Persistence, eventBus eventbus.EventPublisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence: persistence,
		eventBus:    eventBus,
		logger:      logger.With("module", "scheduler"),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		refresh: defaultRefreshInterval,
		entries: make(map[string]scheduledEntry),
	}
}

// Start loads the schedulable workflows, starts the cron loop, and begins
// the reconcile interval. It returns after startup; jobs fire in cron's
// goroutines until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	err := s.Reconcile(ctx)
	if err != nil {
		return err
	}

	s.cron.Start()

	refreshCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.refreshLoop(refreshCtx)

	s.logger.InfoContext(ctx, "Scheduler started", "workflows", len(s.entries))

	return nil
}

// Reconcile syncs cron entries with the set of active schedule workflows:
// new workflows get entries, changed expressions are replaced, and
// deactivated workflows are removed.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	workflows, err := s.persistence.Workflows().ActiveWorkflows(ctx, models.TriggerTypeSchedule)
	if err != nil {
		return fmt.Errorf("failed to load schedule workflows: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	seen := make(map[string]struct{}, len(workflows))

	for _, workflow := range workflows {
		seen[workflow.ID] = struct{}{}

		current, exists := s.entries[workflow.ID]
		if exists && current.expr == workflow.CronExpression {
			continue
		}

		if exists {
			s.cron.Remove(current.id)
			delete(s.entries, workflow.ID)
		}

		err := s.schedule(workflow)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to schedule workflow",
				"workflow_id", workflow.ID, "cron", workflow.CronExpression, "error", err)
		}
	}

	for workflowID, entry := range s.entries {
		if _, ok := seen[workflowID]; !ok {
			s.cron.Remove(entry.id)
			delete(s.entries, workflowID)
			s.logger.Info("Unscheduled workflow", "workflow_id", workflowID)
		}
	}

	return nil
}

func (s *Scheduler) schedule(workflow *models.Workflow) error {
	if workflow.CronExpression == "" {
		return fmt.Errorf("workflow %s has no cron expression", workflow.ID)
	}

	workflowID := workflow.ID
	cronExpr := workflow.CronExpression

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.fire(workflowID, cronExpr)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.entries[workflowID] = scheduledEntry{id: entryID, expr: cronExpr}
	s.logger.Info("Scheduled workflow", "workflow_id", workflowID, "cron", cronExpr)

	return nil
}

// fire publishes the trigger event; the worker picks it up and starts the
// run, so a slow store never blocks the cron loop.
func (s *Scheduler) fire(workflowID, cronExpr string) {
	now := time.Now().UTC()

	event := events.WorkflowTriggered{
		BaseEvent:   events.NewBaseEvent(events.WorkflowTriggeredEvent, workflowID),
		TriggerType: string(models.TriggerTypeSchedule),
		TriggerData: map[string]any{
			"timestamp": now.Format(time.RFC3339),
			"cron":      cronExpr,
		},
	}

	err := s.eventBus.Publish(context.Background(), workflowID, event)
	if err != nil {
		s.logger.Error("Failed to publish schedule trigger", "workflow_id", workflowID, "error", err)

		return
	}

	s.logger.Debug("Fired schedule trigger", "workflow_id", workflowID)
}

func (s *Scheduler) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.Reconcile(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to reconcile schedules", "error", err)
			}
		}
	}
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Scheduler stopped")

	return nil
}

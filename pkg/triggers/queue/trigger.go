// Package queue consumes a Redis list of trigger messages and starts
// polling-trigger workflows from them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultQueue = "cascade:triggers"

	popTimeout = 1 * time.Second
)

// Message is the payload external systems push onto the trigger list.
type Message struct {
	WorkflowID string         `json:"workflow_id"`
	Input      map[string]any `json:"input,omitempty"`
}

// Config connects the trigger to a Redis list.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// Trigger pops messages off the list and publishes workflow trigger events
// with the polling trigger type. The worker validates workflow state when it
// starts the run.
type Trigger struct {
	config   Config
	eventBus eventbus.EventPublisher
	logger   *slog.Logger

	client redis.UniversalClient
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewTrigger(config Config, eventBus eventbus.EventPublisher, logger *slog.Logger) (*Trigger, error) {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	if config.Queue == "" {
		config.Queue = DefaultQueue
	}

	return &Trigger{
		config:   config,
		eventBus: eventBus,
		logger:   logger.With("module", "queue_trigger", "queue", config.Queue),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start connects to Redis and begins consuming in a background goroutine.
func (t *Trigger) Start(ctx context.Context) error {
	t.client = redis.NewClient(&redis.Options{
		Addr:     t.config.Addr,
		Password: t.config.Password,
		DB:       t.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := t.client.Ping(pingCtx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	t.logger.InfoContext(ctx, "Connected to redis", "addr", t.config.Addr, "db", t.config.DB)

	t.wg.Add(1)

	go t.consume(ctx)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	t.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			err := t.processMessage(ctx)
			if err != nil {
				t.logger.ErrorContext(ctx, "Error processing trigger message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (t *Trigger) processMessage(ctx context.Context) error {
	result, err := t.client.BLPop(ctx, popTimeout, t.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop trigger message: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	return t.handlePayload(ctx, result[1])
}

// handlePayload decodes one popped message and publishes the trigger event.
// Malformed messages are dropped, not requeued.
func (t *Trigger) handlePayload(ctx context.Context, payload string) error {
	var message Message

	err := json.Unmarshal([]byte(payload), &message)
	if err != nil {
		t.logger.WarnContext(ctx, "Dropping malformed trigger message", "payload", payload)

		return nil
	}

	if message.WorkflowID == "" {
		t.logger.WarnContext(ctx, "Dropping trigger message without workflow_id")

		return nil
	}

	event := events.WorkflowTriggered{
		BaseEvent:   events.NewBaseEvent(events.WorkflowTriggeredEvent, message.WorkflowID),
		TriggerType: string(models.TriggerTypePolling),
		TriggerData: map[string]any{
			"input":     message.Input,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}

	err = t.eventBus.Publish(ctx, message.WorkflowID, event)
	if err != nil {
		return fmt.Errorf("failed to publish trigger event: %w", err)
	}

	t.logger.InfoContext(ctx, "Triggered workflow from queue", "workflow_id", message.WorkflowID)

	return nil
}

// Stop halts consumption and closes the Redis connection.
func (t *Trigger) Stop(ctx context.Context) error {
	close(t.stopCh)
	t.wg.Wait()

	if t.client != nil {
		err := t.client.Close()
		if err != nil {
			t.logger.ErrorContext(ctx, "Error closing redis client", "error", err)
		}
	}

	return nil
}

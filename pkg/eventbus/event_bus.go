// Package eventbus provides the durable work queue the engine schedules
// node executions on. Delivery is at-least-once; handlers must tolerate
// duplicate and late deliveries.
package eventbus

import (
	"context"

	"github.com/cascadehq/cascade/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

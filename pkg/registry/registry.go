// Package registry maps node type strings to their handler implementations.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cascadehq/cascade/pkg/protocol"
)

// ErrUnknownNodeType reports a node type with no registered factory. This is
// a structural error: the activation fails without retry.
type ErrUnknownNodeType struct {
	NodeType string
}

func (e *ErrUnknownNodeType) Error() string {
	return fmt.Sprintf("no handler registered for node type %q", e.NodeType)
}

// Registry holds handler factories keyed by node type. Factories are
// registered once at process start; Resolve caches the created handler so
// repeated resolutions are map lookups.
type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.HandlerFactory

	mu       sync.RWMutex
	handlers map[string]protocol.Handler
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]protocol.HandlerFactory),
		handlers:  make(map[string]protocol.Handler),
	}
}

// Register adds a handler factory. Registering the same node type twice
// replaces the earlier factory; registration is not safe for concurrent use
// and happens before workers start.
func (r *Registry) Register(factory protocol.HandlerFactory) {
	r.factories[factory.ID()] = factory
}

// Resolve returns the shared handler instance for nodeType, creating it on
// first use.
func (r *Registry) Resolve(ctx context.Context, nodeType string) (protocol.Handler, error) {
	r.mu.RLock()
	handler, ok := r.handlers[nodeType]
	r.mu.RUnlock()

	if ok {
		return handler, nil
	}

	factory, ok := r.factories[nodeType]
	if !ok {
		return nil, &ErrUnknownNodeType{NodeType: nodeType}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if handler, ok := r.handlers[nodeType]; ok {
		return handler, nil
	}

	handler, err := factory.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler for node type %q: %w", nodeType, err)
	}

	r.handlers[nodeType] = handler

	return handler, nil
}

// NodeTypes returns the registered node type ids.
func (r *Registry) NodeTypes() []string {
	types := make([]string, 0, len(r.factories))
	for nodeType := range r.factories {
		types = append(types, nodeType)
	}

	return types
}

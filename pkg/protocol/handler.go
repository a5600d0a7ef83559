// Package protocol defines the contracts for pluggable node handlers.
package protocol

import (
	"context"
	"fmt"
)

// Handler implements one node type's behavior. Handlers hold no mutable
// per-execution state; config and context arrive per call, so one instance
// is shared safely across concurrent executions. Config values may contain
// {{placeholder}} expressions the handler resolves against execCtx before
// use. Side effects are external calls and are at-least-once: a retried
// activation re-invokes the handler.
type Handler interface {
	Handle(ctx context.Context, config map[string]any, execCtx map[string]any) (map[string]any, error)
}

// HandlerFactory builds the shared handler instance for one node type.
type HandlerFactory interface {
	// ID returns the node type string this factory serves
	// (e.g. "http-request", "slack.sendMessage").
	ID() string

	// Name returns the human-readable name for this node type.
	Name() string

	// Create builds the handler instance. Called once; the registry caches
	// the result.
	Create(ctx context.Context) (Handler, error)
}

// HandlerError wraps a failure raised inside a node handler: external call
// failures, provider error envelopes, missing connected accounts. Handler
// errors are retryable under the queue's backoff policy, unlike structural
// errors, which abort immediately.
type HandlerError struct {
	NodeType string
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %v", e.NodeType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// NewHandlerError wraps err as a handler failure for the given node type.
func NewHandlerError(nodeType string, err error) *HandlerError {
	return &HandlerError{NodeType: nodeType, Err: err}
}

// Package logmsg implements a side-effect-free node that logs a rendered
// message. Useful for debugging graphs without calling external services.
package logmsg

import (
	"context"
	"log/slog"

	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

const NodeType = "log"

// Handler writes the configured message to the service log after
// placeholder substitution.
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

func (h *Handler) Handle(ctx context.Context, config map[string]any, execCtx map[string]any) (map[string]any, error) {
	message, _ := config["message"].(string)
	message = template.Render(message, execCtx)

	level, _ := config["level"].(string)

	switch level {
	case "debug":
		h.logger.DebugContext(ctx, message)
	case "warn":
		h.logger.WarnContext(ctx, message)
	case "error":
		h.logger.ErrorContext(ctx, message)
	default:
		h.logger.InfoContext(ctx, message)
	}

	return map[string]any{"message": message}, nil
}

// Factory creates the shared log handler.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) protocol.HandlerFactory {
	return &Factory{logger: logger}
}

func (f *Factory) ID() string {
	return NodeType
}

func (f *Factory) Name() string {
	return "Log Message"
}

func (f *Factory) Create(_ context.Context) (protocol.Handler, error) {
	return NewHandler(f.logger), nil
}

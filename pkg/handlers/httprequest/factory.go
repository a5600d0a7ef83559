package httprequest

import (
	"context"

	"github.com/cascadehq/cascade/pkg/protocol"
)

// Factory creates the shared HTTP request handler.
type Factory struct{}

func NewFactory() protocol.HandlerFactory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return NodeType
}

func (f *Factory) Name() string {
	return "HTTP Request"
}

func (f *Factory) Create(_ context.Context) (protocol.Handler, error) {
	return NewHandler(), nil
}

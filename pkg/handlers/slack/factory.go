package slack

import (
	"context"

	"github.com/cascadehq/cascade/pkg/accounts"
	"github.com/cascadehq/cascade/pkg/protocol"
)

// Factory creates the shared Slack message handler.
type Factory struct {
	accounts *accounts.Service
}

func NewFactory(accountService *accounts.Service) protocol.HandlerFactory {
	return &Factory{accounts: accountService}
}

func (f *Factory) ID() string {
	return NodeType
}

func (f *Factory) Name() string {
	return "Send Slack Message"
}

func (f *Factory) Create(_ context.Context) (protocol.Handler, error) {
	return NewHandler(f.accounts), nil
}

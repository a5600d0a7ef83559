package cmd

import (
	"log/slog"

	"github.com/cascadehq/cascade/pkg/accounts"
	"github.com/cascadehq/cascade/pkg/handlers/gmail"
	"github.com/cascadehq/cascade/pkg/handlers/httprequest"
	"github.com/cascadehq/cascade/pkg/handlers/logmsg"
	"github.com/cascadehq/cascade/pkg/handlers/slack"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/registry"
)

// NewRegistry builds the handler registry with every native node type
// registered.
func NewRegistry(logger *slog.Logger, store persistence.Persistence) *registry.Registry {
	accountService := accounts.NewService(store.Accounts(), logger)

	reg := registry.NewRegistry(logger)
	reg.Register(httprequest.NewFactory())
	reg.Register(slack.NewFactory(accountService))
	reg.Register(gmail.NewFactory(accountService))
	reg.Register(logmsg.NewFactory(logger))

	return reg
}

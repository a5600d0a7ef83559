// Package slack implements the slack.sendMessage node handler against the
// Slack Web API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cascadehq/cascade/pkg/accounts"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

const (
	NodeType = "slack.sendMessage"

	postMessageURL = "https://slack.com/api/chat.postMessage"
)

// Handler posts a message to a channel using the bearer token of the
// invoking user's connected Slack account.
type Handler struct {
	accounts *accounts.Service
	client   *http.Client

	// apiURL is overridable in tests.
	apiURL string
}

func NewHandler(accountService *accounts.Service) *Handler {
	return &Handler{
		accounts: accountService,
		client:   &http.Client{},
		apiURL:   postMessageURL,
	}
}

func (h *Handler) Handle(ctx context.Context, config map[string]any, execCtx map[string]any) (map[string]any, error) {
	userID, _ := execCtx["user_id"].(string)

	account, err := h.accounts.Account(ctx, userID, models.ProviderSlack)
	if err != nil {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("no connected slack account: %w", err))
	}

	channel, _ := config["channel"].(string)
	message, _ := config["message"].(string)

	channel = template.Render(channel, execCtx)
	message = template.Render(message, execCtx)

	if channel == "" || message == "" {
		return nil, protocol.NewHandlerError(NodeType, errors.New("channel and message are required"))
	}

	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
		"as_user": true,
	})
	if err != nil {
		return nil, protocol.NewHandlerError(NodeType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, protocol.NewHandlerError(NodeType, err)
	}

	req.Header.Set("Authorization", "Bearer "+account.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("slack request failed: %w", err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("failed to read slack response: %w", err))
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("invalid slack response: %w", err))
	}

	// Slack reports API failures inside a 200 envelope.
	if ok, _ := envelope["ok"].(bool); resp.StatusCode != http.StatusOK || !ok {
		errMsg, _ := envelope["error"].(string)
		if errMsg == "" {
			errMsg = "failed to send slack message"
		}

		return nil, protocol.NewHandlerError(NodeType, errors.New(errMsg))
	}

	return map[string]any{
		"success": true,
		"data":    envelope,
		"output": map[string]any{
			"message": "Message sent successfully",
			"channel": channel,
			"ts":      envelope["ts"],
		},
	}, nil
}

// Package gmail implements the gmail.sendEmail node handler against the
// Gmail REST API.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cascadehq/cascade/pkg/accounts"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

const (
	NodeType = "gmail.sendEmail"

	sendMessageURL = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"
)

// Handler sends an email through the invoking user's connected Google
// account. Expired access tokens are refreshed and persisted before the
// call.
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
		apiURL:   sendMessageURL,
	}
}

func (h *Handler) Handle(ctx context.Context, config map[string]any, execCtx map[string]any) (map[string]any, error) {
	userID, _ := execCtx["user_id"].(string)

	account, err := h.accounts.GoogleAccount(ctx, userID)
	if err != nil {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("no connected gmail account: %w", err))
	}

	to := template.Render(stringField(config, "to"), execCtx)
	subject := template.Render(stringField(config, "subject"), execCtx)
	body := template.Render(stringField(config, "body"), execCtx)

	if to == "" {
		return nil, protocol.NewHandlerError(NodeType, errors.New("recipient email address is required"))
	}

	raw := encodeRawMessage(account.Email, to, subject, body)

	payload, err := json.Marshal(map[string]string{"raw": raw})
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
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("gmail request failed: %w", err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("failed to read gmail response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, protocol.NewHandlerError(NodeType, providerError(respBody, resp.StatusCode))
	}

	var sent struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	}

	if err := json.Unmarshal(respBody, &sent); err != nil {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("invalid gmail response: %w", err))
	}

	return map[string]any{
		"success": true,
		"data": map[string]any{
			"message":   "Email sent successfully",
			"messageId": sent.ID,
			"threadId":  sent.ThreadID,
		},
		"output": map[string]any{
			"message":   "Email sent successfully",
			"messageId": sent.ID,
		},
	}, nil
}

// encodeRawMessage builds an RFC 2822 message and encodes it with the
// URL-safe base64 alphabet, unpadded, as the Gmail API expects.
func encodeRawMessage(from, to, subject, body string) string {
	var msg bytes.Buffer

	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return base64.RawURLEncoding.EncodeToString(msg.Bytes())
}

func providerError(body []byte, status int) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return errors.New(envelope.Error.Message)
	}

	return fmt.Errorf("gmail api responded with status %d", status)
}

func stringField(config map[string]any, key string) string {
	s, _ := config[key].(string)

	return s
}

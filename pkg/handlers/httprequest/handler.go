// Package httprequest implements the generic HTTP request node handler.
package httprequest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/cascadehq/cascade/pkg/template"
)

const (
	NodeType = "http-request"

	defaultTimeout = 30 * time.Second
)

// Handler performs an HTTP call described by the node config. An HTTP
// error status is still a successful node result carrying status, headers
// and body; only transport failures raise a HandlerError.
type Handler struct {
	client *http.Client
}

func NewHandler() *Handler {
	return &Handler{client: &http.Client{}}
}

func (h *Handler) Handle(ctx context.Context, config map[string]any, execCtx map[string]any) (map[string]any, error) {
	method := "GET"
	if m, ok := config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	rawURL, _ := config["url"].(string)
	if rawURL == "" {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("missing required field 'url'"))
	}

	url := template.Render(rawURL, execCtx)
	headers := renderHeaders(config["headers"], execCtx)
	body := renderBody(method, config["body"], execCtx)

	ctx, cancel := context.WithTimeout(ctx, timeoutFromConfig(config))
	defer cancel()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("failed to build request: %w", err))
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if auth, ok := config["auth"].(map[string]any); ok {
		applyAuth(req, auth, execCtx)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("request failed: %w", err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.NewHandlerError(NodeType, fmt.Errorf("failed to read response: %w", err))
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		respHeaders[key] = resp.Header.Get(key)
	}

	result := map[string]any{
		"status":  resp.StatusCode,
		"headers": respHeaders,
		"body":    string(respBody),
	}

	// Prefer decoded JSON as the body when the response parses.
	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["body"] = jsonBody
	}

	return result, nil
}

func timeoutFromConfig(config map[string]any) time.Duration {
	switch t := config["timeout"].(type) {
	case float64:
		if t > 0 {
			return time.Duration(t) * time.Second
		}
	case int:
		if t > 0 {
			return time.Duration(t) * time.Second
		}
	}

	return defaultTimeout
}

func renderHeaders(raw any, execCtx map[string]any) map[string]string {
	headers := make(map[string]string)

	m, ok := raw.(map[string]any)
	if !ok {
		return headers
	}

	for key, value := range m {
		if s, ok := value.(string); ok {
			headers[key] = template.Render(s, execCtx)
		}
	}

	return headers
}

// renderBody serializes the configured body after placeholder
// substitution. GET requests never carry a body.
func renderBody(method string, raw any, execCtx map[string]any) string {
	if method == "GET" || raw == nil {
		return ""
	}

	switch b := raw.(type) {
	case string:
		return template.Render(b, execCtx)
	case map[string]any:
		encoded, err := json.Marshal(template.RenderMap(b, execCtx))
		if err != nil {
			return ""
		}

		return string(encoded)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return ""
		}

		return string(encoded)
	}
}

func applyAuth(req *http.Request, auth map[string]any, execCtx map[string]any) {
	authType, _ := auth["type"].(string)

	switch authType {
	case "basic":
		username, _ := auth["username"].(string)
		password, _ := auth["password"].(string)
		req.SetBasicAuth(template.Render(username, execCtx), template.Render(password, execCtx))
	case "bearer":
		token, _ := auth["token"].(string)
		req.Header.Set("Authorization", "Bearer "+template.Render(token, execCtx))
	}
}

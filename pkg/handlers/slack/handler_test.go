package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cascadehq/cascade/pkg/accounts"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T, response string) (*Handler, *[]byte, *http.Header) {
	t.Helper()

	var (
		gotBody    []byte
		gotHeaders http.Header
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()

		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	store := file.NewPersistence(t.TempDir())

	err := store.Accounts().SaveAccount(context.Background(), &models.ConnectedAccount{
		ID:          uuid.New().String(),
		UserID:      "user-1",
		Provider:    models.ProviderSlack,
		AccessToken: "xoxb-test",
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	handler := NewHandler(accounts.NewService(store.Accounts(), slog.Default()))
	handler.apiURL = server.URL
	handler.client = server.Client()

	return handler, &gotBody, &gotHeaders
}

func TestHandleSendsMessage(t *testing.T) {
	t.Parallel()

	handler, gotBody, gotHeaders := newHandler(t, `{"ok": true, "ts": "1724.0001", "channel": "C123"}`)

	result, err := handler.Handle(context.Background(),
		map[string]any{"channel": "#deploys", "message": "Build {{ build.status }}"},
		map[string]any{"user_id": "user-1", "build": map[string]any{"status": "passed"}},
	)
	require.NoError(t, err)

	assert.Equal(t, "Bearer xoxb-test", gotHeaders.Get("Authorization"))

	var payload map[string]any

	require.NoError(t, json.Unmarshal(*gotBody, &payload))
	assert.Equal(t, "#deploys", payload["channel"])
	assert.Equal(t, "Build passed", payload["text"])
	assert.Equal(t, true, payload["as_user"])

	assert.Equal(t, true, result["success"])

	output, ok := result["output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "#deploys", output["channel"])
	assert.Equal(t, "1724.0001", output["ts"])
}

func TestHandleSlackErrorEnvelope(t *testing.T) {
	t.Parallel()

	handler, _, _ := newHandler(t, `{"ok": false, "error": "channel_not_found"}`)

	_, err := handler.Handle(context.Background(),
		map[string]any{"channel": "#nope", "message": "hi"},
		map[string]any{"user_id": "user-1"},
	)
	require.Error(t, err)

	var handlerErr *protocol.HandlerError

	require.ErrorAs(t, err, &handlerErr)
	assert.Contains(t, handlerErr.Error(), "channel_not_found")
}

func TestHandleRequiresChannelAndMessage(t *testing.T) {
	t.Parallel()

	handler, _, _ := newHandler(t, `{"ok": true}`)

	_, err := handler.Handle(context.Background(),
		map[string]any{"channel": "#deploys"},
		map[string]any{"user_id": "user-1"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel and message are required")
}

func TestHandleMissingAccount(t *testing.T) {
	t.Parallel()

	handler, _, _ := newHandler(t, `{"ok": true}`)

	_, err := handler.Handle(context.Background(),
		map[string]any{"channel": "#deploys", "message": "hi"},
		map[string]any{"user_id": "stranger"},
	)
	require.Error(t, err)

	var handlerErr *protocol.HandlerError

	require.ErrorAs(t, err, &handlerErr)
	assert.Contains(t, handlerErr.Error(), "no connected slack account")
}

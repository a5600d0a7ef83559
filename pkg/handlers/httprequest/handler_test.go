package httprequest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cascadehq/cascade/pkg/handlers/httprequest"
	"github.com/cascadehq/cascade/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleGetDecodesJSONBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/users/42", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "name": "ada"}`))
	}))
	defer server.Close()

	handler := httprequest.NewHandler()

	result, err := handler.Handle(context.Background(),
		map[string]any{"url": server.URL + "/users/{{ user.id }}"},
		map[string]any{"user": map[string]any{"id": 42}},
	)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result["status"])
	assert.Equal(t, map[string]any{"id": float64(42), "name": "ada"}, result["body"])

	headers, ok := result["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", headers["Content-Type"])
}

func TestHandleErrorStatusIsStillAResult(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	handler := httprequest.NewHandler()

	result, err := handler.Handle(context.Background(),
		map[string]any{"url": server.URL}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, result["status"])
	assert.Equal(t, "upstream exploded", result["body"])
}

func TestHandlePostRendersBodyAndHeaders(t *testing.T) {
	t.Parallel()

	var (
		gotBody        []byte
		gotContentType string
		gotCustom      string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Request-Id")

		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	handler := httprequest.NewHandler()

	_, err := handler.Handle(context.Background(),
		map[string]any{
			"url":     server.URL,
			"method":  "post",
			"body":    map[string]any{"city": "{{ city }}"},
			"headers": map[string]any{"X-Request-Id": "{{ request_id }}"},
		},
		map[string]any{"city": "Lisbon", "request_id": "req-7"},
	)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "req-7", gotCustom)

	var payload map[string]any

	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "Lisbon", payload["city"])
}

func TestHandleGetNeverSendsBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)

		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	handler := httprequest.NewHandler()

	_, err := handler.Handle(context.Background(),
		map[string]any{"url": server.URL, "body": map[string]any{"ignored": true}}, nil)
	require.NoError(t, err)
}

func TestHandleAuth(t *testing.T) {
	t.Parallel()

	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	handler := httprequest.NewHandler()

	_, err := handler.Handle(context.Background(),
		map[string]any{
			"url":  server.URL,
			"auth": map[string]any{"type": "bearer", "token": "{{ token }}"},
		},
		map[string]any{"token": "tok-1"},
	)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)

	_, err = handler.Handle(context.Background(),
		map[string]any{
			"url":  server.URL,
			"auth": map[string]any{"type": "basic", "username": "bob", "password": "hunter2"},
		},
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, "Basic Ym9iOmh1bnRlcjI=", gotAuth)
}

func TestHandleMissingURL(t *testing.T) {
	t.Parallel()

	handler := httprequest.NewHandler()

	_, err := handler.Handle(context.Background(), map[string]any{}, nil)
	require.Error(t, err)

	var handlerErr *protocol.HandlerError

	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, httprequest.NodeType, handlerErr.NodeType)
}

func TestHandleTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	handler := httprequest.NewHandler()

	_, err := handler.Handle(context.Background(), map[string]any{"url": server.URL}, nil)

	var handlerErr *protocol.HandlerError

	require.ErrorAs(t, err, &handlerErr)
}

package logmsg_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/cascadehq/cascade/pkg/handlers/logmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRendersMessage(t *testing.T) {
	t.Parallel()

	handler := logmsg.NewHandler(slog.Default())

	result, err := handler.Handle(context.Background(),
		map[string]any{"message": "deployed {{ version }}", "level": "debug"},
		map[string]any{"version": "1.0.3"},
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"message": "deployed 1.0.3"}, result)
}

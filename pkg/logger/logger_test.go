package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_AddsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("debug", "json", &buf)

	ctx := WithContext(context.Background(), RequestIDKey, "req-1")
	ctx = WithContext(ctx, ClientIDKey, "client-a")
	ctx = WithContext(ctx, GenerationIDKey, "gen-9")
	ctx = WithContext(ctx, TierKey, "pro")

	Error(ctx, "tier failed", errors.New("upstream 503"), "attempt", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tier failed", line["msg"])
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "client-a", line["client_id"])
	assert.Equal(t, "gen-9", line["generation_id"])
	assert.Equal(t, "pro", line["tier"])
	assert.Equal(t, "upstream 503", line["error"])
	assert.EqualValues(t, 2, line["attempt"])
}

func TestParseLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("warn", "text", &buf)

	Info(context.Background(), "hidden")
	Warn(context.Background(), "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

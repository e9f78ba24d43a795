package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContextAddsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: slog.LevelDebug, Format: "json"})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "u1")
	ctx = WithReportID(ctx, "R1")
	ctx = WithOperation(ctx, "handle_status_change")

	log.WithContext(ctx).WithComponent("test").Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "u1", record["user_id"])
	assert.Equal(t, "R1", record["report_id"])
	assert.Equal(t, "handle_status_change", record["operation"])
	assert.Equal(t, "test", record["component"])
	assert.Equal(t, GetInstanceID(), record["instance_id"])
}

func TestFromConfig(t *testing.T) {
	t.Setenv("APP_ENV", "")

	cfg := FromConfig("warn", "")
	assert.Equal(t, slog.LevelWarn, cfg.Level)
	assert.Equal(t, "text", cfg.Format)

	cfg = FromConfig("bogus", "json")
	assert.Equal(t, slog.LevelInfo, cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	t.Setenv("APP_ENV", "production")
	assert.Equal(t, "json", FromConfig("info", "text").Format)
}

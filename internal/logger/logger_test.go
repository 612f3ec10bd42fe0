package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown", "k", "v")
	assert.Contains(t, buf.String(), "shown")
}

func TestContextAttrs(t *testing.T) {
	ctx := WithSessionID(WithTraceID(context.Background(), "t1"), "s1")

	assert.Equal(t, "t1", GetTraceID(ctx))
	assert.Equal(t, "s1", GetSessionID(ctx))
	assert.Equal(t, []any{"trace_id", "t1", "session_id", "s1"}, Attrs(ctx))
	assert.Empty(t, Attrs(context.Background()))
}

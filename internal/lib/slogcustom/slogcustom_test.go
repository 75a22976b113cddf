package slogcustom

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func newTestLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	color.NoColor = true

	var buf bytes.Buffer

	return slog.New(NewCustomHandler(&buf, level)), &buf
}

func TestCustomHandler_Format(t *testing.T) {
	log, buf := newTestLogger(slog.LevelDebug)

	log.Info("session started", "session_id", "abc", "questions", 10)

	out := buf.String()
	assert.Contains(t, out, "INFO: session started")
	assert.Contains(t, out, "session_id=abc")
	assert.Contains(t, out, "questions=10")
}

func TestCustomHandler_Level(t *testing.T) {
	log, buf := newTestLogger(slog.LevelWarn)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN: shown")
}

func TestCustomHandler_WithAttrsAndGroup(t *testing.T) {
	log, buf := newTestLogger(slog.LevelDebug)

	log.With("component", "quiz").WithGroup("timer").Debug("tick", "remaining", 42)

	out := buf.String()
	assert.Contains(t, out, "component=quiz")
	assert.Contains(t, out, "timer.remaining=42")
}

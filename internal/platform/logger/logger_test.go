package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNew(t *testing.T) {
	assert.IsType(t, &slog.JSONHandler{}, New("production", "info").Handler())
	assert.IsType(t, &slog.TextHandler{}, New("development", "info").Handler())
}

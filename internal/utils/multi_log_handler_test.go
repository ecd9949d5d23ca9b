package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiLogHandler_FansOutByLevel(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	debugH := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	warnH := slog.NewJSONHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(NewMultiLogHandler(debugH, warnH)).With("component", "sync")
	logger.Info("pass done", "pushed", 2)
	logger.Warn("conflict", "path", "a.py")

	assert.Contains(t, debugBuf.String(), "pass done")
	assert.Contains(t, debugBuf.String(), "conflict")
	assert.Contains(t, debugBuf.String(), "component=sync")

	assert.NotContains(t, warnBuf.String(), "pass done")
	assert.Contains(t, warnBuf.String(), `"msg":"conflict"`)
	assert.Contains(t, warnBuf.String(), `"component":"sync"`)
}

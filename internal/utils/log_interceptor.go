package utils

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// LogInterceptor is an io.Writer for the standard library logger. Each
// complete line becomes one slog record so third-party output ends up in the
// same handlers as ours.
type LogInterceptor struct {
	logger *slog.Logger
	level  slog.Level
	buf    bytes.Buffer
	mu     sync.Mutex
}

func NewLogInterceptor(logger *slog.Logger, level slog.Level) *LogInterceptor {
	return &LogInterceptor{
		logger: logger.With("source", "log"),
		level:  level,
	}
}

// Write buffers p and emits every complete line. Partial lines wait for the
// next write or Close.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.buf.Write(p)
	for {
		line, err := i.buf.ReadBytes('\n')
		if err != nil {
			// no newline yet, put the partial line back
			rest := append([]byte(nil), line...)
			i.buf.Reset()
			i.buf.Write(rest)
			break
		}
		i.emit(line)
	}
	return len(p), nil
}

// Close flushes a trailing partial line.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.buf.Len() > 0 {
		i.emit(i.buf.Bytes())
		i.buf.Reset()
	}
	return nil
}

func (i *LogInterceptor) emit(line []byte) {
	msg := string(bytes.TrimRight(line, "\r\n"))
	if msg == "" {
		return
	}
	i.logger.Log(context.Background(), i.level, msg)
}

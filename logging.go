package ptyconnect

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

type loggerKey struct{}

// WithLogger returns a context whose operations attribute terminal output
// to l.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFrom returns the logger carried by ctx, or slog.Default().
func LoggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// DefaultLogHook logs every line of terminal output at Debug level with the
// session attribute set to name.
func DefaultLogHook(l *slog.Logger, name string) io.Writer {
	return &lineWriter{logger: l.With("session", name)}
}

type lineWriter struct {
	mu      sync.Mutex
	logger  *slog.Logger
	partial []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.ReplaceAll(string(w.partial[:i]), "\r", "")
		w.partial = w.partial[i+1:]
		w.logger.Debug("output", "line", line)
	}
	return len(p), nil
}

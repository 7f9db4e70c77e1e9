package ptyconnect

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KennethanCeyer/ptyconnect/shelltest"
)

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("Sequence", func(t *testing.T) {
		fake := shelltest.New()
		cmds, err := Run(ctx, ShellOpts{Spawner: fakeSpawner(fake)}, "echo a", "ls /missing", "echo c")
		require.NoError(t, err)
		require.Len(t, cmds, 3)
		assert.Equal(t, "a", cmds[0].Output)
		assert.Equal(t, "c", cmds[2].Output)

		var ce *CommandError
		require.ErrorAs(t, cmds[1].Err(), &ce)
		assert.Equal(t, 2, ce.ExitCode)
		assert.Equal(t, "ls /missing", ce.Command)
	})

	t.Run("StopsAtFailure", func(t *testing.T) {
		fake := shelltest.New()
		fake.Handle("hang", func(e *shelltest.Exec) int {
			e.Sleep(5 * time.Second)
			return 0
		})
		opts := ShellOpts{Spawner: fakeSpawner(fake), Timeout: 100 * time.Millisecond}
		cmds, err := Run(ctx, opts, "echo a", "hang", "echo never")
		assert.True(t, IsTimeout(err))
		assert.Len(t, cmds, 1)
		assert.NotContains(t, fake.History(), "echo never")
	})

	t.Run("SpawnFailure", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Run(ctx, ShellOpts{Spawner: func(context.Context, []string) (Conn, error) { return nil, boom }}, "true")
		assert.ErrorIs(t, err, boom)
	})
}

func TestLineWriter(t *testing.T) {
	var buf safeBuffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	w := DefaultLogHook(l, "sess")

	_, _ = w.Write([]byte("first\r\nsec"))
	_, _ = w.Write([]byte("ond\r\npartial"))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "msg=output"))
	assert.Contains(t, out, "session=sess line=first")
	assert.Contains(t, out, "session=sess line=second")
	assert.NotContains(t, out, "partial")
}

func TestLoggerFrom(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFrom(context.Background()))
	l := slog.New(slog.NewTextHandler(&safeBuffer{}, nil))
	assert.Same(t, l, LoggerFrom(WithLogger(context.Background(), l)))
	assert.Same(t, slog.Default(), LoggerFrom(WithLogger(context.Background(), nil)))
}

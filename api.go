// Package ptyconnect drives interactive shells programmatically.
//
// A Shell owns one terminal connection. Commands are typed into it, their
// end is recognized by the shell prompt, and their output and exit code are
// recovered from the terminal stream. Subshell and SSH lend the open
// connection to a nested Shell instead of spawning a new process.
package ptyconnect

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/KennethanCeyer/ptyconnect/expect"
)

// Conn is the terminal connection a Shell talks through. *expect.Conn
// satisfies it.
type Conn interface {
	Send(text string) error
	SendRaw(text string) error
	Expect(ctx context.Context, pattern string, opts ...expect.Option) (*expect.Match, error)
	SetTimeout(d time.Duration)
	Timeout() time.Duration
	SetEOL(eol string)
	EOL() string
	SetLogger(w io.Writer)
	Close() error
}

// Spawner starts argv and returns a connection to its terminal.
type Spawner func(ctx context.Context, argv []string) (Conn, error)

// LogHook returns the sink terminal output is written to while l is the
// active logger and name is the session or command being attributed.
type LogHook func(l *slog.Logger, name string) io.Writer

// DefaultSpawner spawns argv on a local PTY. The process outlives ctx; it is
// stopped by closing the connection.
func DefaultSpawner(opts expect.SpawnOpts) Spawner {
	return func(ctx context.Context, argv []string) (Conn, error) {
		c, err := expect.Spawn(context.WithoutCancel(ctx), argv, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ShellCommands are the shell specific command templates. ChangePrompt is a
// format string with one %s verb receiving the new prompt. An empty field
// disables the corresponding step.
type ShellCommands struct {
	ChangePrompt string
	GetExitCode  string
}

// BashCommands works for bash, zsh and other POSIX shells.
func BashCommands() *ShellCommands {
	return &ShellCommands{
		ChangePrompt: `export PS1="%s"`,
		GetExitCode:  "echo $?",
	}
}

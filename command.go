package ptyconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KennethanCeyer/ptyconnect/expect"
)

type InvokeOpts struct {
	// Timeout bounds the wait for each next piece of output. Zero means
	// the session timeout for Invoke and DefaultAsyncTimeout for
	// InvokeAsync; expect.Forever disables it.
	Timeout time.Duration
	// Total bounds the whole command. Zero means unbounded.
	Total  time.Duration
	Parser *Parser
	// Name is appended to the session name to attribute output.
	Name string
}

// Command is a command that ran to completion.
type Command struct {
	ID      string
	Command string
	// Name attributes the command output in logs, as session.name.
	Name    string
	Timeout time.Duration
	Total   time.Duration
	// Output is what the command printed, with trailing whitespace and
	// carriage returns removed.
	Output string
	// Values holds the parsed Output when a Parser was given.
	Values Values

	shell    *Shell
	parser   *Parser
	exitCode int
	hasCode  bool
}

func newCommand(s *Shell, command string, opts InvokeOpts) *Command {
	name := s.name
	if opts.Name != "" {
		name = s.name + "." + opts.Name
	}
	return &Command{
		ID:      uuid.NewString(),
		Command: command,
		Name:    name,
		Timeout: opts.Timeout,
		Total:   opts.Total,
		shell:   s,
		parser:  opts.Parser,
	}
}

// ExitCode returns the exit code and whether the shell reported one.
func (c *Command) ExitCode() (int, bool) { return c.exitCode, c.hasCode }

// ExitStatus returns the exit code, or ErrNoExitCode for shells without an
// exit code query.
func (c *Command) ExitStatus() (int, error) {
	if !c.hasCode {
		return 0, ErrNoExitCode
	}
	return c.exitCode, nil
}

// Err returns a *CommandError when the command exited non-zero.
func (c *Command) Err() error {
	if c.hasCode && c.exitCode != 0 {
		return &CommandError{Command: c.Command, ExitCode: c.exitCode, Output: c.Output}
	}
	return nil
}

func (c *Command) log(ctx context.Context) *slog.Logger {
	return LoggerFrom(ctx).With("session", c.Name, "command_id", c.ID)
}

// Invoke runs command and waits for it to finish.
func (s *Shell) Invoke(ctx context.Context, command string, opts InvokeOpts) (*Command, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = s.timeout
	}
	c := newCommand(s, command, opts)
	s.bind(ctx, c.Name)
	c.log(ctx).Debug("invoke", "command", command)
	if err := s.dispatch(ctx, command); err != nil {
		return nil, err
	}
	if err := c.execute(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Run is Invoke with the session defaults.
func (s *Shell) Run(ctx context.Context, command string) (*Command, error) {
	return s.Invoke(ctx, command, InvokeOpts{})
}

func (c *Command) execute(ctx context.Context) error {
	out, err := c.read(ctx)
	if err != nil {
		return err
	}
	c.Output = cleanOutput(out)
	if c.parser != nil {
		if c.Values, err = c.parser.Parse(c.Output); err != nil {
			return err
		}
	}
	if err := c.resolveExitCode(ctx); err != nil {
		return err
	}
	return c.shell.finalize(ctx)
}

// read collects output until the prompt. Timeout bounds the wait for each
// chunk unless Total is set, in which case reads continue until Total is
// used up.
func (c *Command) read(ctx context.Context) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = expect.Forever
	}
	next := timeout
	start := time.Now()
	var out strings.Builder
	for {
		ch, err := c.shell.readChunk(ctx, next)
		if err != nil {
			return out.String(), err
		}
		out.WriteString(ch.text)
		if ch.kind == chunkPrompt {
			return out.String(), nil
		}
		if c.Total <= 0 {
			if ch.kind == chunkTimeout {
				return out.String(), &TimeoutError{Pattern: c.shell.prompt, Timeout: next, Output: out.String()}
			}
			continue
		}
		elapsed := time.Since(start)
		if elapsed >= c.Total {
			return out.String(), &TimeoutError{Pattern: c.shell.prompt, Timeout: c.Total, Output: out.String()}
		}
		next = max(timeout, c.Total-elapsed)
	}
}

func (c *Command) resolveExitCode(ctx context.Context) error {
	if c.shell.commands.GetExitCode == "" {
		return nil
	}
	code, err := c.shell.exitCode(ctx)
	if err != nil {
		return err
	}
	c.exitCode, c.hasCode = code, true
	c.log(ctx).Debug("exit code", "code", code)
	return nil
}

type chunkKind int

const (
	chunkLine chunkKind = iota
	chunkPrompt
	chunkTimeout
)

// chunk is one step of reading command output: a complete line, the text
// before the prompt, or the partial text read before a timeout.
type chunk struct {
	kind chunkKind
	text string
}

func (s *Shell) readChunk(ctx context.Context, timeout time.Duration) (chunk, error) {
	m, err := s.conn.Expect(ctx, fmt.Sprintf("(%s)|(\n)", s.prompt), expect.WithTimeout(timeout))
	var te *expect.TimeoutError
	switch {
	case errors.As(err, &te):
		return chunk{kind: chunkTimeout, text: te.Output}, nil
	case err != nil:
		return chunk{}, err
	case m.Matched(1):
		return chunk{kind: chunkPrompt, text: m.Before}, nil
	default:
		return chunk{kind: chunkLine, text: m.Before + m.After}, nil
	}
}

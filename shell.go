package ptyconnect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/KennethanCeyer/ptyconnect/expect"
)

const (
	DefaultName            = "bash"
	DefaultPrompt          = `[#\$] `
	DefaultNewPrompt       = "bash# "
	DefaultMultilinePrompt = ">"
	DefaultTimeout         = 10 * time.Second
	DefaultEOL             = "\r"
)

// DefaultCommand is the argv of the default local shell.
var DefaultCommand = []string{"/bin/bash", "--noediting"}

const (
	drainTimeout    = time.Millisecond
	dispatchTimeout = 60 * time.Second
)

type ShellOpts struct {
	Name    string
	Command []string
	// Prompt matches the prompt of the shell as started.
	Prompt string
	// NewPrompt replaces the prompt when the shell is opened. It must be
	// a literal that command output is unlikely to contain. Defaults to
	// DefaultNewPrompt.
	NewPrompt       string
	MultilinePrompt string
	// Timeout is the default bound for every read.
	Timeout time.Duration
	// Commands defaults to BashCommands. A non-nil empty value disables
	// prompt negotiation and exit code retrieval.
	Commands *ShellCommands
	// StrictMultiline fails a multiline command when the continuation
	// prompt does not show up, instead of logging a warning.
	StrictMultiline bool
	Spawner         Spawner
	LogHook         LogHook
}

// Shell is one interactive shell session. It is not safe for concurrent
// use: the terminal carries one command at a time.
type Shell struct {
	name            string
	command         []string
	basePrompt      string
	prompt          string
	newPrompt       string
	multilinePrompt string
	timeout         time.Duration
	commands        ShellCommands
	strictMultiline bool
	spawner         Spawner
	logHook         LogHook

	conn    Conn
	lent    bool
	logger  *slog.Logger
	logName string
}

func NewShell(opts ShellOpts) *Shell {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Command == nil {
		opts.Command = DefaultCommand
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.NewPrompt == "" {
		opts.NewPrompt = DefaultNewPrompt
	}
	if opts.MultilinePrompt == "" {
		opts.MultilinePrompt = DefaultMultilinePrompt
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Commands == nil {
		opts.Commands = BashCommands()
	}
	if opts.Spawner == nil {
		opts.Spawner = DefaultSpawner(expect.SpawnOpts{})
	}
	if opts.LogHook == nil {
		opts.LogHook = DefaultLogHook
	}
	return &Shell{
		name:            opts.Name,
		command:         opts.Command,
		basePrompt:      opts.Prompt,
		prompt:          opts.Prompt,
		newPrompt:       opts.NewPrompt,
		multilinePrompt: opts.MultilinePrompt,
		timeout:         opts.Timeout,
		commands:        *opts.Commands,
		strictMultiline: opts.StrictMultiline,
		spawner:         opts.Spawner,
		logHook:         opts.LogHook,
	}
}

func (s *Shell) Name() string { return s.name }

// Prompt is the pattern currently recognized as the shell prompt.
func (s *Shell) Prompt() string { return s.prompt }

func (s *Shell) Timeout() time.Duration { return s.timeout }

// IsOpen reports whether the shell holds a live connection.
func (s *Shell) IsOpen() bool { return s.conn != nil }

// Open spawns the shell and negotiates the new prompt. It does nothing if
// the shell is already open.
func (s *Shell) Open(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	conn, err := s.spawner(ctx, s.command)
	if err != nil {
		return fmt.Errorf("ptyconnect: spawn %s: %w", s.name, err)
	}
	conn.SetTimeout(s.timeout)
	conn.SetEOL(DefaultEOL)
	s.conn = conn
	s.prompt = s.basePrompt
	s.logger, s.logName = nil, ""
	s.bind(ctx, s.name)
	s.log(ctx).Debug("shell opened", "command", strings.Join(s.command, " "))

	if s.newPrompt != "" && s.commands.ChangePrompt != "" {
		if err := s.negotiatePrompt(ctx); err != nil {
			_ = s.Close()
			return err
		}
	}
	return nil
}

func (s *Shell) negotiatePrompt(ctx context.Context) error {
	if _, err := s.conn.Expect(ctx, s.prompt); err != nil {
		return fmt.Errorf("ptyconnect: %s: wait for prompt: %w", s.name, err)
	}
	cmd := fmt.Sprintf(s.commands.ChangePrompt, s.newPrompt)
	if err := s.conn.Send(cmd); err != nil {
		return err
	}
	if _, err := s.conn.Expect(ctx, regexp.QuoteMeta(cmd)); err != nil {
		return fmt.Errorf("ptyconnect: %s: change prompt: %w", s.name, err)
	}
	if _, err := s.conn.Expect(ctx, "\n"); err != nil {
		return fmt.Errorf("ptyconnect: %s: change prompt: %w", s.name, err)
	}
	s.prompt = regexp.QuoteMeta(s.newPrompt)
	s.log(ctx).Debug("prompt negotiated", "prompt", s.newPrompt)
	return nil
}

// Close releases the connection. Closing a closed shell is a no-op.
func (s *Shell) Close() error {
	if s.lent {
		return ErrConnLent
	}
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	if s.logger != nil {
		s.logger.Debug("shell closed", "session", s.name)
	}
	s.conn = nil
	s.logger, s.logName = nil, ""
	return conn.Close()
}

func (s *Shell) ensureOpen(ctx context.Context) error {
	if s.lent {
		return ErrConnLent
	}
	return s.Open(ctx)
}

// bind points the connection's output sink at the logger of ctx, attributed
// to name, when either changed since the last call.
func (s *Shell) bind(ctx context.Context, name string) {
	l := LoggerFrom(ctx)
	if l == s.logger && name == s.logName {
		return
	}
	s.logger, s.logName = l, name
	s.conn.SetLogger(s.logHook(l, name))
}

func (s *Shell) log(ctx context.Context) *slog.Logger {
	return LoggerFrom(ctx).With("session", s.name)
}

// Send types text followed by the end-of-line marker.
func (s *Shell) Send(ctx context.Context, text string) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	s.bind(ctx, s.name)
	return s.conn.Send(text)
}

func (s *Shell) SendRaw(ctx context.Context, text string) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	s.bind(ctx, s.name)
	return s.conn.SendRaw(text)
}

func (s *Shell) Expect(ctx context.Context, pattern string, opts ...expect.Option) (*expect.Match, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	s.bind(ctx, s.name)
	return s.conn.Expect(ctx, pattern, opts...)
}

// Interact hands the terminal to a human until in ends, ctx is done or the
// shell exits. Output buffered so far is written to out first. Prompts shown
// during the hand-over are consumed, so send an empty line before invoking
// again.
func (s *Shell) Interact(ctx context.Context, in io.Reader, out io.Writer) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	ic, ok := s.conn.(interface {
		Interact(ctx context.Context, in io.Reader, out io.Writer) error
	})
	if !ok {
		return ErrNoInteract
	}
	return ic.Interact(ctx, in, out)
}

// Resize sets the terminal size of the shell's connection.
func (s *Shell) Resize(cols, rows int) error {
	if s.conn == nil {
		return ErrClosed
	}
	r, ok := s.conn.(interface{ Resize(cols, rows int) error })
	if !ok {
		return ErrNoInteract
	}
	return r.Resize(cols, rows)
}

// dispatch types command into the shell and waits until the shell has
// taken the final line.
func (s *Shell) dispatch(ctx context.Context, command string) error {
	c := s.conn
	if _, err := c.Expect(ctx, s.prompt); err != nil {
		return fmt.Errorf("ptyconnect: %s: wait for prompt: %w", s.name, err)
	}
	if err := s.drain(ctx, s.prompt); err != nil {
		return err
	}
	for i, line := range strings.Split(strings.TrimSpace(command), "\n") {
		if i > 0 {
			if err := c.SendRaw("\n"); err != nil {
				return err
			}
			if _, err := c.Expect(ctx, "\n"); err != nil {
				return fmt.Errorf("ptyconnect: %s: multiline echo: %w", s.name, err)
			}
			if err := s.expectContinuation(ctx); err != nil {
				return err
			}
		}
		if line == "" {
			continue
		}
		if err := c.SendRaw(line); err != nil {
			return err
		}
	}
	if err := s.drain(ctx, "\n"); err != nil {
		return err
	}
	if err := c.SendRaw("\r"); err != nil {
		return err
	}
	if _, err := c.Expect(ctx, "\n", expect.WithTimeout(dispatchTimeout)); err != nil {
		return fmt.Errorf("ptyconnect: %s: command echo: %w", s.name, err)
	}
	return nil
}

// drain consumes pattern until it stops showing up right away.
func (s *Shell) drain(ctx context.Context, pattern string) error {
	for {
		m, err := s.conn.Expect(ctx, pattern, expect.WithTimeout(drainTimeout), expect.AllowTimeout())
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}
	}
}

func (s *Shell) expectContinuation(ctx context.Context) error {
	opts := []expect.Option{expect.WithTimeout(s.timeout)}
	if !s.strictMultiline {
		opts = append(opts, expect.AllowTimeout())
	}
	m, err := s.conn.Expect(ctx, s.multilinePrompt, opts...)
	if err != nil {
		return fmt.Errorf("ptyconnect: %s: continuation prompt: %w", s.name, err)
	}
	if m == nil {
		s.log(ctx).Warn("continuation prompt not seen", "pattern", s.multilinePrompt)
	}
	return nil
}

// exitCode asks the shell for the status of the last command.
func (s *Shell) exitCode(ctx context.Context) (int, error) {
	q := s.commands.GetExitCode
	if err := s.drain(ctx, s.prompt); err != nil {
		return 0, err
	}
	if err := s.conn.SendRaw(q); err != nil {
		return 0, err
	}
	if _, err := s.conn.Expect(ctx, regexp.QuoteMeta(q)); err != nil {
		return 0, fmt.Errorf("ptyconnect: %s: exit code echo: %w", s.name, err)
	}
	if err := s.conn.SendRaw("\r"); err != nil {
		return 0, err
	}
	if _, err := s.conn.Expect(ctx, "\n"); err != nil {
		return 0, fmt.Errorf("ptyconnect: %s: exit code echo: %w", s.name, err)
	}
	m, err := s.conn.Expect(ctx, s.prompt)
	if err != nil {
		return 0, fmt.Errorf("ptyconnect: %s: exit code: %w", s.name, err)
	}
	text := strings.TrimSpace(cleanOutput(m.Before))
	code, err := strconv.Atoi(text)
	if err != nil {
		return 0, &ExitCodeError{Query: q, Output: text, Err: err}
	}
	return code, nil
}

// finalize sends a bare carriage return so the next command starts on a
// fresh prompt.
func (s *Shell) finalize(ctx context.Context) error {
	if err := s.conn.SendRaw("\r"); err != nil {
		return err
	}
	if _, err := s.conn.Expect(ctx, "\n"); err != nil {
		return fmt.Errorf("ptyconnect: %s: finalize: %w", s.name, err)
	}
	return nil
}

func cleanOutput(s string) string {
	return strings.ReplaceAll(strings.TrimRightFunc(s, unicode.IsSpace), "\r", "")
}

package ptyconnect

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/KennethanCeyer/ptyconnect/expect"
)

// DefaultSubshellName names a Subshell opened without a name.
const DefaultSubshellName = "sub-bash"

// lentConn is the connection of a Shell on loan to a nested Shell. Closing
// it runs onClose instead of closing the connection, and it stops working
// once the loan is returned.
type lentConn struct {
	conn     Conn
	onClose  func() error
	closed   bool
	returned bool
}

func (l *lentConn) Send(text string) error {
	if l.returned {
		return ErrClosed
	}
	return l.conn.Send(text)
}

func (l *lentConn) SendRaw(text string) error {
	if l.returned {
		return ErrClosed
	}
	return l.conn.SendRaw(text)
}

func (l *lentConn) Expect(ctx context.Context, pattern string, opts ...expect.Option) (*expect.Match, error) {
	if l.returned {
		return nil, ErrClosed
	}
	return l.conn.Expect(ctx, pattern, opts...)
}

func (l *lentConn) SetTimeout(d time.Duration) { l.conn.SetTimeout(d) }
func (l *lentConn) Timeout() time.Duration     { return l.conn.Timeout() }
func (l *lentConn) SetEOL(eol string)          { l.conn.SetEOL(eol) }
func (l *lentConn) EOL() string                { return l.conn.EOL() }
func (l *lentConn) SetLogger(w io.Writer)      { l.conn.SetLogger(w) }

func (l *lentConn) Interact(ctx context.Context, in io.Reader, out io.Writer) error {
	if l.returned {
		return ErrClosed
	}
	ic, ok := l.conn.(interface {
		Interact(ctx context.Context, in io.Reader, out io.Writer) error
	})
	if !ok {
		return ErrNoInteract
	}
	return ic.Interact(ctx, in, out)
}

func (l *lentConn) Resize(cols, rows int) error {
	if l.returned {
		return ErrClosed
	}
	r, ok := l.conn.(interface{ Resize(cols, rows int) error })
	if !ok {
		return ErrNoInteract
	}
	return r.Resize(cols, rows)
}

func (l *lentConn) Close() error {
	if l.closed || l.returned {
		return nil
	}
	l.closed = true
	if l.onClose == nil {
		return nil
	}
	return l.onClose()
}

// lend hands the open connection to one nested Shell. The returned function
// gives it back, restoring the timeout and end-of-line marker, and must be
// called even when the nested Shell fails.
func (s *Shell) lend(onClose func() error) (*lentConn, func(), error) {
	if s.lent {
		return nil, nil, ErrConnLent
	}
	if s.conn == nil {
		return nil, nil, ErrClosed
	}
	conn := s.conn
	timeout, eol := conn.Timeout(), conn.EOL()
	l := &lentConn{conn: conn, onClose: onClose}
	s.lent = true
	return l, func() {
		l.returned = true
		conn.SetTimeout(timeout)
		conn.SetEOL(eol)
		s.lent = false
		s.logger, s.logName = nil, ""
	}, nil
}

type SubshellOpts struct {
	Name      string
	Prompt    string
	NewPrompt string
	Timeout   time.Duration
	Commands  *ShellCommands
}

// Subshell starts command inside the shell and runs fn with a Shell
// attached to it over the same connection. When fn returns the nested shell
// is exited and the parent is usable again.
func (s *Shell) Subshell(ctx context.Context, command string, opts SubshellOpts, fn func(sub *Shell) error) (err error) {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	if opts.Name == "" {
		opts.Name = DefaultSubshellName
	}
	if opts.Timeout <= 0 {
		opts.Timeout = s.timeout
	}

	lc, release, err := s.lend(nil)
	if err != nil {
		return err
	}
	defer release()

	parent, parentPrompt := s.conn, s.prompt
	sub := NewShell(ShellOpts{
		Name:            opts.Name,
		Command:         []string{command},
		Prompt:          opts.Prompt,
		NewPrompt:       opts.NewPrompt,
		MultilinePrompt: s.multilinePrompt,
		Timeout:         opts.Timeout,
		Commands:        opts.Commands,
		LogHook:         s.logHook,
		Spawner: func(ctx context.Context, argv []string) (Conn, error) {
			if _, err := parent.Expect(ctx, parentPrompt); err != nil {
				return nil, err
			}
			if err := parent.Send(strings.Join(argv, " ")); err != nil {
				return nil, err
			}
			return lc, nil
		},
	})
	s.log(ctx).Debug("subshell enter", "subshell", opts.Name, "command", command)
	defer func() {
		err = errors.Join(err, sub.exitTo(ctx, parentPrompt), sub.Close())
		s.log(ctx).Debug("subshell exit", "subshell", opts.Name)
	}()
	return fn(sub)
}

// exitTo leaves the nested shell and waits for the parent prompt.
func (s *Shell) exitTo(ctx context.Context, parentPrompt string) error {
	if err := s.Send(ctx, "exit"); err != nil {
		return err
	}
	if _, err := s.Expect(ctx, "exit"); err != nil {
		return err
	}
	if _, err := s.Expect(ctx, parentPrompt); err != nil {
		return err
	}
	if err := s.Send(ctx, ""); err != nil {
		return err
	}
	_, err := s.Expect(ctx, "\n")
	return err
}

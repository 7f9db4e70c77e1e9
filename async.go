package ptyconnect

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultAsyncTimeout = 500 * time.Millisecond
	// ETX is ^C, the default interrupt sent by AsyncCommand.Close.
	ETX = "\x03"
)

// AsyncCommand is a command whose output is pulled by the caller with
// ReadLines. Nothing runs in the background; while it is not done no other
// command may be sent to the same shell.
//
// Output accumulates the text of every ReadLines call, successive results
// joined by a newline.
type AsyncCommand struct {
	Command
	done bool
}

// InvokeAsync sends command and returns without reading its output.
func (s *Shell) InvokeAsync(ctx context.Context, command string, opts InvokeOpts) (*AsyncCommand, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAsyncTimeout
	}
	if opts.Name == "" {
		opts.Name = command
	}
	a := &AsyncCommand{Command: *newCommand(s, command, opts)}
	s.bind(ctx, a.Name)
	a.log(ctx).Debug("invoke async", "command", command)
	if err := s.dispatch(ctx, command); err != nil {
		return nil, err
	}
	return a, nil
}

// Async runs fn with the started command and closes the command when fn
// returns.
func (s *Shell) Async(ctx context.Context, command string, opts InvokeOpts, fn func(*AsyncCommand) error) (err error) {
	a, err := s.InvokeAsync(ctx, command, opts)
	if err != nil {
		return err
	}
	defer func() {
		_, cerr := a.Close(ctx)
		err = errors.Join(err, cerr)
	}()
	return fn(a)
}

// Done reports whether the command finished and the shell is back at its
// prompt.
func (a *AsyncCommand) Done() bool { return a.done }

// ReadLines returns the output that arrives before the read times out or
// the command finishes. A timeout is not an error. Zero timeout means the
// command timeout.
func (a *AsyncCommand) ReadLines(ctx context.Context, timeout time.Duration) (string, error) {
	if a.done {
		return "", nil
	}
	if timeout <= 0 {
		timeout = a.Timeout
	}
	s := a.shell
	if s.conn == nil {
		return "", ErrClosed
	}
	s.bind(ctx, a.Name)

	var out []byte
	for !a.done {
		ch, err := s.readChunk(ctx, timeout)
		if err != nil {
			text := cleanOutput(string(out))
			a.Output = joinOutput(a.Output, text)
			return text, err
		}
		out = append(out, ch.text...)
		if ch.kind == chunkTimeout {
			break
		}
		if ch.kind == chunkPrompt {
			if err := a.resolveExitCode(ctx); err != nil {
				return cleanOutput(string(out)), err
			}
			if err := s.finalize(ctx); err != nil {
				return cleanOutput(string(out)), err
			}
			a.done = true
		}
	}

	text := cleanOutput(string(out))
	a.Output = joinOutput(a.Output, text)
	if a.done && a.parser != nil {
		v, err := a.parser.Parse(a.Output)
		if err != nil {
			return text, err
		}
		a.Values = v
	}
	return text, nil
}

// Close stops the command with ^C. See Interrupt.
func (a *AsyncCommand) Close(ctx context.Context) (string, error) {
	return a.Interrupt(ctx, ETX)
}

// Interrupt drains the command after a carriage return and, if it is still
// running, sends ctrl and drains again. It returns both drains and does
// nothing once the command is done.
func (a *AsyncCommand) Interrupt(ctx context.Context, ctrl string) (string, error) {
	if a.done {
		return "", nil
	}
	s := a.shell
	if s.conn == nil {
		return "", ErrClosed
	}
	defer s.bind(ctx, s.name)

	if err := s.conn.SendRaw("\r"); err != nil {
		return "", err
	}
	out, err := a.ReadLines(ctx, 0)
	if err != nil || a.done {
		return out, err
	}
	if err := s.conn.SendRaw(ctrl); err != nil {
		return out, err
	}
	more, err := a.ReadLines(ctx, 0)
	return joinOutput(out, more), err
}

func joinOutput(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n" + b
}

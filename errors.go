package ptyconnect

import (
	"errors"
	"fmt"

	"github.com/KennethanCeyer/ptyconnect/expect"
)

var (
	ErrClosed     = errors.New("ptyconnect: connection closed")
	ErrConnLent   = errors.New("ptyconnect: connection is lent to a nested shell")
	ErrNoExitCode = errors.New("ptyconnect: exit code not available")
	ErrNoInteract = errors.New("ptyconnect: connection is not a terminal")
	ErrTimeout    = expect.ErrTimeout
)

// TimeoutError carries the pattern, the bound that expired and the output
// collected so far.
type TimeoutError = expect.TimeoutError

func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// ConnectionError is an SSH login that did not reach the remote shell.
// Reason is the client output that ended the handshake.
type ConnectionError struct {
	Host   string
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ptyconnect: ssh %s: %s", e.Host, e.Reason)
}

// ExitCodeError is returned when the exit code query printed something that
// is not an integer.
type ExitCodeError struct {
	Query  string
	Output string
	Err    error
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("ptyconnect: %s printed %q: %v", e.Query, e.Output, e.Err)
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

// CommandError is a command that completed with a non-zero exit code.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ptyconnect: %q exited with status %d", e.Command, e.ExitCode)
}

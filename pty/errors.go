package pty

import (
	"errors"
	"fmt"
)

var (
	ErrNotAConsole  = errors.New("pty: not a console")
	ErrNotSupported = errors.New("pty: not supported on this platform")
	ErrEmptyProgram = errors.New("pty: empty program")
)

func IsErrNotAConsole(err error) bool { return errors.Is(err, ErrNotAConsole) }

type ExitError struct {
	ExitCode   int
	waitStatus any
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with status %d", e.ExitCode)
}

// Sys returns the platform wait status, e.g. syscall.WaitStatus on unix.
func (e *ExitError) Sys() any { return e.waitStatus }

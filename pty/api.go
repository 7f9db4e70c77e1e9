// Package pty allocates pseudo-terminals and starts processes attached to them.
package pty

import (
	"io"
	"os"
)

// Console is the controlling terminal of the current process.
type Console interface {
	In() io.Reader
	Out() io.Writer
	Err() *os.File
	IsATTYOut() bool
	Size() (int, int)
	MakeRaw() (RawState, error)
	Restore(RawState) error
	OnResize() <-chan struct{}
	Close() error
}

type RawState interface{}

// Session is a process running on the slave side of a PTY.
type Session interface {
	PtyReader() io.Reader
	PtyWriter() io.Writer
	Resize(cols, rows int) error
	Wait() error
	Kill() error
	Terminate() error
	Close() error
	Pid() int
	Exited() bool
}

type SpawnOpts struct {
	Prog string
	Args []string
	Env  []string
	Dir  string
	Cols int
	Rows int
}

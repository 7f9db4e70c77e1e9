//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package pty

import (
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"
)

type console struct {
	in, out, err *os.File
	outTTY       bool
	win          *winWatcher
	closeOnce    sync.Once
}

type rawState struct {
	st *term.State
	fd int
}

type winWatcher struct {
	C     chan struct{}
	ch    chan os.Signal
	ready chan struct{}
}

var newConsoleFunc = newConsole

// NewConsole wraps the process stdio. It returns ErrNotAConsole when stdin
// is not a terminal.
func NewConsole() (Console, error) { return newConsoleFunc() }

func newConsole() (Console, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, ErrNotAConsole
	}
	c := &console{in: os.Stdin, out: os.Stdout, err: os.Stderr}
	c.outTTY = term.IsTerminal(int(c.out.Fd()))
	c.initResizeWatcher()
	return c, nil
}

func (c *console) initResizeWatcher() {
	c.win = &winWatcher{
		C:     make(chan struct{}, 1),
		ch:    make(chan os.Signal, 1),
		ready: make(chan struct{}),
	}
	signal.Notify(c.win.ch, syscall.SIGWINCH)
	go func() {
		defer close(c.win.C)
		close(c.win.ready)
		for range c.win.ch {
			select {
			case c.win.C <- struct{}{}:
			default:
			}
		}
	}()
}

func (c *console) In() io.Reader             { return c.in }
func (c *console) Out() io.Writer            { return c.out }
func (c *console) Err() *os.File             { return c.err }
func (c *console) IsATTYOut() bool           { return c.outTTY }
func (c *console) OnResize() <-chan struct{} { return c.win.C }

func (c *console) Size() (int, int) {
	w, h, err := term.GetSize(int(c.out.Fd()))
	if err != nil {
		return 0, 0
	}
	return w, h
}

func (c *console) MakeRaw() (RawState, error) {
	fd := int(c.in.Fd())
	st, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &rawState{st: st, fd: fd}, nil
}

func (c *console) Restore(s RawState) error {
	r, ok := s.(*rawState)
	if !ok || r == nil || r.st == nil {
		return nil
	}
	return term.Restore(r.fd, r.st)
}

func (c *console) Close() error {
	c.closeOnce.Do(func() {
		if c.win != nil && c.win.ch != nil {
			signal.Stop(c.win.ch)
			close(c.win.ch)
		}
	})
	return nil
}

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package pty

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

type unixSession struct {
	cmd    *exec.Cmd
	master *os.File

	waitOnce sync.Once
	waitErr  error
	done     chan struct{}
}

var spawnFunc = spawn

// Spawn starts opts.Prog on a new PTY. The process is killed when ctx is done.
func Spawn(ctx context.Context, opts SpawnOpts) (Session, error) {
	return spawnFunc(ctx, opts)
}

func spawn(ctx context.Context, opts SpawnOpts) (sess Session, err error) {
	if opts.Prog == "" {
		return nil, ErrEmptyProgram
	}
	m, s, err := openPTY()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = m.Close()
			_ = s.Close()
		}
	}()

	cmd := exec.CommandContext(ctx, opts.Prog, opts.Args...)
	cmd.Env = opts.Env
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = s, s, s
	cmd.SysProcAttr = newSysProcAttr()

	if opts.Cols > 0 && opts.Rows > 0 {
		_ = setWinsize(int(m.Fd()), opts.Cols, opts.Rows)
	}

	if err = cmd.Start(); err != nil {
		return nil, err
	}
	_ = s.Close()

	us := &unixSession{cmd: cmd, master: m, done: make(chan struct{})}
	go us.reap()
	return us, nil
}

func (s *unixSession) reap() {
	err := s.cmd.Wait()
	if exitErr, ok := err.(*exec.ExitError); ok {
		err = &ExitError{
			ExitCode:   exitErr.ExitCode(),
			waitStatus: exitErr.Sys(),
		}
	}
	s.waitErr = err
	close(s.done)
}

func (s *unixSession) PtyReader() io.Reader { return s.master }
func (s *unixSession) PtyWriter() io.Writer { return s.master }
func (s *unixSession) Resize(cols, rows int) error {
	return setWinsize(int(s.master.Fd()), cols, rows)
}

func (s *unixSession) Wait() error {
	<-s.done
	return s.waitErr
}

func (s *unixSession) Exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *unixSession) Kill() error {
	if s.Exited() {
		return nil
	}
	return s.cmd.Process.Kill()
}

func (s *unixSession) Close() error { return s.master.Close() }
func (s *unixSession) Pid() int     { return s.cmd.Process.Pid }

func (s *unixSession) Terminate() error {
	if s.Exited() {
		return nil
	}
	return s.cmd.Process.Signal(syscall.SIGTERM)
}

func setWinsize(fd int, cols, rows int) error {
	ws := &unix.Winsize{Col: uint16(cols), Row: uint16(rows)}
	return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, ws)
}

func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true, Setctty: true, Ctty: 0}
}

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package pty

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func newTestConsole(t *testing.T) *console {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	c := &console{in: r, out: w, err: w, outTTY: true}
	c.initResizeWatcher()
	t.Cleanup(func() { c.Close(); r.Close(); w.Close() })
	return c
}

func TestConsole_NotATerminal(t *testing.T) {
	c := newTestConsole(t)
	if w, h := c.Size(); w != 0 || h != 0 {
		t.Errorf("Size() on a pipe = %d,%d, want 0,0", w, h)
	}
	if _, err := c.MakeRaw(); err == nil {
		t.Error("MakeRaw() on a pipe should fail")
	}
	if err := c.Restore(nil); err != nil {
		t.Errorf("Restore(nil) = %v, want nil", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestConsole_ResizeSignal(t *testing.T) {
	c := newTestConsole(t)

	select {
	case <-c.win.ready:
	case <-time.After(1 * time.Second):
		t.Fatal("resize watcher failed to start in time")
	}
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("Failed to find current process: %v", err)
	}
	if err := proc.Signal(syscall.SIGWINCH); err != nil {
		t.Skipf("Failed to send SIGWINCH, skipping test: %v", err)
	}

	select {
	case <-c.OnResize():
	case <-time.After(2 * time.Second):
		t.Fatal("OnResize() did not receive a signal within 2s")
	}
}

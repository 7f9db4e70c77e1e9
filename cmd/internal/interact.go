// Package internal holds code shared by the ptyconnect commands.
package internal

import (
	"context"
	"fmt"

	"github.com/KennethanCeyer/ptyconnect"
	"github.com/KennethanCeyer/ptyconnect/pty"
)

// Interact hands sh over to the controlling terminal until the user ends
// input, ctx is done or the shell exits. The terminal is in raw mode for the
// duration and size changes are forwarded to the shell.
func Interact(ctx context.Context, sh *ptyconnect.Shell) error {
	c, err := pty.NewConsole()
	if err != nil {
		return fmt.Errorf("failed to create console: %w", err)
	}
	defer c.Close()

	st, err := c.MakeRaw()
	if err == nil {
		defer c.Restore(st)
	}

	_ = sh.Resize(c.Size())
	go func() {
		for range c.OnResize() {
			_ = sh.Resize(c.Size())
		}
	}()

	// Redraw the prompt consumed by the last command.
	if err := sh.Send(ctx, ""); err != nil {
		return err
	}
	return sh.Interact(ctx, c.In(), c.Out())
}

// Command ptyconnect runs commands in interactive shells, local or over SSH,
// and prints their output. The exit status is that of the last command.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd(newApp()).ExecuteContext(ctx)
	if err == nil {
		return
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

package ptyconnect

import (
	"context"
	"errors"
)

// Run opens a shell with opts, runs commands one after another and closes
// the shell. It stops at the first command that cannot be completed; a
// non-zero exit code does not stop it.
func Run(ctx context.Context, opts ShellOpts, commands ...string) (cmds []*Command, err error) {
	sh := NewShell(opts)
	defer func() { err = errors.Join(err, sh.Close()) }()

	if err := sh.Open(ctx); err != nil {
		return nil, err
	}
	for _, command := range commands {
		c, err := sh.Run(ctx, command)
		if err != nil {
			return cmds, err
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

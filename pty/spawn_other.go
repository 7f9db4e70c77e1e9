//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package pty

import "context"

var spawnFunc = func(ctx context.Context, opts SpawnOpts) (Session, error) {
	return nil, ErrNotSupported
}

// Spawn is not supported on this platform; drive shells over sshconn instead.
func Spawn(ctx context.Context, opts SpawnOpts) (Session, error) {
	return spawnFunc(ctx, opts)
}

func NewConsole() (Console, error) { return nil, ErrNotAConsole }

//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package pty

import (
	"os"

	creackpty "github.com/creack/pty"
)

func openPTY() (*os.File, *os.File, error) {
	return creackpty.Open()
}

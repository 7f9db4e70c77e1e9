package pty

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitError(t *testing.T) {
	var err error = &ExitError{ExitCode: 130, waitStatus: "signaled"}
	assert.EqualError(t, err, "process exited with status 130")

	var exitErr *ExitError
	assert.True(t, errors.As(fmt.Errorf("wait: %w", err), &exitErr))
	assert.Equal(t, 130, exitErr.ExitCode)
	assert.Equal(t, "signaled", exitErr.Sys())
}

func TestIsErrNotAConsole(t *testing.T) {
	assert.True(t, IsErrNotAConsole(ErrNotAConsole))
	assert.True(t, IsErrNotAConsole(fmt.Errorf("interact: %w", ErrNotAConsole)))
	assert.False(t, IsErrNotAConsole(ErrNotSupported))
	assert.False(t, IsErrNotAConsole(nil))
}

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package ptyconnect

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KennethanCeyer/ptyconnect/expect"
)

func newBash(t *testing.T) *Shell {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping bash integration test in short mode")
	}
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	sh := NewShell(ShellOpts{
		Command: []string{bash, "--noediting", "--norc", "--noprofile"},
		Spawner: DefaultSpawner(expect.SpawnOpts{Env: append(os.Environ(), "TERM=dumb")}),
	})
	t.Cleanup(func() { _ = sh.Close() })
	return sh
}

func TestBash(t *testing.T) {
	ctx := context.Background()
	sh := newBash(t)

	c, err := sh.Run(ctx, "echo Hello World")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", c.Output)
	code, _ := c.ExitCode()
	assert.Equal(t, 0, code)

	c, err = sh.Run(ctx, "echo ")
	require.NoError(t, err)
	assert.Equal(t, "", c.Output)

	c, err = sh.Run(ctx, "ls /foo__")
	require.NoError(t, err)
	code, _ = c.ExitCode()
	assert.Equal(t, 2, code)

	for i := 0; i < 3; i++ {
		require.NoError(t, sh.Send(ctx, ""))
		c, err = sh.Run(ctx, fmt.Sprintf("echo %d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), c.Output)
	}
}

func TestBashHeredoc(t *testing.T) {
	ctx := context.Background()
	sh := newBash(t)
	dir := t.TempDir()

	for _, n := range []int{1, 100, 1000} {
		lines := []string{strings.Repeat("x", n), strings.Repeat("y", n)}
		path := filepath.Join(dir, fmt.Sprintf("f%d", n))
		_, err := sh.Run(ctx, fmt.Sprintf("cat > %s << HEREDOC\n%s\nHEREDOC", path, strings.Join(lines, "\n")))
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, strings.Join(lines, "\n")+"\n", string(data))
	}
}

func TestBashTimeout(t *testing.T) {
	ctx := context.Background()
	sh := newBash(t)

	_, err := sh.Invoke(ctx, "echo first; sleep 5; echo second", InvokeOpts{Timeout: time.Second})
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Output, "first")
}

func TestBashAsync(t *testing.T) {
	ctx := context.Background()
	sh := newBash(t)

	a, err := sh.InvokeAsync(ctx, "sleep 30", InvokeOpts{})
	require.NoError(t, err)
	_, err = a.Close(ctx)
	require.NoError(t, err)
	assert.True(t, a.Done())
	code, _ := a.ExitCode()
	assert.Equal(t, 130, code)

	c, err := sh.Run(ctx, "echo back")
	require.NoError(t, err)
	assert.Equal(t, "back", c.Output)
}

func TestBashSubshell(t *testing.T) {
	ctx := context.Background()
	sh := newBash(t)

	err := sh.Subshell(ctx, "bash --noediting --norc --noprofile", SubshellOpts{}, func(sub *Shell) error {
		c, err := sub.Run(ctx, "echo $BASH_SUBSHELL-$SHLVL")
		if err != nil {
			return err
		}
		assert.NotEmpty(t, c.Output)
		return nil
	})
	require.NoError(t, err)

	c, err := sh.Run(ctx, "echo parent")
	require.NoError(t, err)
	assert.Equal(t, "parent", c.Output)
}

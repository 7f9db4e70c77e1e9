package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KennethanCeyer/ptyconnect"
	"github.com/KennethanCeyer/ptyconnect/shelltest"
)

type result struct {
	stdout string
	stderr string
	err    error
}

func execute(t *testing.T, a *app, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(a)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--timeout", "2s"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func newTestApp(fake *shelltest.Shell) *app {
	a := newApp()
	a.spawner = func(ctx context.Context, argv []string) (ptyconnect.Conn, error) {
		c, err := fake.Spawn(ctx, argv)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	a.handOver = func(context.Context, *ptyconnect.Shell) error { return nil }
	return a
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var e *exitError
	require.ErrorAs(t, err, &e)
	return e.code
}

func TestRunCmd(t *testing.T) {
	fake := shelltest.New()
	r := execute(t, newTestApp(fake), "run", "echo a", "echo b")
	require.NoError(t, r.err)
	assert.Equal(t, "a\nb\n", r.stdout)
	assert.Equal(t, [][]string{ptyconnect.DefaultCommand}, fake.Spawned())
}

func TestRunCmdExitStatus(t *testing.T) {
	fake := shelltest.New()
	r := execute(t, newTestApp(fake), "run", "ls /missing")
	assert.Equal(t, 2, exitCode(t, r.err))
	assert.Contains(t, r.stdout, "No such file or directory")

	r = execute(t, newTestApp(shelltest.New()), "run", "false", "true")
	assert.NoError(t, r.err)
}

func TestRunCmdInteract(t *testing.T) {
	a := newTestApp(shelltest.New())
	var handed *ptyconnect.Shell
	a.handOver = func(_ context.Context, sh *ptyconnect.Shell) error {
		handed = sh
		return nil
	}
	r := execute(t, a, "--interact", "run", "echo a")
	require.NoError(t, r.err)
	require.NotNil(t, handed)
	assert.Equal(t, ptyconnect.DefaultName, handed.Name())
}

func TestRunCmdLogging(t *testing.T) {
	r := execute(t, newTestApp(shelltest.New()), "--log-level", "debug", "--log-format", "json", "run", "echo logged")
	require.NoError(t, r.err)
	assert.Contains(t, r.stderr, `"msg":"command finished"`)
	assert.Contains(t, r.stderr, `"line":"logged"`)
}

func TestRunCmdBadConfig(t *testing.T) {
	r := execute(t, newTestApp(shelltest.New()), "--log-level", "loud", "run", "true")
	assert.ErrorContains(t, r.err, "log.level")
}

func TestWatchCmd(t *testing.T) {
	fake := shelltest.New()
	fake.Handle("tick", func(e *shelltest.Exec) int {
		for i := 1; ; i++ {
			e.Printf("tick %d\n", i)
			if !e.Sleep(100 * time.Millisecond) {
				return 130
			}
		}
	})
	r := execute(t, newTestApp(fake), "watch", "--for", "350ms", "--poll", "30ms", "tick")
	assert.Equal(t, 130, exitCode(t, r.err))
	assert.Contains(t, r.stdout, "tick 1\n")
	assert.Contains(t, r.stdout, "tick 2\n")

	r = execute(t, newTestApp(shelltest.New()), "watch", "echo quick")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "quick")
}

func TestSubshellCmd(t *testing.T) {
	fake := shelltest.New()
	r := execute(t, newTestApp(fake), "subshell", "bash", "echo inner")
	require.NoError(t, r.err)
	assert.Equal(t, "inner\n", r.stdout)
	assert.Subset(t, fake.History(), []string{"bash", "echo inner", "exit"})
}

func TestSSHCmd(t *testing.T) {
	fake := shelltest.New()
	r := execute(t, newTestApp(fake), "ssh", "-l", "admin", "-p", "2222", "box", "echo remote")
	require.NoError(t, r.err)
	assert.Equal(t, "remote\n", r.stdout)
	assert.Contains(t, fake.History(), "ssh admin@box -p 2222")

	r = execute(t, newTestApp(shelltest.New()), "ssh", "refused-box")
	var ce *ptyconnect.ConnectionError
	require.ErrorAs(t, r.err, &ce)
	assert.Equal(t, "refused-box", ce.Host)
}

func TestSSHCmdNativeDialError(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	r := execute(t, newTestApp(shelltest.New()), "ssh", "--native", "--insecure", "box")
	assert.ErrorContains(t, r.err, "no authentication methods")
}

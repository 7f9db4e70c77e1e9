package ptyconnect

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KennethanCeyer/ptyconnect/expect"
)

type stubConn struct {
	sent    []string
	timeout time.Duration
	eol     string
	closed  int
}

func (c *stubConn) Send(text string) error    { return c.SendRaw(text + c.eol) }
func (c *stubConn) SendRaw(text string) error { c.sent = append(c.sent, text); return nil }
func (c *stubConn) Expect(context.Context, string, ...expect.Option) (*expect.Match, error) {
	return &expect.Match{}, nil
}
func (c *stubConn) SetTimeout(d time.Duration) { c.timeout = d }
func (c *stubConn) Timeout() time.Duration     { return c.timeout }
func (c *stubConn) SetEOL(eol string)          { c.eol = eol }
func (c *stubConn) EOL() string                { return c.eol }
func (c *stubConn) SetLogger(io.Writer)        {}
func (c *stubConn) Close() error               { c.closed++; return nil }

func TestLend(t *testing.T) {
	conn := &stubConn{timeout: time.Second, eol: "\r"}
	sh := NewShell(ShellOpts{})
	sh.conn = conn

	var onClose int
	lc, release, err := sh.lend(func() error { onClose++; return nil })
	require.NoError(t, err)

	_, _, err = sh.lend(nil)
	assert.ErrorIs(t, err, ErrConnLent)
	assert.ErrorIs(t, sh.Close(), ErrConnLent)
	_, err = sh.Run(context.Background(), "true")
	assert.ErrorIs(t, err, ErrConnLent)

	lc.SetTimeout(time.Minute)
	lc.SetEOL("\n")
	assert.Equal(t, time.Minute, conn.timeout)
	require.NoError(t, lc.Send("x"))
	assert.Equal(t, []string{"x\n"}, conn.sent)
	assert.ErrorIs(t, lc.Interact(context.Background(), nil, nil), ErrNoInteract)
	assert.ErrorIs(t, lc.Resize(80, 24), ErrNoInteract)

	require.NoError(t, lc.Close())
	require.NoError(t, lc.Close())
	assert.Equal(t, 1, onClose)
	assert.Equal(t, 0, conn.closed)

	release()
	assert.Equal(t, time.Second, conn.timeout)
	assert.Equal(t, "\r", conn.eol)
	assert.ErrorIs(t, lc.Send("late"), ErrClosed)
	_, err = lc.Expect(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, lc.Interact(context.Background(), nil, nil), ErrClosed)

	require.NoError(t, sh.Close())
	assert.Equal(t, 1, conn.closed)
}

func TestSubshell(t *testing.T) {
	ctx := context.Background()

	t.Run("RunsInside", func(t *testing.T) {
		sh, fake := newTestShell(t, ShellOpts{})
		_, err := sh.Run(ctx, "echo before")
		require.NoError(t, err)
		timeout := sh.conn.Timeout()

		err = sh.Subshell(ctx, "bash", SubshellOpts{Timeout: time.Second}, func(sub *Shell) error {
			assert.Equal(t, DefaultSubshellName, sub.Name())
			c, err := sub.Run(ctx, "echo inside")
			if err != nil {
				return err
			}
			assert.Equal(t, "inside", c.Output)
			assert.Equal(t, 2, fake.Depth())

			_, err = sh.Run(ctx, "echo parent")
			assert.ErrorIs(t, err, ErrConnLent)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, fake.Depth())
		assert.Equal(t, timeout, sh.conn.Timeout())
		assert.Len(t, fake.Spawned(), 1)

		c, err := sh.Run(ctx, "echo after")
		require.NoError(t, err)
		assert.Equal(t, "after", c.Output)
		assert.Contains(t, fake.History(), "exit")
	})

	t.Run("RestoresOnError", func(t *testing.T) {
		sh, fake := newTestShell(t, ShellOpts{})
		boom := errors.New("boom")
		err := sh.Subshell(ctx, "sh", SubshellOpts{Name: "inner"}, func(sub *Shell) error {
			if _, err := sub.Run(ctx, "true"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, fake.Depth())
		assert.False(t, sh.lent)

		c, err := sh.Run(ctx, "echo ok")
		require.NoError(t, err)
		assert.Equal(t, "ok", c.Output)
	})

	t.Run("Nested", func(t *testing.T) {
		sh, fake := newTestShell(t, ShellOpts{})
		err := sh.Subshell(ctx, "bash", SubshellOpts{}, func(sub *Shell) error {
			return sub.Subshell(ctx, "bash", SubshellOpts{Name: "sub-sub"}, func(subsub *Shell) error {
				c, err := subsub.Run(ctx, "echo deep")
				if err != nil {
					return err
				}
				assert.Equal(t, "deep", c.Output)
				assert.Equal(t, 3, fake.Depth())
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, fake.Depth())
	})
}

package ptyconnect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KennethanCeyer/ptyconnect/shelltest"
)

func sshOpts(fake *shelltest.Shell, host string) SSHOpts {
	return SSHOpts{
		Host:     host,
		Username: "user",
		Timeout:  2 * time.Second,
		Local:    ShellOpts{Spawner: fakeSpawner(fake)},
	}
}

func TestSSHCommand(t *testing.T) {
	tests := []struct {
		name string
		opts SSHOpts
		want string
	}{
		{"HostOnly", SSHOpts{Client: "ssh", Host: "h"}, "ssh h"},
		{"User", SSHOpts{Client: "ssh", Host: "h", Username: "u"}, "ssh u@h"},
		{"Options", SSHOpts{Client: "ssh", Host: "h", Username: "u", Options: []string{"-v", "-o StrictHostKeyChecking=no"}}, "ssh u@h -v -o StrictHostKeyChecking=no"},
		{"Port", SSHOpts{Client: "ssh", Host: "h", Port: 2222}, "ssh h -p 2222"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.command())
		})
	}
}

func TestSSH(t *testing.T) {
	ctx := context.Background()
	trustSettle = 0
	t.Cleanup(func() { trustSettle = 500 * time.Millisecond })

	for _, host := range []string{"example", "new-host"} {
		t.Run(host, func(t *testing.T) {
			fake := shelltest.New()
			err := SSH(ctx, sshOpts(fake, host), func(remote *Shell) error {
				assert.Equal(t, host, remote.Name())
				c, err := remote.Run(ctx, "echo remote")
				if err != nil {
					return err
				}
				assert.Equal(t, "remote", c.Output)
				code, _ := c.ExitCode()
				assert.Equal(t, 0, code)
				assert.Equal(t, 2, fake.Depth())
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, 1, fake.Depth())
			assert.Contains(t, fake.History(), "ssh user@"+host)
			assert.Contains(t, fake.History(), "exit")
		})
	}

	t.Run("Password", func(t *testing.T) {
		fake := shelltest.New()
		opts := sshOpts(fake, "password-host")
		opts.Password = "secret"
		err := SSH(ctx, opts, func(remote *Shell) error {
			_, err := remote.Run(ctx, "true")
			return err
		})
		require.NoError(t, err)
	})

	t.Run("Port", func(t *testing.T) {
		fake := shelltest.New()
		opts := sshOpts(fake, "example")
		opts.Port = 2222
		require.NoError(t, SSH(ctx, opts, func(*Shell) error { return nil }))
		assert.Contains(t, fake.History(), "ssh user@example -p 2222")
	})

	t.Run("CallbackError", func(t *testing.T) {
		fake := shelltest.New()
		boom := errors.New("boom")
		err := SSH(ctx, sshOpts(fake, "example"), func(remote *Shell) error {
			if _, err := remote.Run(ctx, "true"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, fake.History(), "exit")
	})
}

func TestSSHConnectionError(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		host     string
		password string
		reason   string
	}{
		{"nxdomain", "", "Could not resolve hostname"},
		{"refused", "", "Connection refused"},
		{"password-host", "", "password:"},
		{"password-host", "wrong", "Permission denied"},
	}
	for _, tt := range tests {
		t.Run(tt.host+tt.password, func(t *testing.T) {
			fake := shelltest.New()
			opts := sshOpts(fake, tt.host)
			opts.Password = tt.password
			called := false
			err := SSH(ctx, opts, func(*Shell) error {
				called = true
				return nil
			})
			var ce *ConnectionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.host, ce.Host)
			assert.Equal(t, tt.reason, ce.Reason)
			assert.False(t, called)
		})
	}
}

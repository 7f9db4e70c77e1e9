package ptyconnect

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSSHClient = "ssh"
	// DefaultSSHPrompt matches the prompt of a remote login shell.
	DefaultSSHPrompt = `[\$#] `
)

// trustSettle is the pause before answering the host key prompt.
var trustSettle = 500 * time.Millisecond

const (
	loginBanner = iota + 1
	unknownHost
	refused
	trustPrompt
	passwordPrompt
	denied
)

const handshakePattern = `(Last login)|(Could not resolve hostname)|(Connection refused)|` +
	`(Are you sure you want to continue connecting)|([Pp]assword:)|(Permission denied)`

type SSHOpts struct {
	Host     string
	Username string
	// Password answers a password prompt. Without it a password prompt
	// fails the login.
	Password string
	Port     int
	Client   string
	Options  []string
	// Prompt matches the remote prompt before it is replaced by NewPrompt.
	Prompt    string
	NewPrompt string
	Timeout   time.Duration
	Commands  *ShellCommands
	// Local is the shell the client is started from. Zero values take the
	// Shell defaults.
	Local ShellOpts
}

func (o SSHOpts) command() string {
	target := o.Host
	if o.Username != "" {
		target = o.Username + "@" + o.Host
	}
	args := []string{o.Client, target}
	args = append(args, o.Options...)
	if o.Port != 0 {
		args = append(args, "-p", strconv.Itoa(o.Port))
	}
	return strings.Join(args, " ")
}

// SSH logs in to a remote host with the local ssh client and runs fn with a
// Shell attached to the remote login shell. The remote shell is exited and
// the local one closed when fn returns.
func SSH(ctx context.Context, opts SSHOpts, fn func(remote *Shell) error) (err error) {
	if opts.Client == "" {
		opts.Client = DefaultSSHClient
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultSSHPrompt
	}
	if opts.Local.Name == "" {
		opts.Local.Name = "ssh-" + opts.Host
	}
	if opts.Local.Timeout <= 0 {
		opts.Local.Timeout = opts.Timeout
	}

	local := NewShell(opts.Local)
	defer func() { err = errors.Join(err, local.Close()) }()

	if err := login(ctx, local, opts); err != nil {
		return err
	}
	local.log(ctx).Debug("ssh connected", "host", opts.Host)

	localPrompt := local.prompt
	lc, release, err := local.lend(func() error {
		if err := local.conn.Send("exit"); err != nil {
			return err
		}
		if _, err := local.conn.Expect(ctx, "exit"); err != nil {
			return err
		}
		_, err := local.conn.Expect(ctx, localPrompt)
		return err
	})
	if err != nil {
		return err
	}
	defer release()

	remote := NewShell(ShellOpts{
		Name:      opts.Host,
		Command:   []string{""},
		Prompt:    opts.Prompt,
		NewPrompt: opts.NewPrompt,
		Timeout:   opts.Timeout,
		Commands:  opts.Commands,
		LogHook:   local.logHook,
		Spawner: func(ctx context.Context, argv []string) (Conn, error) {
			if err := local.conn.Send(strings.Join(argv, " ")); err != nil {
				return nil, err
			}
			return lc, nil
		},
	})
	defer func() { err = errors.Join(err, remote.Close()) }()
	return fn(remote)
}

// login runs the ssh client in local and answers its questions until the
// login banner shows up.
func login(ctx context.Context, local *Shell, opts SSHOpts) error {
	if err := local.Send(ctx, opts.command()); err != nil {
		return err
	}
	trusted, answered := false, false
	for {
		m, err := local.Expect(ctx, handshakePattern)
		if err != nil {
			return err
		}
		switch {
		case m.Matched(loginBanner):
			if _, err := local.Expect(ctx, opts.Prompt); err != nil {
				return err
			}
			return local.Send(ctx, "")
		case m.Matched(trustPrompt) && !trusted:
			trusted = true
			select {
			case <-time.After(trustSettle):
			case <-ctx.Done():
				return ctx.Err()
			}
			if err := local.Send(ctx, "yes"); err != nil {
				return err
			}
		case m.Matched(passwordPrompt) && opts.Password != "" && !answered:
			answered = true
			if err := local.Send(ctx, opts.Password); err != nil {
				return err
			}
		default:
			return &ConnectionError{Host: opts.Host, Reason: m.After}
		}
	}
}

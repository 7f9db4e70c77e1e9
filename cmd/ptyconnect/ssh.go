package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/KennethanCeyer/ptyconnect"
	"github.com/KennethanCeyer/ptyconnect/sshconn"
)

type sshFlags struct {
	user           string
	port           int
	options        []string
	identities     []string
	native         bool
	acceptNewHosts bool
	insecure       bool
}

func (f *sshFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.user, "login", "l", "", "remote user")
	fs.IntVarP(&f.port, "port", "p", 0, "remote port")
	fs.StringArrayVarP(&f.options, "option", "o", nil, "extra ssh client option, e.g. -o StrictHostKeyChecking=no")
	fs.StringArrayVarP(&f.identities, "identity", "i", nil, "private key file for --native")
	fs.BoolVar(&f.native, "native", false, "connect with the built-in SSH client")
	fs.BoolVar(&f.acceptNewHosts, "accept-new-hosts", false, "record unknown host keys with --native")
	fs.BoolVar(&f.insecure, "insecure", false, "skip host key verification with --native")
}

func newSSHCmd(a *app) *cobra.Command {
	var f sshFlags
	cmd := &cobra.Command{
		Use:   "ssh HOST [COMMAND...]",
		Short: "Log in to HOST and run commands in the remote shell",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("login") {
				a.cfg.SSH.User = f.user
			}
			if flags.Changed("port") {
				a.cfg.SSH.Port = f.port
			}
			if flags.Changed("option") {
				a.cfg.SSH.Options = append(a.cfg.SSH.Options, f.options...)
			}
			if flags.Changed("identity") {
				a.cfg.SSH.KeyFiles = f.identities
			}
			if flags.Changed("native") {
				a.cfg.SSH.Native = f.native
			}
			if flags.Changed("accept-new-hosts") {
				a.cfg.SSH.AcceptNewHosts = f.acceptNewHosts
			}
			if flags.Changed("insecure") {
				a.cfg.SSH.Insecure = f.insecure
			}

			ctx := cmd.Context()
			host, commands := args[0], args[1:]
			if a.cfg.SSH.Native {
				return a.nativeSSH(ctx, cmd.OutOrStdout(), host, commands)
			}
			opts := a.cfg.SSHOpts(host)
			opts.Local.Spawner = a.spawner
			return ptyconnect.SSH(ctx, opts, func(remote *ptyconnect.Shell) error {
				return a.session(ctx, cmd.OutOrStdout(), remote, commands)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *app) nativeSSH(ctx context.Context, out io.Writer, host string, commands []string) (err error) {
	client, err := sshconn.Dial(ctx, a.cfg.SSHConnOptions(host))
	if err != nil {
		return err
	}
	defer client.Close()

	sh := ptyconnect.NewShell(ptyconnect.ShellOpts{
		Name:      "ssh-" + host,
		Command:   []string{""},
		Prompt:    a.cfg.SSH.Prompt,
		NewPrompt: a.cfg.SSH.NewPrompt,
		Timeout:   a.cfg.Shell.Timeout.Duration(),
		Spawner:   client.Spawner(),
	})
	defer func() {
		if cerr := sh.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := sh.Open(ctx); err != nil {
		return err
	}
	return a.session(ctx, out, sh, commands)
}

package main

import (
	"os"

	"github.com/spf13/cobra"
)

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell [COMMAND...]",
		Short: "Run commands in $SHELL, then hand it over to the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.ShellOpts()
			opts.Name = "shell"
			opts.Command = []string{defaultShell()}
			opts.Spawner = a.spawner
			a.interact = true
			return a.local(cmd, opts, args)
		},
	}
}

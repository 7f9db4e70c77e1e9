package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KennethanCeyer/ptyconnect"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run COMMAND...",
		Short: "Run each argument as a command in a local shell",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.ShellOpts()
			opts.Spawner = a.spawner
			return a.local(cmd, opts, args)
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		duration time.Duration
		poll     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch COMMAND",
		Short: "Stream the output of a command, interrupting it after --for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			opts := a.cfg.ShellOpts()
			opts.Spawner = a.spawner
			sh := ptyconnect.NewShell(opts)
			defer func() {
				if cerr := sh.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			var code int
			err = sh.Async(ctx, args[0], ptyconnect.InvokeOpts{Timeout: poll}, func(ac *ptyconnect.AsyncCommand) error {
				deadline := time.Now().Add(duration)
				for !ac.Done() && time.Now().Before(deadline) {
					text, err := ac.ReadLines(ctx, 0)
					if text != "" {
						fmt.Fprintln(out, text)
					}
					if err != nil {
						return err
					}
				}
				if !ac.Done() {
					text, err := ac.Close(ctx)
					if text != "" {
						fmt.Fprintln(out, text)
					}
					if err != nil {
						return err
					}
				}
				code, _ = ac.ExitCode()
				return nil
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 10*time.Second, "interrupt the command after this long")
	cmd.Flags().DurationVar(&poll, "poll", ptyconnect.DefaultAsyncTimeout, "wait this long for each batch of output")
	return cmd
}

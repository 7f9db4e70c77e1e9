package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/KennethanCeyer/ptyconnect"
	"github.com/KennethanCeyer/ptyconnect/cmd/internal"
	"github.com/KennethanCeyer/ptyconnect/internal/config"
)

type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// app is the state shared by the subcommands of one invocation.
type app struct {
	cfgPath   string
	timeout   time.Duration
	logLevel  string
	logFormat string
	interact  bool

	cfg *config.Config
	// spawner starts local shells. Nil means ptyconnect.DefaultSpawner.
	spawner  ptyconnect.Spawner
	handOver func(context.Context, *ptyconnect.Shell) error
}

func newApp() *app {
	return &app{handOver: internal.Interact}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ptyconnect",
		Short: "Drive interactive shells from the command line",
		Long: `ptyconnect types commands into an interactive shell the way a person
would, waits for the prompt, and prints each command's output.

  ptyconnect run 'cd /tmp' 'ls -l'
  ptyconnect ssh -l deploy web1 'uptime'
  ptyconnect subshell 'sudo -s' 'whoami'

Configuration is read from ` + "`$XDG_CONFIG_HOME/ptyconnect/config.yaml`" + ` and
PTYCONNECT_* environment variables; flags take precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			flags := cmd.Flags()
			if flags.Changed("timeout") {
				cfg.Shell.Timeout = config.Duration(a.timeout)
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = a.logLevel
			}
			if flags.Changed("log-format") {
				cfg.Log.Format = a.logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			cmd.SetContext(ptyconnect.WithLogger(cmd.Context(), cfg.Logger(cmd.ErrOrStderr())))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default $XDG_CONFIG_HOME/ptyconnect/config.yaml)")
	pf.DurationVar(&a.timeout, "timeout", ptyconnect.DefaultTimeout, "read timeout for each command")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")
	pf.BoolVar(&a.interact, "interact", false, "hand the shell over to the terminal after the commands ran")

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newSubshellCmd(a))
	cmd.AddCommand(newSSHCmd(a))
	cmd.AddCommand(newShellCmd(a))
	return cmd
}

// local opens a shell with opts and runs commands in it.
func (a *app) local(cmd *cobra.Command, opts ptyconnect.ShellOpts, commands []string) (err error) {
	ctx := cmd.Context()
	sh := ptyconnect.NewShell(opts)
	defer func() {
		if cerr := sh.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := sh.Open(ctx); err != nil {
		return err
	}
	return a.session(ctx, cmd.OutOrStdout(), sh, commands)
}

// session runs commands in sh and prints their output. The result carries
// the exit status of the last command.
func (a *app) session(ctx context.Context, out io.Writer, sh *ptyconnect.Shell, commands []string) error {
	log := ptyconnect.LoggerFrom(ctx)
	code := 0
	for _, command := range commands {
		c, err := sh.Run(ctx, command)
		if err != nil {
			return err
		}
		if c.Output != "" {
			fmt.Fprintln(out, c.Output)
		}
		code, _ = c.ExitCode()
		log.Debug("command finished", "command_id", c.ID, "command", command, "exit_code", code)
	}
	if a.interact {
		if err := a.handOver(ctx, sh); err != nil {
			return fmt.Errorf("interact: %w", err)
		}
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/KennethanCeyer/ptyconnect"
)

func newSubshellCmd(a *app) *cobra.Command {
	var opts ptyconnect.SubshellOpts
	cmd := &cobra.Command{
		Use:   "subshell SHELL-COMMAND [COMMAND...]",
		Short: "Start a nested shell and run commands inside it",
		Example: `  ptyconnect subshell 'sudo -s' whoami
  ptyconnect subshell 'docker exec -it web bash' 'cat /etc/os-release'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			shellOpts := a.cfg.ShellOpts()
			shellOpts.Spawner = a.spawner
			sh := ptyconnect.NewShell(shellOpts)
			defer func() {
				if cerr := sh.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			if opts.Timeout <= 0 {
				opts.Timeout = a.cfg.Shell.Timeout.Duration()
			}
			return sh.Subshell(ctx, args[0], opts, func(sub *ptyconnect.Shell) error {
				return a.session(ctx, cmd.OutOrStdout(), sub, args[1:])
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", ptyconnect.DefaultSubshellName, "name used in logs")
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "", "regexp matching the nested shell's prompt")
	return cmd
}

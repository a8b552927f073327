package main

import (
	"github.com/agentuity/go-terminals/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newShutdownCommand() *cobra.Command {
	var all, yes bool
	cmd := &cobra.Command{
		Use:   "shutdown [name...]",
		Short: "Shut down terminals",
		Long: `Shut down the named terminals, or every running terminal with --all.
Without arguments on an interactive terminal the terminals to shut down are picked from a list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("--all does not take terminal names")
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if all {
				if !yes {
					ok, err := tui.Ask("Shut down every running terminal?", true)
					if err != nil {
						return err
					}
					if !ok {
						return nil
					}
				}
				if err := tui.ShowSpinner("Shutting down terminals...", func() error {
					return s.manager.ShutdownAll(ctx)
				}); err != nil {
					return err
				}
				tui.ShowSuccess(out, "All terminals shut down")
				return nil
			}

			names := args
			if len(names) == 0 {
				if err := refresh(ctx, s); err != nil {
					return err
				}
				running := runningNames(s.manager)
				if len(running) == 0 {
					tui.ShowWarning(out, "No terminals running")
					return nil
				}
				names, err = tui.MultiSelect("Terminals to shut down", "", running)
				if err != nil {
					return errors.Wrap(err, "pass terminal names or --all")
				}
			}
			for _, name := range names {
				if err := s.manager.Shutdown(ctx, name); err != nil {
					return err
				}
				tui.ShowSuccess(out, "Shut down terminal %s", tui.Name(name))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Shut down every running terminal")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

package main

import (
	"fmt"

	"github.com/agentuity/go-terminals/terminal"
	"github.com/agentuity/go-terminals/tui"
	"github.com/spf13/cobra"
)

func newNewCommand() *cobra.Command {
	var opts terminal.StartOptions
	var attach bool
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var conn *terminal.Connection
			if err := tui.ShowSpinner("Starting terminal...", func() error {
				conn, err = s.manager.StartNew(cmd.Context(), opts)
				return err
			}); err != nil {
				return err
			}
			if attach {
				return attachTo(cmd, s, conn)
			}
			if tui.HasTTY {
				tui.ShowSuccess(cmd.OutOrStdout(), "Started terminal %s", tui.Name(conn.Name()))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), conn.Name())
			}
			conn.Dispose()
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "Terminal name (chosen by the server when empty)")
	cmd.Flags().StringVar(&opts.Cwd, "cwd", "", "Working directory of the terminal")
	cmd.Flags().BoolVarP(&attach, "attach", "a", false, "Attach to the terminal once started")
	return cmd
}

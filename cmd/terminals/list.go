package main

import (
	"fmt"

	"github.com/agentuity/go-terminals/tui"
	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the running terminals",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := refresh(cmd.Context(), s); err != nil {
				return err
			}
			names := runningNames(s.manager)
			out := cmd.OutOrStdout()
			if !tui.HasTTY {
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}
			if len(names) == 0 {
				fmt.Fprintln(out, tui.Muted("No terminals running"))
				return nil
			}
			rows := make([][]string, len(names))
			for i, name := range names {
				rows[i] = []string{tui.Name(name)}
			}
			tui.Table(out, []string{"NAME"}, rows)
			return nil
		},
	}
}

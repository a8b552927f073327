package main

import (
	"fmt"
	"io"
	"time"

	"github.com/agentuity/go-terminals/terminal"
	"github.com/agentuity/go-terminals/tui"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the running terminals whenever they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []terminal.ManagerOption
			if interval > 0 {
				opts = append(opts, terminal.WithPollInterval(interval))
			}
			s, err := openSession(cmd, opts...)
			if err != nil {
				return err
			}
			defer s.Close()
			out := cmd.OutOrStdout()

			printRunning(out, runningNames(s.manager))
			changed := s.manager.RunningChanged().Subscribe(func(models []terminal.Model) {
				names := make([]string, len(models))
				for i, model := range models {
					names[i] = model.Name
				}
				printRunning(out, names)
			})
			defer changed.Close()
			failed := s.manager.ConnectionFailure().Subscribe(func(err error) {
				tui.ShowError(out, "terminal service unavailable: %v", err)
			})
			defer failed.Close()

			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (defaults to poll_interval from the settings)")
	return cmd
}

func printRunning(out io.Writer, names []string) {
	if !tui.HasTTY {
		fmt.Fprintf(out, "%s running: %v\n", time.Now().Format(time.RFC3339), names)
		return
	}
	tui.ClearScreen()
	fmt.Fprintln(out, tui.Title("Running terminals"), tui.Muted(time.Now().Format(time.Kitchen)))
	fmt.Fprintln(out, tui.Names(names))
}

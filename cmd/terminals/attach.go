package main

import (
	"io"
	"os"

	"github.com/agentuity/go-terminals/terminal"
	"github.com/agentuity/go-terminals/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// detachKey is ctrl-].
const detachKey = 0x1d

func newAttachCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "attach [name]",
		Short: "Attach this terminal to a running terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				if err := refresh(cmd.Context(), s); err != nil {
					return err
				}
				running := runningNames(s.manager)
				if len(running) == 0 {
					return errors.New("no terminals running")
				}
				if name, err = tui.Select("Terminal to attach to", "", running); err != nil {
					return errors.Wrap(err, "pass a terminal name")
				}
			}
			conn, err := s.manager.ConnectTo(terminal.ConnectOptions{Model: terminal.Model{Name: name}})
			if err != nil {
				return err
			}
			return attachTo(cmd, s, conn)
		},
	}
}

// attachTo proxies stdin and stdout through conn until the terminal goes
// away, the detach key is pressed or the command is interrupted.
func attachTo(cmd *cobra.Command, s *session, conn *terminal.Connection) error {
	defer conn.Dispose()
	ctx := cmd.Context()
	stdout := cmd.OutOrStdout()

	done := make(chan struct{})
	conn.Disposed().Subscribe(func(*terminal.Connection) { close(done) })
	conn.Messages().Subscribe(func(msg terminal.Message) {
		if msg.Type == terminal.MessageStdout {
			io.WriteString(stdout, msg.Text())
		}
	})
	conn.StatusChanged().Subscribe(func(status terminal.ConnectionStatus) {
		s.logger.Debug("terminal %s is %s", conn.Name(), status)
	})

	if err := conn.Connect(ctx); err != nil {
		return err
	}
	tui.ShowBanner(stdout, "Attached to "+conn.Name(), "Press ctrl-] to detach")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return errors.Wrap(err, "switching to raw mode")
		}
		defer term.Restore(fd, state)
		if cols, rows, err := term.GetSize(fd); err == nil {
			if err := conn.Send(terminal.SetSize(rows, cols)); err != nil {
				return err
			}
		}
	}

	detached := make(chan struct{})
	go func() {
		defer close(detached)
		buf := make([]byte, 1024)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				input := buf[:n]
				for i, b := range input {
					if b == detachKey {
						if i > 0 {
							conn.Send(terminal.Stdin(string(input[:i])))
						}
						return
					}
				}
				if err := conn.Send(terminal.Stdin(string(input))); err != nil {
					s.logger.Debug("send failed: %v", err)
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-detached:
	case <-ctx.Done():
	}
	return nil
}

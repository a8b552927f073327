package main

import (
	"context"

	"github.com/agentuity/go-terminals/env"
	"github.com/agentuity/go-terminals/logger"
	"github.com/agentuity/go-terminals/restapi"
	"github.com/agentuity/go-terminals/telemetry"
	"github.com/agentuity/go-terminals/terminal"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "terminals",
		Short:         "Manage the terminal sessions running on a server",
		SilenceUsage:  true,
		SilenceErrors: false,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	rootCmd.PersistentFlags().String("config", "", "Settings file (defaults to $"+env.EnvConfig+")")
	rootCmd.PersistentFlags().String("url", "", "Server base URL")
	rootCmd.PersistentFlags().String("token", "", "Server token")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format: console or json")
	rootCmd.PersistentFlags().String("otlp-url", "", "OTLP server receiving request traces (defaults to $"+env.EnvOTLPURL+")")
	rootCmd.PersistentFlags().String("otlp-shared-secret", "", "Shared secret for the OTLP server (defaults to $"+env.EnvOTLPSharedSecret+")")

	rootCmd.AddCommand(
		newListCommand(),
		newNewCommand(),
		newShutdownCommand(),
		newWatchCommand(),
		newAttachCommand(),
		newConfigCommand(),
	)
	return rootCmd
}

// session is what every subcommand works with.
type session struct {
	logger   logger.Logger
	manager  *terminal.Manager
	shutdown telemetry.ShutdownFunc
}

func (s *session) Close() {
	s.manager.Dispose()
	s.shutdown()
}

// openSession builds the transport and manager from the command flags and
// waits for the first listing.
func openSession(cmd *cobra.Command, opts ...terminal.ManagerOption) (*session, error) {
	log := env.NewLogger(cmd)
	settings, err := env.LoadSettings(cmd)
	if err != nil {
		return nil, err
	}
	tracerProvider, shutdown, err := env.NewTelemetry(cmd.Context(), cmd, "terminals", log)
	if err != nil {
		return nil, err
	}
	client := restapi.New(settings, log, restapi.WithTracerProvider(tracerProvider))
	opts = append([]terminal.ManagerOption{
		terminal.WithSettings(settings),
		terminal.WithLogger(log),
		terminal.WithStandby(terminal.StandbyNever),
	}, opts...)
	manager := terminal.NewManager(cmd.Context(), client, opts...)
	if err := manager.WaitReady(cmd.Context()); err != nil {
		manager.Dispose()
		shutdown()
		if errors.Is(err, terminal.ErrCapabilityUnavailable) {
			return nil, errors.Wrapf(err, "server %s", settings.BaseURL)
		}
		return nil, err
	}
	return &session{logger: log, manager: manager, shutdown: shutdown}, nil
}

func runningNames(m *terminal.Manager) []string {
	var names []string
	for model := range m.Running() {
		names = append(names, model.Name)
	}
	return names
}

// refresh makes sure the cache reflects the server before reading it; the
// first listing may have failed.
func refresh(ctx context.Context, s *session) error {
	if err := s.manager.RefreshRunning(ctx); err != nil {
		return errors.Wrap(err, "listing terminals")
	}
	return nil
}

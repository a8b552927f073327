package main

import (
	"github.com/agentuity/go-terminals/env"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := env.LoadSettings(cmd)
			if err != nil {
				return err
			}
			if !reveal {
				settings = settings.Redacted()
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(settings); err != nil {
				return errors.Wrap(err, "encoding settings")
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the token and headers unmasked")
	return cmd
}

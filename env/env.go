// Package env resolves command line flags, environment variables and the
// settings file into what the terminals CLI needs.
package env

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/agentuity/go-terminals/config"
	"github.com/agentuity/go-terminals/logger"
	"github.com/agentuity/go-terminals/telemetry"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// EnvConfig names the settings file when --config is not given.
	EnvConfig = "TERMINALS_CONFIG"

	EnvOTLPURL          = "TERMINALS_OTLP_URL"
	EnvOTLPSharedSecret = "TERMINALS_OTLP_SHARED_SECRET"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, _ := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, "info"))
	return level
}

// NewLogger returns a console logger, or a JSON logger when --log-format is json. The level comes from the
// log-level flag, then the TERMINALS_LOG_LEVEL environment value, falling back to info.
func NewLogger(cmd *cobra.Command) logger.Logger {
	log.SetFlags(0)
	level := LogLevel(cmd)
	if format, _ := cmd.Flags().GetString("log-format"); strings.EqualFold(format, "json") {
		return logger.NewJSONLogger(level)
	}
	return logger.NewConsoleLogger(level)
}

// LoadSettings reads the settings file named by --config or TERMINALS_CONFIG, overlays the TERMINALS_*
// environment and finally the --url and --token flags.
func LoadSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings := config.Default()
	if filename := FlagOrEnv(cmd, "config", EnvConfig, ""); filename != "" {
		s, err := config.Load(filename)
		if err != nil {
			return nil, err
		}
		settings = s
	}
	if err := settings.FromEnv(); err != nil {
		return nil, err
	}
	if url, _ := cmd.Flags().GetString("url"); url != "" {
		settings.BaseURL = strings.TrimRight(url, "/")
	}
	if token, _ := cmd.Flags().GetString("token"); token != "" {
		settings.Token = token
	}
	if err := settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	return settings, nil
}

// NewTelemetry returns the tracer provider for transport spans and its shutdown function. The cobra flags it
// expects are:
//
// --otlp-url (string): the url of the otlp server; telemetry is disabled when empty
//
// --otlp-shared-secret (string): the shared secret the bearer token is derived from
func NewTelemetry(ctx context.Context, cmd *cobra.Command, serviceName string, log logger.Logger) (trace.TracerProvider, telemetry.ShutdownFunc, error) {
	otlpURL := FlagOrEnv(cmd, "otlp-url", EnvOTLPURL, "")
	if otlpURL == "" {
		return otel.GetTracerProvider(), func() {}, nil
	}
	var token string
	if secret := FlagOrEnv(cmd, "otlp-shared-secret", EnvOTLPSharedSecret, ""); secret != "" {
		tok, err := telemetry.GenerateOTLPBearerToken(secret, serviceName)
		if err != nil {
			return nil, nil, err
		}
		token = tok
	}
	provider, shutdown, err := telemetry.New(ctx, otlpURL, token, serviceName, log)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating telemetry")
	}
	return provider, shutdown, nil
}

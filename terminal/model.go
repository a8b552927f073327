package terminal

import (
	"context"

	"github.com/agentuity/go-terminals/config"
	"github.com/agentuity/go-terminals/restapi"
)

// Model is the server-reported descriptor of one terminal session.
type Model = restapi.Model

// StartOptions are passed to the server when creating a terminal.
type StartOptions = restapi.StartOptions

// Transport issues the terminal REST calls. *restapi.Client implements it.
type Transport interface {
	IsAvailable() bool
	ListRunning(ctx context.Context, settings *config.Settings) ([]Model, error)
	StartNew(ctx context.Context, opts StartOptions, settings *config.Settings) (Model, error)
	Shutdown(ctx context.Context, name string, settings *config.Settings) error
}

var _ Transport = (*restapi.Client)(nil)

// State is the readiness state of a Manager.
type State int

const (
	StateInitializing State = iota
	StateReady
	StateUnavailable
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

func modelsFromNames(names []string) []Model {
	models := make([]Model, len(names))
	for i, name := range names {
		models[i] = Model{Name: name}
	}
	return models
}

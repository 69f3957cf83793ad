package frontend

import (
	"context"

	"github.com/nerrad567/gray-logic-arbiter/internal/catalog"
	"github.com/nerrad567/gray-logic-arbiter/internal/command"
)

// Acceptor carries out commands for one endpoint.
//
// Issue must return promptly. The returned future may be completed before
// Issue returns or later from any goroutine. Issue must never return nil.
type Acceptor interface {
	Issue(commandName string, req command.Request) *command.Future
}

// AcceptorFunc adapts a function to Acceptor.
type AcceptorFunc func(commandName string, req command.Request) *command.Future

// Issue calls f.
func (f AcceptorFunc) Issue(commandName string, req command.Request) *command.Future {
	return f(commandName, req)
}

// Status is a handler's own view of its connectivity.
type Status string

const (
	StatusUp    Status = "UP"
	StatusDown  Status = "DOWN"
	StatusError Status = "ERROR"
)

// StatusUpdater receives status reports from a handler.
type StatusUpdater interface {
	UpdateStatus(status Status)
}

// Protocol creates and tears down handlers for endpoints.
//
// The Manager calls Add, Remove and Shutdown from a single goroutine.
type Protocol interface {
	// Name is the protocol name endpoints refer to in the catalog.
	Name() string

	// Add starts a handler for endpoint using cfg, which came from the
	// protocol's Configurer. The handler reports status through updater.
	Add(endpoint catalog.Endpoint, cfg any, updater StatusUpdater) (Acceptor, error)

	// Remove stops the handler for endpointID and releases its resources.
	Remove(endpointID string)

	// Shutdown stops every handler.
	Shutdown()
}

// Configurer turns an endpoint's catalog key/values into protocol config.
type Configurer interface {
	// Evaluate returns the config for endpoint. ok is false when the
	// protocol should not serve the endpoint.
	Evaluate(endpoint catalog.Endpoint, keyValues map[string]string) (cfg any, ok bool, err error)

	// Equivalent reports whether a running handler configured with previous
	// can keep running under latest.
	Equivalent(latest, previous any) bool
}

// EndpointSource lists endpoints and their key/values. *catalog.Registry
// satisfies it.
type EndpointSource interface {
	ListEndpoints(ctx context.Context) ([]catalog.Endpoint, error)
	EndpointConfig(ctx context.Context, endpointID string) (map[string]string, error)
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

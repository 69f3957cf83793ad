package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
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

// Registry caches the catalog for hot-path lookups. The dispatcher resolves
// every request through it, so reads never touch the database.
//
// All public methods are thread-safe.
type Registry struct {
	repo Repository

	mu        sync.RWMutex
	endpoints map[string]Endpoint
	commands  map[string]Command

	logger Logger
}

// NewRegistry creates a catalog registry over repo. Call RefreshCache before use.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:      repo,
		endpoints: make(map[string]Endpoint),
		commands:  make(map[string]Command),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads endpoints and commands from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	endpoints, err := r.repo.ListEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("loading endpoints: %w", err)
	}
	commands, err := r.repo.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("loading commands: %w", err)
	}

	epMap := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		epMap[ep.ID] = ep
	}
	cmdMap := make(map[string]Command, len(commands))
	for _, c := range commands {
		cmdMap[c.ID] = c
	}

	r.mu.Lock()
	r.endpoints = epMap
	r.commands = cmdMap
	r.mu.Unlock()

	r.logger.Info("catalog cache refreshed", "endpoints", len(epMap), "commands", len(cmdMap))
	return nil
}

// Import writes seed to the repository and refreshes the cache.
func (r *Registry) Import(ctx context.Context, seed *Seed) error {
	if err := seed.Validate(); err != nil {
		return err
	}
	if err := r.repo.Import(ctx, seed); err != nil {
		return err
	}
	return r.RefreshCache(ctx)
}

// CommandExists reports whether commandID is in the catalog.
func (r *Registry) CommandExists(commandID string) bool {
	r.mu.RLock()
	_, ok := r.commands[commandID]
	r.mu.RUnlock()
	return ok
}

// ResolveCommand returns a command and the endpoint that owns it.
func (r *Registry) ResolveCommand(commandID string) (Command, Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.commands[commandID]
	if !ok {
		return Command{}, Endpoint{}, fmt.Errorf("%w: %s", ErrCommandNotFound, commandID)
	}
	ep, ok := r.endpoints[c.EndpointID]
	if !ok {
		return Command{}, Endpoint{}, fmt.Errorf("%w: %s (command %s)", ErrEndpointNotFound, c.EndpointID, commandID)
	}
	return c, ep, nil
}

// GetEndpoint returns a cached endpoint.
func (r *Registry) GetEndpoint(id string) (Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[id]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrEndpointNotFound, id)
	}
	return ep, nil
}

// ListEndpoints returns cached endpoints ordered by ID.
func (r *Registry) ListEndpoints(_ context.Context) ([]Endpoint, error) {
	r.mu.RLock()
	out := make([]Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListCommands returns cached commands ordered by ID. A non-empty endpointID
// limits the result to that endpoint.
func (r *Registry) ListCommands(endpointID string) []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		if endpointID == "" || c.EndpointID == endpointID {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EndpointConfig reads an endpoint's key/value rows from the repository.
// These are read rarely, when a front-end handler is (re)configured, so they
// are not cached.
func (r *Registry) EndpointConfig(ctx context.Context, endpointID string) (map[string]string, error) {
	return r.repo.EndpointConfig(ctx, endpointID)
}

// Stats summarises the cache.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Endpoints:  len(r.endpoints),
		Commands:   len(r.commands),
		ByProtocol: make(map[string]int),
	}
	for _, ep := range r.endpoints {
		s.ByProtocol[ep.Protocol]++
	}
	return s
}

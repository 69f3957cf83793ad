// Package loopback is an in-process front-end protocol. Its handlers
// complete every command locally, optionally after a fixed latency, and
// count how many commands they have received.
//
// It is useful for commissioning, for soak-testing arbitration without
// real devices, and as the reference Protocol implementation.
//
// Endpoint keys (under the protocolConfig prefix):
//
//	protocolConfig.latency_ms   delay before completing, default 0
//	protocolConfig.fail         "true" completes every command with FAILURE
package loopback

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/catalog"
	"github.com/nerrad567/gray-logic-arbiter/internal/command"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend"
)

// Name is the catalog protocol name served by this package.
const Name = "loopback"

// Config keys, relative to frontend.DefaultConfigKey.
const (
	KeyLatencyMS = "latency_ms"
	KeyFail      = "fail"
)

// Config is the evaluated configuration of one loopback handler.
type Config struct {
	Latency time.Duration
	Fail    bool
}

// Configurer evaluates loopback endpoint keys.
type Configurer struct{}

// Evaluate implements frontend.Configurer. Every endpoint is served.
func (Configurer) Evaluate(_ catalog.Endpoint, kv map[string]string) (any, bool, error) {
	var cfg Config

	if v, ok := kv[key(KeyLatencyMS)]; ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return nil, false, fmt.Errorf("loopback: invalid %s %q", KeyLatencyMS, v)
		}
		cfg.Latency = time.Duration(ms) * time.Millisecond
	}
	if v, ok := kv[key(KeyFail)]; ok && v != "" {
		fail, err := strconv.ParseBool(v)
		if err != nil {
			return nil, false, fmt.Errorf("loopback: invalid %s %q", KeyFail, v)
		}
		cfg.Fail = fail
	}

	return cfg, true, nil
}

// Equivalent implements frontend.Configurer.
func (Configurer) Equivalent(latest, previous any) bool {
	a, ok1 := latest.(Config)
	b, ok2 := previous.(Config)
	return ok1 && ok2 && a == b
}

func key(name string) string {
	return frontend.DefaultConfigKey + "." + name
}

// Handler is the acceptor for one loopback endpoint.
type Handler struct {
	endpointID  string
	cfg         Config
	invocations atomic.Uint64
	stopped     atomic.Bool
}

// Issue implements frontend.Acceptor.
func (h *Handler) Issue(commandName string, req command.Request) *command.Future {
	h.invocations.Add(1)

	if h.stopped.Load() {
		return command.Completed(command.Failure("endpoint %s handler stopped", h.endpointID))
	}

	result := command.Success()
	if h.cfg.Fail {
		result = command.Failure("%s rejected by loopback endpoint %s", commandName, h.endpointID)
	}
	if h.cfg.Latency <= 0 {
		return command.Completed(result)
	}

	f := command.NewFuture()
	time.AfterFunc(h.cfg.Latency, func() { f.Complete(result) })
	return f
}

// Invocations returns how many commands this handler has received.
func (h *Handler) Invocations() uint64 {
	return h.invocations.Load()
}

// Protocol creates loopback handlers.
type Protocol struct {
	mu       sync.Mutex
	handlers map[string]*Handler
}

// New returns an empty loopback protocol.
func New() *Protocol {
	return &Protocol{handlers: make(map[string]*Handler)}
}

// Name implements frontend.Protocol.
func (p *Protocol) Name() string { return Name }

// Add implements frontend.Protocol. The handler reports UP immediately.
func (p *Protocol) Add(endpoint catalog.Endpoint, cfg any, updater frontend.StatusUpdater) (frontend.Acceptor, error) {
	c, ok := cfg.(Config)
	if !ok {
		return nil, fmt.Errorf("loopback: unexpected config type %T", cfg)
	}

	h := &Handler{endpointID: endpoint.ID, cfg: c}

	p.mu.Lock()
	if old, exists := p.handlers[endpoint.ID]; exists {
		old.stopped.Store(true)
	}
	p.handlers[endpoint.ID] = h
	p.mu.Unlock()

	updater.UpdateStatus(frontend.StatusUp)
	return h, nil
}

// Remove implements frontend.Protocol.
func (p *Protocol) Remove(endpointID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.handlers[endpointID]; ok {
		h.stopped.Store(true)
		delete(p.handlers, endpointID)
	}
}

// Shutdown implements frontend.Protocol.
func (p *Protocol) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, h := range p.handlers {
		h.stopped.Store(true)
		delete(p.handlers, id)
	}
}

// Handler returns the live handler for endpointID.
func (p *Protocol) Handler(endpointID string) (*Handler, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handlers[endpointID]
	return h, ok
}

package frontend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-arbiter/internal/catalog"
)

// DefaultConfigKey is the key prefix handed to configurers when no config
// keys are set.
const DefaultConfigKey = "protocolConfig"

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Protocols limits which registered protocols are served. Empty serves
	// every registered protocol.
	Protocols []string

	// ConfigKeys selects which endpoint key/values reach a configurer. A key
	// matches if it equals an entry or starts with the entry followed by a dot.
	ConfigKeys []string

	// SyncInterval is how often the catalog is re-read. Zero disables
	// periodic sync; Sync can still be called.
	SyncInterval time.Duration

	// OnStatus is called whenever a handler reports a status change.
	OnStatus func(endpointID string, status Status)
}

// SyncReport counts what one Sync pass changed.
type SyncReport struct {
	Added     int `json:"added"`
	Reloaded  int `json:"reloaded"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

type registeredProtocol struct {
	protocol   Protocol
	configurer Configurer
}

type request struct {
	fn     func(ctx context.Context) error
	result chan error
}

// Manager assigns endpoints to protocol handlers and keeps the Registry in
// step with the catalog.
//
// Every handler lifecycle call runs on the manager's worker goroutine, so
// protocols see add, remove and shutdown strictly one at a time while the
// dispatcher keeps reading the Registry concurrently.
type Manager struct {
	registry *Registry
	source   EndpointSource
	opts     ManagerOptions
	logger   Logger

	protocols map[string]registeredProtocol

	mu       sync.Mutex
	started  bool
	requests chan request
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager that publishes handlers into registry.
func NewManager(registry *Registry, source EndpointSource, opts ManagerOptions) *Manager {
	if len(opts.ConfigKeys) == 0 {
		opts.ConfigKeys = []string{DefaultConfigKey}
	}
	return &Manager{
		registry:  registry,
		source:    source,
		opts:      opts,
		logger:    noopLogger{},
		protocols: make(map[string]registeredProtocol),
		requests:  make(chan request),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Register adds a protocol. It must be called before Start.
func (m *Manager) Register(p Protocol, c Configurer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	if p == nil || c == nil {
		return errors.New("frontend: protocol and configurer are required")
	}
	m.protocols[p.Name()] = registeredProtocol{protocol: p, configurer: c}
	return nil
}

// Protocols returns the names of the protocols this manager serves.
func (m *Manager) Protocols() []string {
	names := make([]string, 0, len(m.protocols))
	for name := range m.protocols {
		if m.serves(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Start launches the worker and runs the first Sync. The worker stops when
// ctx is cancelled or Stop is called, shutting down every handler.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	for _, name := range m.opts.Protocols {
		if _, ok := m.protocols[name]; !ok {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownProtocol, name)
		}
	}
	m.started = true
	m.mu.Unlock()

	go m.run(ctx)

	report, err := m.Sync(ctx)
	if err != nil {
		m.stopOnce.Do(func() { close(m.quit) })
		<-m.done
		return fmt.Errorf("initial sync: %w", err)
	}
	m.logger.Info("frontend manager started",
		"protocols", m.Protocols(),
		"handlers", m.registry.Len(),
		"added", report.Added,
		"failed", report.Failed,
	)
	return nil
}

// Stop shuts down every handler and waits for the worker to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return
	}
	m.stopOnce.Do(func() { close(m.quit) })
	<-m.done
}

// Sync reconciles handlers against the catalog on the worker goroutine and
// waits for it to finish.
func (m *Manager) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	err := m.submit(ctx, func(wctx context.Context) error {
		var err error
		report, err = m.sync(wctx)
		return err
	})
	return report, err
}

// Reload re-reads the config for endpointID and replaces its handler. The
// endpoint is dropped if it is no longer served. If the catalog cannot be
// read or the config does not evaluate, the running handler is kept.
func (m *Manager) Reload(ctx context.Context, endpointID string) error {
	return m.submit(ctx, func(wctx context.Context) error {
		endpoints, err := m.source.ListEndpoints(wctx)
		if err != nil {
			return fmt.Errorf("listing endpoints: %w", err)
		}

		var (
			d      desired
			served bool
		)
		for _, ep := range endpoints {
			if ep.ID != endpointID {
				continue
			}
			d, served, err = m.evaluate(wctx, ep)
			if err != nil {
				m.logger.Warn("evaluating endpoint config failed, keeping handler", "endpoint_id", ep.ID, "error", err)
				return err
			}
			break
		}

		if inst, ok := m.registry.Lookup(endpointID); ok {
			m.remove(inst)
		}
		if !served {
			return nil
		}
		return m.add(d)
	})
}

func (m *Manager) submit(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return ErrManagerStopped
	}

	req := request{fn: fn, result: make(chan error, 1)}
	select {
	case m.requests <- req:
	case <-m.done:
		return ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer m.shutdown()

	var tick <-chan time.Time
	if m.opts.SyncInterval > 0 {
		ticker := time.NewTicker(m.opts.SyncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.quit:
			return
		case req := <-m.requests:
			req.result <- req.fn(ctx)
		case <-tick:
			report, err := m.sync(ctx)
			if err != nil {
				m.logger.Warn("periodic frontend sync failed", "error", err)
				continue
			}
			if report.Added+report.Removed+report.Reloaded+report.Failed > 0 {
				m.logger.Info("frontend sync applied changes",
					"added", report.Added,
					"reloaded", report.Reloaded,
					"removed", report.Removed,
					"failed", report.Failed,
				)
			}
		}
	}
}

// desired is an endpoint the catalog says should have a handler.
type desired struct {
	endpoint catalog.Endpoint
	protocol registeredProtocol
	cfg      any
}

func (m *Manager) sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	endpoints, err := m.source.ListEndpoints(ctx)
	if err != nil {
		return report, fmt.Errorf("listing endpoints: %w", err)
	}

	want := make(map[string]desired)
	keep := make(map[string]bool) // evaluation failed: leave whatever runs alone
	for _, ep := range endpoints {
		d, ok, err := m.evaluate(ctx, ep)
		if err != nil {
			m.logger.Warn("evaluating endpoint config failed", "endpoint_id", ep.ID, "protocol", ep.Protocol, "error", err)
			keep[ep.ID] = true
			report.Failed++
			continue
		}
		if ok {
			want[ep.ID] = d
		}
	}

	for _, inst := range m.registry.List() {
		if _, ok := want[inst.EndpointID]; !ok && !keep[inst.EndpointID] {
			m.remove(inst)
			report.Removed++
		}
	}

	for id, d := range want {
		if cur, ok := m.registry.Lookup(id); ok {
			if cur.Protocol == d.protocol.protocol.Name() && d.protocol.configurer.Equivalent(d.cfg, cur.Config) {
				report.Unchanged++
				continue
			}
			m.logger.Info("endpoint config changed, reloading handler", "endpoint_id", id)
			m.remove(cur)
			if err := m.add(d); err != nil {
				report.Failed++
				continue
			}
			report.Reloaded++
			continue
		}
		if err := m.add(d); err != nil {
			report.Failed++
			continue
		}
		report.Added++
	}

	return report, nil
}

// evaluate decides whether ep should have a handler and with what config.
func (m *Manager) evaluate(ctx context.Context, ep catalog.Endpoint) (desired, bool, error) {
	if !ep.Enabled || !m.serves(ep.Protocol) {
		return desired{}, false, nil
	}
	rp, ok := m.protocols[ep.Protocol]
	if !ok {
		return desired{}, false, nil
	}

	kv, err := m.source.EndpointConfig(ctx, ep.ID)
	if err != nil {
		return desired{}, false, fmt.Errorf("loading config: %w", err)
	}
	cfg, ok, err := rp.configurer.Evaluate(ep, m.filterKeys(kv))
	if err != nil || !ok {
		return desired{}, false, err
	}
	return desired{endpoint: ep, protocol: rp, cfg: cfg}, true, nil
}

func (m *Manager) add(d desired) error {
	name := d.protocol.protocol.Name()
	inst := NewInstance(d.endpoint.ID, name, d.cfg, m.opts.OnStatus)

	acceptor, err := d.protocol.protocol.Add(d.endpoint, d.cfg, inst)
	if err != nil {
		m.logger.Error("adding endpoint handler failed", "endpoint_id", d.endpoint.ID, "protocol", name, "error", err)
		return err
	}
	inst.Acceptor = acceptor

	if replaced := m.registry.Add(inst); replaced != nil {
		m.logger.Warn("endpoint handler replaced", "endpoint_id", d.endpoint.ID, "previous_protocol", replaced.Protocol)
		if rp, ok := m.protocols[replaced.Protocol]; ok && replaced.Protocol != name {
			rp.protocol.Remove(replaced.EndpointID)
		}
	}
	m.logger.Info("endpoint handler added", "endpoint_id", d.endpoint.ID, "protocol", name)
	return nil
}

func (m *Manager) remove(inst *Instance) {
	m.registry.Remove(inst.EndpointID)
	if rp, ok := m.protocols[inst.Protocol]; ok {
		rp.protocol.Remove(inst.EndpointID)
	}
	m.logger.Info("endpoint handler removed", "endpoint_id", inst.EndpointID, "protocol", inst.Protocol)
}

func (m *Manager) shutdown() {
	removed := m.registry.Shutdown()
	for _, rp := range m.protocols {
		rp.protocol.Shutdown()
	}
	m.logger.Info("frontend manager stopped", "handlers", len(removed))
}

func (m *Manager) serves(protocol string) bool {
	return len(m.opts.Protocols) == 0 || slices.Contains(m.opts.Protocols, protocol)
}

func (m *Manager) filterKeys(kv map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range kv {
		for _, prefix := range m.opts.ConfigKeys {
			if k == prefix || strings.HasPrefix(k, prefix+".") {
				out[k] = v
				break
			}
		}
	}
	return out
}

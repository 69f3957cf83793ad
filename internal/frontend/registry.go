package frontend

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Instance is the live handler registered for one endpoint.
type Instance struct {
	EndpointID string
	Protocol   string
	Acceptor   Acceptor
	Config     any
	AddedAt    time.Time

	status   atomic.Value // Status
	onStatus func(endpointID string, status Status)
}

// NewInstance returns an instance in the DOWN state. onStatus, if set, is
// called on every status report.
func NewInstance(endpointID, protocol string, cfg any, onStatus func(string, Status)) *Instance {
	inst := &Instance{
		EndpointID: endpointID,
		Protocol:   protocol,
		Config:     cfg,
		AddedAt:    time.Now(),
		onStatus:   onStatus,
	}
	inst.status.Store(StatusDown)
	return inst
}

// Status returns the last status the handler reported.
func (i *Instance) Status() Status {
	s, _ := i.status.Load().(Status)
	if s == "" {
		return StatusDown
	}
	return s
}

// UpdateStatus implements StatusUpdater.
func (i *Instance) UpdateStatus(status Status) {
	prev, _ := i.status.Swap(status).(Status)
	if prev != status && i.onStatus != nil {
		i.onStatus(i.EndpointID, status)
	}
}

type snapshot map[string]*Instance

// Registry maps endpoint IDs to their current handler.
//
// Lookups load an immutable snapshot without locking. Writers copy the
// snapshot, modify the copy and publish it, so a lookup racing a write sees
// either the old or the new mapping, never a partial one.
type Registry struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := snapshot{}
	r.current.Store(&empty)
	return r
}

// Add registers inst for its endpoint, replacing and returning any previous
// handler. The new mapping is visible to Lookup as soon as Add returns.
func (r *Registry) Add(inst *Instance) (replaced *Instance) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := *r.current.Load()
	next := make(snapshot, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	replaced = old[inst.EndpointID]
	next[inst.EndpointID] = inst
	r.current.Store(&next)
	return replaced
}

// Remove unregisters the handler for endpointID. The handler itself is not
// notified.
func (r *Registry) Remove(endpointID string) (*Instance, bool) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := *r.current.Load()
	inst, ok := old[endpointID]
	if !ok {
		return nil, false
	}
	next := make(snapshot, len(old))
	for k, v := range old {
		if k != endpointID {
			next[k] = v
		}
	}
	r.current.Store(&next)
	return inst, true
}

// Shutdown unregisters every handler and returns them.
func (r *Registry) Shutdown() []*Instance {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := *r.current.Load()
	empty := snapshot{}
	r.current.Store(&empty)
	return sortedInstances(old)
}

// Lookup returns the handler registered for endpointID.
func (r *Registry) Lookup(endpointID string) (*Instance, bool) {
	inst, ok := (*r.current.Load())[endpointID]
	return inst, ok
}

// List returns the registered handlers ordered by endpoint ID.
func (r *Registry) List() []*Instance {
	return sortedInstances(*r.current.Load())
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	return len(*r.current.Load())
}

func sortedInstances(s snapshot) []*Instance {
	out := make([]*Instance, 0, len(s))
	for _, inst := range s {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndpointID < out[j].EndpointID })
	return out
}

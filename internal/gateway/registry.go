package gateway

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// ServiceRegistry owns every ServiceHost the Server dispatches to, keyed
// by normalized path. A path may be added and removed any number of
// times across a Server's lifetime; removal stops that path's sessions
// but leaves the rest of the registry untouched.
type ServiceRegistry struct {
	mu    sync.RWMutex
	hosts map[string]*ServiceHost
}

// NewServiceRegistry constructs an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{hosts: make(map[string]*ServiceHost)}
}

// Add normalizes path and registers factory to serve it with the given
// per-session wait time. A path already bound to a host is rejected: the
// existing host and its sessions are left running untouched.
func (r *ServiceRegistry) Add(path string, factory Factory, waitTime time.Duration) (*ServiceHost, error) {
	normalized, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hosts[normalized]; exists {
		err := fmt.Errorf("gateway: registry: path %q is already registered", normalized)
		log.Print(err)
		return nil, err
	}

	host := NewServiceHost(normalized, factory, waitTime)
	r.hosts[normalized] = host
	return host, nil
}

// Remove stops the host bound to path (closing all of its sessions with
// code 1001, "service removed") and unregisters it. A path that was
// never registered is a no-op.
func (r *ServiceRegistry) Remove(path string) {
	normalized, err := normalizePath(path)
	if err != nil {
		return
	}

	r.mu.Lock()
	host, ok := r.hosts[normalized]
	delete(r.hosts, normalized)
	r.mu.Unlock()

	if ok {
		host.Stop(1001, "service removed")
	}
}

// TryGet looks up the host bound to a normalized path.
func (r *ServiceRegistry) TryGet(path string) (*ServiceHost, bool) {
	normalized, err := normalizePath(path)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hosts[normalized]
	return h, ok
}

func (r *ServiceRegistry) snapshot() []*ServiceHost {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ServiceHost, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	return out
}

// KeepClean starts the liveness sweeper on every currently-registered
// host. Hosts added afterward are unaffected; call it again after
// adding more hosts if they also need sweeping.
func (r *ServiceRegistry) KeepClean() {
	for _, h := range r.snapshot() {
		h.manager.KeepClean()
	}
}

// Broadcast sends data to every session on every registered path.
func (r *ServiceRegistry) Broadcast(data []byte, text bool) {
	for _, h := range r.snapshot() {
		h.manager.Broadcast(data, text)
	}
}

// BroadcastTo sends data to every session on one path only. It is a
// no-op if path is not registered.
func (r *ServiceRegistry) BroadcastTo(path string, data []byte, text bool) {
	if h, ok := r.TryGet(path); ok {
		h.manager.Broadcast(data, text)
	}
}

// SendTo sends data to exactly one session, identified by path and
// session id.
func (r *ServiceRegistry) SendTo(path, sessionID string, data []byte, text bool) bool {
	h, ok := r.TryGet(path)
	if !ok {
		return false
	}
	return h.manager.SendTo(sessionID, data, text)
}

// PingTo pings exactly one session, identified by path and session id.
func (r *ServiceRegistry) PingTo(path, sessionID string, message []byte) bool {
	h, ok := r.TryGet(path)
	if !ok {
		return false
	}
	return h.manager.PingTo(sessionID, message)
}

// Broadping pings every session on every registered path, returning a
// nested mapping path -> session id -> whether the pong arrived within
// WaitTime.
func (r *ServiceRegistry) Broadping(message []byte) map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	for _, h := range r.snapshot() {
		out[h.path] = h.manager.Broadping(message)
	}
	return out
}

// StopAll closes every session on every registered path with the given
// code and reason, and unregisters every path.
func (r *ServiceRegistry) StopAll(code uint16, reason string) {
	r.mu.Lock()
	hosts := r.hosts
	r.hosts = make(map[string]*ServiceHost)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range hosts {
		wg.Add(1)
		go func(h *ServiceHost) {
			defer wg.Done()
			h.Stop(code, reason)
		}(h)
	}
	wg.Wait()
}

package router

import "sync"

// SupervisorRegistry tracks subsystem supervisors by name so operational
// surfaces (/status, /statusz) can snapshot them. Shared across handler
// goroutines and config reloads, hence the lock.
type SupervisorRegistry struct {
	mu sync.RWMutex
	m  map[string]*Supervisor
}

func NewSupervisorRegistry() *SupervisorRegistry {
	return &SupervisorRegistry{m: map[string]*Supervisor{}}
}

// Set registers or replaces a supervisor. A nil sup deletes the entry.
func (r *SupervisorRegistry) Set(name string, sup *Supervisor) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sup == nil {
		delete(r.m, name)
		return
	}
	r.m[name] = sup
}

func (r *SupervisorRegistry) Delete(name string) {
	r.Set(name, nil)
}

// Snapshot returns a copy of the current registry.
func (r *SupervisorRegistry) Snapshot() map[string]*Supervisor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Supervisor, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}

package chat

import (
	"strings"
	"sync"
)

// Registry tracks which live connections belong to which identity,
// independent of room membership. An identity may hold several
// connections at once (multiple tabs or devices).
type Registry struct {
	mu sync.RWMutex
	// connection id -> identity name as registered (case-preserving)
	identities map[string]string
	// lowered identity name -> connection ids
	connections map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		identities:  make(map[string]string),
		connections: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(connId, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.identities[connId] = identity

	key := strings.ToLower(identity)
	if r.connections[key] == nil {
		r.connections[key] = make(map[string]struct{})
	}
	r.connections[key][connId] = struct{}{}
}

// Unregister removes the connection. Unknown connections are a no-op.
func (r *Registry) Unregister(connId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[connId]
	if !ok {
		return
	}

	delete(r.identities, connId)

	key := strings.ToLower(identity)
	if conns, ok := r.connections[key]; ok {
		delete(conns, connId)
		if len(conns) == 0 {
			delete(r.connections, key)
		}
	}
}

func (r *Registry) IdentityOf(connId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[connId]
	return identity, ok
}

func (r *Registry) ConnectionsOf(identity string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.connections[strings.ToLower(identity)]))
	for id := range r.connections[strings.ToLower(identity)] {
		conns = append(conns, id)
	}

	return conns
}

func (r *Registry) HasAnyConnection(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections[strings.ToLower(identity)]) > 0
}

// Package cluster owns the authoritative set of peer identities and
// the point-to-point RPC channels between them. Nodes hold only ids;
// every call goes through a per-call registry lookup, so partitions
// are simulated by disabling entries instead of mutating the nodes'
// reference graphs.
package cluster

import (
	"errors"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrUnreachable is returned when the target (or the caller itself)
// is absent or disconnected. Callers treat it as a rejected call.
var ErrUnreachable = errors.New("cluster: peer unreachable")

// ErrTimeout is returned when a call does not settle within the
// channel's timeout. Callers treat it as a rejected call.
var ErrTimeout = errors.New("cluster: rpc timeout")

// Registry maps stable integer ids to peer-callable handles. It is
// supplied to nodes and never owned by them.
type Registry struct {
	mu       sync.RWMutex
	handles  map[int]interface{}
	disabled map[int]bool
}

// NewRegistry build an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handles:  make(map[int]interface{}),
		disabled: make(map[int]bool),
	}
}

// Register binds id to a callable handle, replacing any previous one.
func (r *Registry) Register(id int, handle interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[id] = handle
}

// Remove drops id from the registry entirely.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
	delete(r.disabled, id)
}

// Lookup return the handle for id; ok is false when id is absent or
// currently disconnected.
func (r *Registry) Lookup(id int) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.disabled[id] {
		return nil, false
	}
	h, ok := r.handles[id]
	return h, ok
}

// Disconnect detaches id from the network: calls from and to it fail
// until Reconnect.
func (r *Registry) Disconnect(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[id] = true

	log.Debugf("registry disconnect %d", id)
}

// Reconnect re-attaches id to the network.
func (r *Registry) Reconnect(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disabled, id)

	log.Debugf("registry reconnect %d", id)
}

// Connected reports whether id is registered and not disconnected.
func (r *Registry) Connected(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[id]
	return ok && !r.disabled[id]
}

// Disconnected reports whether id was explicitly detached. Unknown
// ids are not disconnected: external clients (paxos proposers, api
// callers) use channels without registering a handle of their own.
func (r *Registry) Disconnected(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled[id]
}

// IDs return every registered id in ascending order, disconnected
// ones included.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Size return the total number of registered peers.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Quorum return the majority threshold for the registered set.
func (r *Registry) Quorum() int {
	return r.Size()/2 + 1
}

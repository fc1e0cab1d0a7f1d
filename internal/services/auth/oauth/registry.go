package oauth

import (
	"sync"
	"time"
)

// Requester identifies who started an authentication attempt. The callback
// page greets them by name and shows the guild icon.
type Requester struct {
	Username         string
	GuildImageSource string
}

// PendingRequest is one in-flight authentication waiting for its callback.
type PendingRequest struct {
	Requester
	Deadline time.Time

	handoff *handoff
}

// Registry maps CSRF states to pending requests. Lookups take a read lock and
// take-and-remove is atomic, so a state is consumed at most once.
type Registry struct {
	mu      sync.RWMutex
	pending map[string]PendingRequest
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]PendingRequest)}
}

// Insert registers a pending request under state, replacing any previous
// entry for the same state.
func (r *Registry) Insert(state string, request PendingRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if previous, ok := r.pending[state]; ok && previous.handoff != nil {
		previous.handoff.drop()
	}
	r.pending[state] = request
}

// Remove takes the entry for state out of the registry. Only one of several
// concurrent callers for the same state receives it.
func (r *Registry) Remove(state string) (PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.pending[state]
	if ok {
		delete(r.pending, state)
	}
	return request, ok
}

// Contains reports whether state is pending.
func (r *Registry) Contains(state string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pending[state]
	return ok
}

// Len returns the number of pending requests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// Sweep drops every entry whose deadline is before now and returns how many
// were removed. Their waiters observe ErrSenderDropped or ErrTimeout.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for state, request := range r.pending {
		if !now.After(request.Deadline) {
			continue
		}
		delete(r.pending, state)
		if request.handoff != nil {
			request.handoff.drop()
		}
		removed++
	}
	return removed
}

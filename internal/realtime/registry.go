package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Registry keeps at most one mediator per user
type Registry struct {
	deps Dependencies

	attachMu  sync.Mutex
	mu        sync.RWMutex
	mediators map[string]*Mediator
}

// NewRegistry creates an empty registry sharing deps across mediators
func NewRegistry(deps Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{
		deps:      deps,
		mediators: make(map[string]*Mediator),
	}
}

// Attach binds a client sink to a fresh mediator for the user. An existing
// mediator for the same user is detached first.
func (r *Registry) Attach(userID string, sink Sink) *Mediator {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()

	if old := r.Get(userID); old != nil {
		r.deps.Logger.Info("Replacing existing mediator", zap.String("userID", userID))
		old.Detach()
	}

	m := newMediator(userID, sink, r.deps, r)
	r.mu.Lock()
	r.mediators[userID] = m
	r.mu.Unlock()

	m.start()
	return m
}

// Get returns the live mediator of a user
func (r *Registry) Get(userID string) *Mediator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mediators[userID]
}

// HoldsConversation reports whether a live mediator of the user owns the
// conversation. Such conversations are settled by the mediator itself.
func (r *Registry) HoldsConversation(userID, conversationID string) bool {
	m := r.Get(userID)
	return m != nil && m.Holds(conversationID)
}

// Len returns the number of live mediators
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mediators)
}

// Shutdown detaches every mediator
func (r *Registry) Shutdown() {
	r.mu.RLock()
	all := make([]*Mediator, 0, len(r.mediators))
	for _, m := range r.mediators {
		all = append(all, m)
	}
	r.mu.RUnlock()

	for _, m := range all {
		m.Detach()
	}
}

func (r *Registry) remove(userID string, m *Mediator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mediators[userID] == m {
		delete(r.mediators, userID)
	}
}

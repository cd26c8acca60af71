package session

import (
	"errors"
	"sync"

	"verba.town/wire"
)

var ErrDuplicateSession = errors.New("an active session already exists for this identifier")

// Registry is the process-wide table of active sessions, keyed by
// session identifier. Check-and-insert is atomic: at most one active
// session exists per identifier at any instant.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Manager
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Manager)}
}

func (r *Registry) Add(id string, m *Manager) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return ErrDuplicateSession
	}
	r.sessions[id] = m
	return nil
}

// Remove deregisters a session, but only if it still owns the slot.
// A session that lost a race at Add time must not evict its successor.
func (r *Registry) Remove(id string, m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, exists := r.sessions[id]; exists && current == m {
		delete(r.sessions, id)
	}
}

func (r *Registry) Get(id string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, exists := r.sessions[id]
	return m, exists
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Broadcast sends a message to the client of the session registered
// under id, if any. Reports whether a session was found.
func (r *Registry) Broadcast(id string, msg wire.Message) bool {
	m, exists := r.Get(id)
	if !exists {
		return false
	}
	m.Notify(msg)
	return true
}

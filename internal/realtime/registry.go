package realtime

import (
	"sync"

	"github.com/lyehe/porterminal/internal/terminal"
)

// Registry tracks every open terminal connection per user so that state
// changes, such as tab updates, reach all of a user's devices.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[terminal.Connection]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[terminal.Connection]struct{})}
}

func (r *Registry) Register(userID string, conn terminal.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[terminal.Connection]struct{})
		r.conns[userID] = set
	}
	set[conn] = struct{}{}
}

func (r *Registry) Unregister(userID string, conn terminal.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
}

// Count returns the number of connections open for userID.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// Total returns the number of open connections across all users.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}

// Broadcast sends msg to every connection of userID except exclude, which
// may be nil. It returns how many sends succeeded.
func (r *Registry) Broadcast(userID string, msg any, exclude terminal.Connection) int {
	r.mu.RLock()
	targets := make([]terminal.Connection, 0, len(r.conns[userID]))
	for c := range r.conns[userID] {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if !c.IsConnected() {
			continue
		}
		if err := c.SendMessage(msg); err == nil {
			sent++
		}
	}
	return sent
}

package session

import "sync"

// MemorySessionRepository keeps sessions in memory, indexed by id and user.
type MemorySessionRepository struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byUser map[string]map[string]*Session
}

var _ SessionRepository = (*MemorySessionRepository)(nil)

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		byID:   make(map[string]*Session),
		byUser: make(map[string]map[string]*Session),
	}
}

func (r *MemorySessionRepository) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
	if r.byUser[s.UserID] == nil {
		r.byUser[s.UserID] = make(map[string]*Session)
	}
	r.byUser[s.UserID][s.ID] = s
}

func (r *MemorySessionRepository) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// Remove deletes a session and returns it, or nil if it was not stored.
func (r *MemorySessionRepository) Remove(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	if user := r.byUser[s.UserID]; user != nil {
		delete(user, id)
		if len(user) == 0 {
			delete(r.byUser, s.UserID)
		}
	}
	return s
}

func (r *MemorySessionRepository) ByUser(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byUser[userID]))
	for _, s := range r.byUser[userID] {
		out = append(out, s)
	}
	return out
}

func (r *MemorySessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *MemorySessionRepository) CountForUser(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

func (r *MemorySessionRepository) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// MemoryTabRepository keeps tabs in memory, indexed by id, user and session.
type MemoryTabRepository struct {
	mu        sync.RWMutex
	byID      map[string]*Tab
	byUser    map[string]map[string]*Tab
	bySession map[string]map[string]*Tab
}

var _ TabRepository = (*MemoryTabRepository)(nil)

func NewMemoryTabRepository() *MemoryTabRepository {
	return &MemoryTabRepository{
		byID:      make(map[string]*Tab),
		byUser:    make(map[string]map[string]*Tab),
		bySession: make(map[string]map[string]*Tab),
	}
}

func (r *MemoryTabRepository) Add(t *Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(t)
}

func (r *MemoryTabRepository) addLocked(t *Tab) {
	r.byID[t.ID] = t
	if r.byUser[t.UserID] == nil {
		r.byUser[t.UserID] = make(map[string]*Tab)
	}
	r.byUser[t.UserID][t.ID] = t
	if r.bySession[t.SessionID] == nil {
		r.bySession[t.SessionID] = make(map[string]*Tab)
	}
	r.bySession[t.SessionID][t.ID] = t
}

func (r *MemoryTabRepository) Get(id string) (*Tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// Update replaces a stored tab. Unknown tabs are ignored.
func (r *MemoryTabRepository) Update(t *Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[t.ID]; !ok {
		return
	}
	r.removeLocked(t.ID)
	r.addLocked(t)
}

func (r *MemoryTabRepository) Remove(id string) *Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *MemoryTabRepository) removeLocked(id string) *Tab {
	t, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	if user := r.byUser[t.UserID]; user != nil {
		delete(user, id)
		if len(user) == 0 {
			delete(r.byUser, t.UserID)
		}
	}
	if sess := r.bySession[t.SessionID]; sess != nil {
		delete(sess, id)
		if len(sess) == 0 {
			delete(r.bySession, t.SessionID)
		}
	}
	return t
}

func (r *MemoryTabRepository) ByUser(userID string) []*Tab {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tab, 0, len(r.byUser[userID]))
	for _, t := range r.byUser[userID] {
		out = append(out, t)
	}
	return out
}

func (r *MemoryTabRepository) BySession(sessionID string) []*Tab {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tab, 0, len(r.bySession[sessionID]))
	for _, t := range r.bySession[sessionID] {
		out = append(out, t)
	}
	return out
}

// RemoveBySession deletes every tab pointing at sessionID and returns them.
func (r *MemoryTabRepository) RemoveBySession(sessionID string) []*Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.bySession[sessionID]))
	for id := range r.bySession[sessionID] {
		ids = append(ids, id)
	}
	removed := make([]*Tab, 0, len(ids))
	for _, id := range ids {
		if t := r.removeLocked(id); t != nil {
			removed = append(removed, t)
		}
	}
	return removed
}

func (r *MemoryTabRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *MemoryTabRepository) CountForUser(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

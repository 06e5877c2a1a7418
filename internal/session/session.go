package session

import (
	"sync"
	"time"
)

// Session is one shell running in a PTY, shared by every client attached
// to it. The session owns its PTY and closes it exactly once.
type Session struct {
	ID        string
	UserID    string
	ShellID   string
	CreatedAt time.Time

	pty    PTY
	buffer *OutputBuffer

	mu           sync.Mutex
	dims         Dimensions
	lastActivity time.Time
	clients      int

	closeOnce sync.Once
	closeErr  error
}

// Info is the JSON view of a session.
type Info struct {
	ID               string     `json:"session_id"`
	UserID           string     `json:"user_id"`
	ShellID          string     `json:"shell"`
	Dimensions       Dimensions `json:"dimensions"`
	CreatedAt        time.Time  `json:"created_at"`
	LastActivity     time.Time  `json:"last_activity"`
	ConnectedClients int        `json:"connected_clients"`
	BufferedBytes    int        `json:"buffered_bytes"`
	Alive            bool       `json:"alive"`
}

// NewSession wraps a started PTY. The session starts with no clients.
func NewSession(id, userID, shellID string, dims Dimensions, pty PTY, bufferMax int, now time.Time) *Session {
	return &Session{
		ID:           id,
		UserID:       userID,
		ShellID:      shellID,
		CreatedAt:    now,
		pty:          pty,
		buffer:       NewOutputBuffer(bufferMax),
		dims:         dims,
		lastActivity: now,
	}
}

// PTY returns the shell process the session owns.
func (s *Session) PTY() PTY {
	return s.pty
}

// Buffer returns the replay buffer.
func (s *Session) Buffer() *OutputBuffer {
	return s.buffer
}

// Touch records activity at t.
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	s.lastActivity = t
	s.mu.Unlock()
}

// LastActivity returns the time of the last input, output or heartbeat.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Dimensions returns the current terminal size.
func (s *Session) Dimensions() Dimensions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dims
}

// UpdateDimensions records a new terminal size. It does not resize the PTY.
func (s *Session) UpdateDimensions(d Dimensions) {
	s.mu.Lock()
	s.dims = d
	s.mu.Unlock()
}

// AddOutput appends PTY output to the replay buffer.
func (s *Session) AddOutput(data []byte) {
	s.buffer.Add(data)
}

// BufferedOutput returns a copy of the replay buffer without clearing it.
func (s *Session) BufferedOutput() []byte {
	return s.buffer.Bytes()
}

// DrainBuffer returns the buffered output and clears it, so replayed
// bytes are delivered at most once.
func (s *Session) DrainBuffer() []byte {
	return s.buffer.Drain()
}

// ClearBuffer drops the replay buffer.
func (s *Session) ClearBuffer() {
	s.buffer.Clear()
}

// AddClient registers an attached client and returns the new count.
func (s *Session) AddClient() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients++
	return s.clients
}

// RemoveClient deregisters a client and returns the new count, never
// going below zero.
func (s *Session) RemoveClient() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients > 0 {
		s.clients--
	}
	return s.clients
}

// ConnectedClients returns the number of attached clients.
func (s *Session) ConnectedClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

// Close closes the PTY. Later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pty.Close()
	})
	return s.closeErr
}

// Info returns a snapshot for the API.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:               s.ID,
		UserID:           s.UserID,
		ShellID:          s.ShellID,
		Dimensions:       s.dims,
		CreatedAt:        s.CreatedAt,
		LastActivity:     s.lastActivity,
		ConnectedClients: s.clients,
		BufferedBytes:    s.buffer.Size(),
		Alive:            s.pty.Alive(),
	}
}

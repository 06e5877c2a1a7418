package session

// PTY is a running shell attached to a pseudo-terminal.
//
// Read must not block: it returns 0, nil when no output is pending.
// One goroutine may read while another writes.
type PTY interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(d Dimensions) error
	Alive() bool
	Close() error
	Dimensions() Dimensions
}

// Shell describes an executable that can be started in a PTY.
type Shell struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// PTYFactory starts shell in a new PTY of the given size, with env as its
// complete environment and workDir as its working directory.
type PTYFactory func(shell Shell, dims Dimensions, env map[string]string, workDir string) (PTY, error)

// SessionRepository stores live sessions. Implementations must be safe
// for concurrent use.
type SessionRepository interface {
	Add(s *Session)
	Get(id string) (*Session, bool)
	Remove(id string) *Session
	ByUser(userID string) []*Session
	Count() int
	CountForUser(userID string) int
	All() []*Session
}

// TabRepository stores tabs. Implementations must be safe for concurrent use.
type TabRepository interface {
	Add(t *Tab)
	Get(id string) (*Tab, bool)
	Update(t *Tab)
	Remove(id string) *Tab
	ByUser(userID string) []*Tab
	BySession(sessionID string) []*Tab
	RemoveBySession(sessionID string) []*Tab
	Count() int
	CountForUser(userID string) int
}

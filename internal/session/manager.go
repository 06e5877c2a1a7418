package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyehe/porterminal/internal/metrics"
)

const defaultCleanupInterval = 5 * time.Second

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTabNotFound     = errors.New("tab not found")
)

// LimitError reports a refused session or tab creation.
type LimitError struct {
	Reason string
}

func (e *LimitError) Error() string {
	return e.Reason
}

// ManagerConfig holds session policy and spawn settings.
type ManagerConfig struct {
	Limits          SessionLimitConfig
	WorkDir         string
	BufferMaxBytes  int
	CleanupInterval time.Duration
}

// RemoveFunc is called after a session has been destroyed.
type RemoveFunc func(s *Session, reason string)

// Manager owns the lifecycle of PTY sessions: creation under limits,
// reconnection, client accounting and background cleanup.
type Manager struct {
	repo    SessionRepository
	limits  *SessionLimits
	env     *EnvSanitizer
	factory PTYFactory
	cfg     ManagerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	environ func() []string

	// createMu makes the limit check and insert atomic.
	createMu sync.Mutex

	hooksMu  sync.RWMutex
	onRemove []RemoveFunc

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithRepository(r SessionRepository) Option {
	return func(m *Manager) { m.repo = r }
}

func WithEnvSanitizer(e *EnvSanitizer) Option {
	return func(m *Manager) { m.env = e }
}

// WithClock replaces time.Now for timestamps and cleanup decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEnviron replaces os.Environ as the source environment for shells.
func WithEnviron(environ func() []string) Option {
	return func(m *Manager) { m.environ = environ }
}

// NewManager creates a session manager that starts shells with factory.
func NewManager(factory PTYFactory, cfg ManagerConfig, opts ...Option) *Manager {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	m := &Manager{
		repo:    NewMemorySessionRepository(),
		limits:  NewSessionLimits(cfg.Limits),
		env:     NewEnvSanitizer(DefaultEnvRules()),
		factory: factory,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		environ: os.Environ,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnRemove registers fn to run whenever a session is destroyed.
func (m *Manager) OnRemove(fn RemoveFunc) {
	m.hooksMu.Lock()
	m.onRemove = append(m.onRemove, fn)
	m.hooksMu.Unlock()
}

// Create starts a new shell for userID. The returned session has no
// clients; callers attaching a connection must call AddClient.
func (m *Manager) Create(userID string, shell Shell, dims Dimensions) (*Session, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	d := m.limits.CanCreate(userID, m.repo.CountForUser(userID), m.repo.Count())
	if !d.Allowed {
		m.logger.Warn("session limit reached", "user_id", userID, "reason", d.Reason)
		return nil, &LimitError{Reason: d.Reason}
	}

	env := m.env.Sanitize(EnvironMap(m.environ()))
	pty, err := m.factory(shell, dims, env, m.cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("start shell %s: %w", shell.ID, err)
	}

	sess := NewSession(uuid.New().String(), userID, shell.ID, dims, pty, m.cfg.BufferMaxBytes, m.now())
	m.repo.Add(sess)
	m.metrics.SessionCreated()

	m.logger.Info("session created",
		"session_id", sess.ID,
		"user_id", userID,
		"shell", shell.ID,
		"cols", dims.Cols,
		"rows", dims.Rows,
	)
	return sess, nil
}

// Reconnect attaches userID to an existing session and increments its
// client count. It returns nil both when the session does not exist and
// when it belongs to someone else.
func (m *Manager) Reconnect(id, userID string) *Session {
	sess, ok := m.repo.Get(id)
	if !ok {
		return nil
	}
	if d := m.limits.CanReconnect(sess, userID); !d.Allowed {
		m.logger.Warn("reconnect denied", "session_id", id, "user_id", userID, "reason", d.Reason)
		return nil
	}
	sess.AddClient()
	return sess
}

// ActiveSession returns the most recently active session of userID that
// has at least one attached client, or nil.
func (m *Manager) ActiveSession(userID string) *Session {
	var best *Session
	var bestActivity time.Time
	for _, s := range m.repo.ByUser(userID) {
		if s.ConnectedClients() == 0 {
			continue
		}
		if a := s.LastActivity(); best == nil || a.After(bestActivity) {
			best, bestActivity = s, a
		}
	}
	return best
}

// Disconnect decrements the client count. The session stays alive for
// reconnection until cleanup removes it.
func (m *Manager) Disconnect(id string) {
	sess, ok := m.repo.Get(id)
	if !ok {
		return
	}
	n := sess.RemoveClient()
	m.logger.Info("client detached", "session_id", id, "clients", n)
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	sess, ok := m.repo.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// List returns the sessions of userID, oldest first.
func (m *Manager) List(userID string) []*Session {
	sessions := m.repo.ByUser(userID)
	slices.SortFunc(sessions, func(a, b *Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return sessions
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.repo.Count()
}

// Kill destroys a session owned by userID.
func (m *Manager) Kill(id, userID string) error {
	sess, ok := m.repo.Get(id)
	if !ok || sess.UserID != userID {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.remove(sess, "Closed by user")
	return nil
}

// Cleanup destroys every session the limit policy flags at now and
// returns how many were removed.
func (m *Manager) Cleanup(now time.Time) int {
	removed := 0
	for _, sess := range m.repo.All() {
		ok, reason := m.limits.ShouldCleanup(sess, now, sess.PTY().Alive())
		if !ok {
			continue
		}
		if m.remove(sess, reason) {
			removed++
		}
	}
	return removed
}

func (m *Manager) remove(sess *Session, reason string) bool {
	if m.repo.Remove(sess.ID) == nil {
		return false
	}
	if err := sess.Close(); err != nil {
		m.logger.Warn("close pty", "session_id", sess.ID, "error", err)
	}
	m.metrics.SessionRemoved(reasonLabel(reason))

	m.hooksMu.RLock()
	hooks := slices.Clone(m.onRemove)
	m.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(sess, reason)
	}

	m.logger.Info("session removed", "session_id", sess.ID, "user_id", sess.UserID, "reason", reason)
	return true
}

func reasonLabel(reason string) string {
	switch {
	case reason == "PTY died":
		return "pty_died"
	case strings.Contains(reason, "max duration"):
		return "max_duration"
	case strings.Contains(reason, "Reconnection window"):
		return "reconnect_window"
	case reason == "Server shutdown":
		return "shutdown"
	default:
		return "killed"
	}
}

// Start runs the cleanup sweep every CleanupInterval until Shutdown.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.cleanupLoop()
	})
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if n := m.Cleanup(m.now()); n > 0 {
				m.logger.Debug("cleanup sweep", "removed", n, "remaining", m.repo.Count())
			}
		}
	}
}

// Shutdown stops the cleanup sweep and closes every session.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()

	for _, sess := range m.repo.All() {
		m.remove(sess, "Server shutdown")
	}
}

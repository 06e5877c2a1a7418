package session

import (
	"fmt"
	"time"
)

// Decision is the outcome of an admission check. Reason is empty when
// Allowed is true.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// SessionLimitConfig bounds session creation and lifetime. A zero
// MaxDuration or ReconnectWindow disables that check.
type SessionLimitConfig struct {
	MaxPerUser      int
	MaxTotal        int
	MaxDuration     time.Duration
	ReconnectWindow time.Duration
}

// DefaultSessionLimitConfig returns 10 sessions per user, 100 in total and no time limits.
func DefaultSessionLimitConfig() SessionLimitConfig {
	return SessionLimitConfig{
		MaxPerUser: 10,
		MaxTotal:   100,
	}
}

// SessionLimits decides session admission, reconnection and eviction.
type SessionLimits struct {
	cfg SessionLimitConfig
}

// NewSessionLimits creates a checker for cfg.
func NewSessionLimits(cfg SessionLimitConfig) *SessionLimits {
	return &SessionLimits{cfg: cfg}
}

// Config returns the limits in effect.
func (l *SessionLimits) Config() SessionLimitConfig {
	return l.cfg
}

// CanCreate checks the per-user limit, then the server-wide limit.
func (l *SessionLimits) CanCreate(userID string, userCount, totalCount int) Decision {
	if userCount >= l.cfg.MaxPerUser {
		return deny("Maximum sessions (%d) reached for user %s", l.cfg.MaxPerUser, userID)
	}
	if totalCount >= l.cfg.MaxTotal {
		return deny("Server session limit (%d) reached", l.cfg.MaxTotal)
	}
	return allow()
}

// CanReconnect only checks ownership. Reconnecting does not count against
// creation limits.
func (l *SessionLimits) CanReconnect(s *Session, userID string) Decision {
	if s.UserID != userID {
		return deny("Session belongs to another user")
	}
	return allow()
}

// ShouldCleanup reports whether s should be destroyed, checking in order:
// a dead PTY, the maximum duration, then the reconnection window for
// sessions with no attached clients.
func (l *SessionLimits) ShouldCleanup(s *Session, now time.Time, ptyAlive bool) (bool, string) {
	if !ptyAlive {
		return true, "PTY died"
	}

	if l.cfg.MaxDuration > 0 {
		if age := now.Sub(s.CreatedAt); age > l.cfg.MaxDuration {
			return true, fmt.Sprintf("Session exceeded max duration (%s)", l.cfg.MaxDuration)
		}
	}

	if l.cfg.ReconnectWindow > 0 && s.ConnectedClients() == 0 {
		if idle := now.Sub(s.LastActivity()); idle > l.cfg.ReconnectWindow {
			return true, fmt.Sprintf("Reconnection window expired (%s)", l.cfg.ReconnectWindow)
		}
	}

	return false, ""
}

// TabLimitConfig bounds how many tabs one user may hold.
type TabLimitConfig struct {
	MaxPerUser int
}

// DefaultTabLimitConfig allows 20 tabs per user.
func DefaultTabLimitConfig() TabLimitConfig {
	return TabLimitConfig{MaxPerUser: 20}
}

// TabLimits decides tab admission and ownership.
type TabLimits struct {
	cfg TabLimitConfig
}

// NewTabLimits creates a checker for cfg.
func NewTabLimits(cfg TabLimitConfig) *TabLimits {
	return &TabLimits{cfg: cfg}
}

// CanCreate reports whether userID, already holding userCount tabs, may add one.
func (l *TabLimits) CanCreate(userID string, userCount int) Decision {
	if userCount >= l.cfg.MaxPerUser {
		return deny("Maximum tabs (%d) reached", l.cfg.MaxPerUser)
	}
	return allow()
}

// CanAccess allows only the tab owner.
func (l *TabLimits) CanAccess(t *Tab, userID string) Decision {
	if t.UserID != userID {
		return deny("Tab belongs to another user")
	}
	return allow()
}

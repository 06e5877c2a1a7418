package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MinTabNameLength = 1
	MaxTabNameLength = 50
)

var ErrInvalidTabName = errors.New("invalid tab name")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Tab is a named handle a user keeps on a session. Several tabs may point
// at the same session.
type Tab struct {
	ID        string
	UserID    string
	SessionID string
	ShellID   string
	CreatedAt time.Time

	mu           sync.Mutex
	name         string
	lastAccessed time.Time
}

// TabInfo is the JSON view of a tab.
type TabInfo struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	ShellID      string    `json:"shell_id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// NewTab creates a tab, rejecting names outside 1-50 characters.
func NewTab(id, userID, sessionID, shellID, name string, now time.Time) (*Tab, error) {
	if err := validateTabName(name); err != nil {
		return nil, err
	}
	return &Tab{
		ID:           id,
		UserID:       userID,
		SessionID:    sessionID,
		ShellID:      shellID,
		CreatedAt:    now,
		name:         name,
		lastAccessed: now,
	}, nil
}

func validateTabName(name string) error {
	tag := fmt.Sprintf("min=%d,max=%d", MinTabNameLength, MaxTabNameLength)
	if err := validate.Var(name, tag); err != nil {
		return fmt.Errorf("%w: name must be %d-%d characters", ErrInvalidTabName, MinTabNameLength, MaxTabNameLength)
	}
	return nil
}

// Name returns the display name.
func (t *Tab) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// Rename changes the tab name, leaving it untouched if name is invalid.
func (t *Tab) Rename(name string) error {
	if err := validateTabName(name); err != nil {
		return err
	}
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
	return nil
}

// Touch records an access at now.
func (t *Tab) Touch(now time.Time) {
	t.mu.Lock()
	t.lastAccessed = now
	t.mu.Unlock()
}

// LastAccessed returns the time of the last Touch.
func (t *Tab) LastAccessed() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastAccessed
}

// Info returns a snapshot for the API.
func (t *Tab) Info() TabInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TabInfo{
		ID:           t.ID,
		SessionID:    t.SessionID,
		ShellID:      t.ShellID,
		Name:         t.name,
		CreatedAt:    t.CreatedAt,
		LastAccessed: t.lastAccessed,
	}
}

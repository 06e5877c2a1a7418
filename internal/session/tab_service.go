package session

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TabService manages the tabs users keep on their sessions.
type TabService struct {
	repo   TabRepository
	limits *TabLimits
	now    func() time.Time

	// createMu makes the limit check and insert atomic.
	createMu sync.Mutex
}

// NewTabService creates a service over repo. A nil limits uses the defaults.
func NewTabService(repo TabRepository, limits *TabLimits) *TabService {
	if limits == nil {
		limits = NewTabLimits(DefaultTabLimitConfig())
	}
	return &TabService{repo: repo, limits: limits, now: time.Now}
}

// Create adds a tab for sessionID. An empty name defaults to the shell id
// with its first letter capitalized.
func (ts *TabService) Create(userID, sessionID, shellID, name string) (*Tab, error) {
	ts.createMu.Lock()
	defer ts.createMu.Unlock()

	if d := ts.limits.CanCreate(userID, ts.repo.CountForUser(userID)); !d.Allowed {
		return nil, &LimitError{Reason: d.Reason}
	}
	if name == "" {
		name = capitalize(shellID)
	}
	tab, err := NewTab(uuid.New().String(), userID, sessionID, shellID, name, ts.now())
	if err != nil {
		return nil, err
	}
	ts.repo.Add(tab)
	return tab, nil
}

func capitalize(s string) string {
	if s == "" {
		return "Terminal"
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// Get returns a tab by id, or nil.
func (ts *TabService) Get(id string) *Tab {
	t, ok := ts.repo.Get(id)
	if !ok {
		return nil
	}
	return t
}

// UserTabs returns the tabs of userID, oldest first.
func (ts *TabService) UserTabs(userID string) []*Tab {
	tabs := ts.repo.ByUser(userID)
	slices.SortFunc(tabs, func(a, b *Tab) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return tabs
}

// TabsForSession returns every tab pointing at sessionID.
func (ts *TabService) TabsForSession(sessionID string) []*Tab {
	return ts.repo.BySession(sessionID)
}

// owned returns the tab if it exists and userID may access it.
func (ts *TabService) owned(tabID, userID string) *Tab {
	t, ok := ts.repo.Get(tabID)
	if !ok {
		return nil
	}
	if d := ts.limits.CanAccess(t, userID); !d.Allowed {
		return nil
	}
	return t
}

// Touch marks the tab as accessed. It returns nil if the tab is missing
// or owned by someone else.
func (ts *TabService) Touch(tabID, userID string) *Tab {
	t := ts.owned(tabID, userID)
	if t == nil {
		return nil
	}
	t.Touch(ts.now())
	ts.repo.Update(t)
	return t
}

// Rename returns nil, leaving the tab unchanged, if the tab is missing,
// owned by someone else or name is invalid.
func (ts *TabService) Rename(tabID, userID, name string) *Tab {
	t := ts.owned(tabID, userID)
	if t == nil {
		return nil
	}
	if err := t.Rename(name); err != nil {
		return nil
	}
	ts.repo.Update(t)
	return t
}

// Close removes a tab owned by userID and returns it, or nil.
func (ts *TabService) Close(tabID, userID string) *Tab {
	if ts.owned(tabID, userID) == nil {
		return nil
	}
	return ts.repo.Remove(tabID)
}

// CloseForSession removes every tab of a destroyed session.
func (ts *TabService) CloseForSession(sessionID string) []*Tab {
	return ts.repo.RemoveBySession(sessionID)
}

// Count returns the number of tabs userID holds.
func (ts *TabService) Count(userID string) int {
	return ts.repo.CountForUser(userID)
}

package protocol

import (
	"fmt"
	"time"

	"github.com/lyehe/porterminal/internal/session"
)

// Server → Client message types.
const (
	TypeSessionInfo    = "session_info"
	TypeError          = "error"
	TypeTabList        = "tab_list"
	TypeTabCreated     = "tab_created"
	TypeTabStateUpdate = "tab_state_update"
)

// Message types sent in both directions.
const (
	TypePing = "ping"
	TypePong = "pong"
)

// Client → Server message types.
const (
	TypeResize = "resize"
	TypeInput  = "input"
)

// Error messages sent to clients.
const (
	ErrInputTooLarge       = "Input too large"
	ErrRateLimited         = "Rate limit exceeded"
	ErrSessionUnauthorized = "Session not found or unauthorized"
	ErrNoShell             = "No shell available"
)

// Close codes for terminal connections.
const (
	CloseSessionNotFound = 4004
	CloseSessionLimit    = 4005
	CloseNoShell         = 4006
	CloseInternalError   = 1011
)

// Inline notices written into the terminal stream.
var (
	NoticePTYFailed = []byte("\r\n[PTY failed to start]\r\n")
	NoticeShellExit = []byte("\r\n[Shell exited]\r\n")
)

// PTYErrorNotice reports a failed PTY read inline.
func PTYErrorNotice(err error) []byte {
	return []byte(fmt.Sprintf("\r\n[PTY error: %v]\r\n", err))
}

// Message is a flat control message. Unused fields are omitted so each
// type serializes to its exact wire shape.
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Shell     string `json:"shell,omitempty"`
	Message   string `json:"message,omitempty"`
}

func NewSessionInfo(sessionID, shell string) Message {
	return Message{Type: TypeSessionInfo, SessionID: sessionID, Shell: shell}
}

func NewError(message string) Message {
	return Message{Type: TypeError, Message: message}
}

func Ping() Message {
	return Message{Type: TypePing}
}

func Pong() Message {
	return Message{Type: TypePong}
}

// TabList carries every tab of a user.
type TabList struct {
	Type      string            `json:"type"`
	Tabs      []session.TabInfo `json:"tabs"`
	Timestamp time.Time         `json:"timestamp"`
}

type TabCreated struct {
	Type string          `json:"type"`
	Tab  session.TabInfo `json:"tab"`
}

// Tab change actions.
const (
	TabActionAdd    = "add"
	TabActionRemove = "remove"
	TabActionUpdate = "update"
)

type TabChange struct {
	Action string           `json:"action"`
	TabID  string           `json:"tab_id"`
	Tab    *session.TabInfo `json:"tab,omitempty"`
}

type TabStateUpdate struct {
	Type      string      `json:"type"`
	Changes   []TabChange `json:"changes"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewTabList(tabs []*session.Tab, now time.Time) TabList {
	infos := make([]session.TabInfo, 0, len(tabs))
	for _, t := range tabs {
		infos = append(infos, t.Info())
	}
	return TabList{Type: TypeTabList, Tabs: infos, Timestamp: now.UTC()}
}

func NewTabCreated(tab *session.Tab) TabCreated {
	return TabCreated{Type: TypeTabCreated, Tab: tab.Info()}
}

// NewTabStateUpdate describes one change. Removals carry only the id.
func NewTabStateUpdate(action string, tab *session.Tab, now time.Time) TabStateUpdate {
	change := TabChange{Action: action, TabID: tab.ID}
	if action != TabActionRemove {
		info := tab.Info()
		change.Tab = &info
	}
	return TabStateUpdate{
		Type:      TypeTabStateUpdate,
		Changes:   []TabChange{change},
		Timestamp: now.UTC(),
	}
}

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lyehe/porterminal/internal/session"
)

var ErrUnknownType = errors.New("unknown message type")

// validClientTypes is the set of allowed client→server message types.
var validClientTypes = map[string]bool{
	TypeResize: true,
	TypeInput:  true,
	TypePing:   true,
	TypePong:   true,
}

// Control is a JSON control message received from a client.
type Control struct {
	Type string   `json:"type"`
	Cols *float64 `json:"cols,omitempty"`
	Rows *float64 `json:"rows,omitempty"`
	Data string   `json:"data,omitempty"`
}

// Size returns the requested terminal size, defaulting missing fields to
// 120x30. The result is not clamped.
func (c *Control) Size() (cols, rows int) {
	cols, rows = session.DefaultCols, session.DefaultRows
	if c.Cols != nil {
		cols = int(*c.Cols)
	}
	if c.Rows != nil {
		rows = int(*c.Rows)
	}
	return cols, rows
}

// ParseControl decodes a raw JSON control message. Messages of unknown
// type are returned together with an error wrapping ErrUnknownType so
// callers can log and ignore them.
func ParseControl(raw []byte) (*Control, error) {
	var msg Control
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if !validClientTypes[msg.Type] {
		return &msg, fmt.Errorf("%w: %s", ErrUnknownType, msg.Type)
	}

	return &msg, nil
}

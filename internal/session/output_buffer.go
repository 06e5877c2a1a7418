package session

import (
	"bytes"
	"sync"
)

// DefaultBufferMaxBytes caps buffered output per session.
const DefaultBufferMaxBytes = 1_000_000

// clearScreen is ED2, erase entire display.
var clearScreen = []byte("\x1b[2J")

type altScreenSeq struct {
	seq   []byte
	enter bool
}

// DEC private modes 47, 1047 and 1049 switch to and from the alternate screen.
var altScreenSeqs = []altScreenSeq{
	{[]byte("\x1b[?1049h"), true},
	{[]byte("\x1b[?1049l"), false},
	{[]byte("\x1b[?1047h"), true},
	{[]byte("\x1b[?1047l"), false},
	{[]byte("\x1b[?47h"), true},
	{[]byte("\x1b[?47l"), false},
}

// OutputBuffer keeps recent terminal output for replay on reconnect.
// Output produced while a full-screen program holds the alternate screen
// is held separately and dropped when the program leaves it, so replay
// shows the shell scrollback rather than stale editor frames.
type OutputBuffer struct {
	mu       sync.RWMutex
	chunks   [][]byte
	size     int
	maxBytes int

	inAlt     bool
	saved     [][]byte
	savedSize int
}

// NewOutputBuffer creates a buffer holding at most maxBytes bytes.
// A non-positive maxBytes selects DefaultBufferMaxBytes.
func NewOutputBuffer(maxBytes int) *OutputBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultBufferMaxBytes
	}
	return &OutputBuffer{maxBytes: maxBytes}
}

// Add appends data, applying clear-screen and alternate-screen handling.
func (b *OutputBuffer) Add(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(data) > 0 {
		idx, n, enter := nextAltScreenSeq(data)
		if idx < 0 {
			b.appendLocked(data)
			return
		}

		switch {
		case enter && !b.inAlt:
			b.appendLocked(data[:idx])
			b.saved, b.savedSize = b.chunks, b.size
			b.chunks, b.size = nil, 0
			b.inAlt = true
		case !enter && b.inAlt:
			// Everything drawn on the alternate screen is discarded.
			b.chunks, b.size = b.saved, b.savedSize
			b.saved, b.savedSize = nil, 0
			b.inAlt = false
		case enter:
			// Already on the alternate screen.
			b.appendLocked(data[:idx+n])
		default:
			// Exit with no matching enter.
			b.appendLocked(data[:idx])
		}
		data = data[idx+n:]
	}
}

func (b *OutputBuffer) appendLocked(seg []byte) {
	if len(seg) == 0 {
		return
	}
	if !b.inAlt && bytes.Contains(seg, clearScreen) {
		b.chunks, b.size = nil, 0
	}

	b.chunks = append(b.chunks, bytes.Clone(seg))
	b.size += len(seg)

	for b.size > b.maxBytes && len(b.chunks) > 0 {
		b.size -= len(b.chunks[0])
		b.chunks[0] = nil
		b.chunks = b.chunks[1:]
	}
}

// nextAltScreenSeq returns the position and length of the earliest
// alternate-screen sequence in data, or -1 when there is none.
func nextAltScreenSeq(data []byte) (idx, n int, enter bool) {
	idx = -1
	for _, s := range altScreenSeqs {
		i := bytes.Index(data, s.seq)
		if i >= 0 && (idx < 0 || i < idx) {
			idx, n, enter = i, len(s.seq), s.enter
		}
	}
	return idx, n, enter
}

// Bytes returns all buffered output in order.
func (b *OutputBuffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bytes.Join(b.chunks, nil)
}

// Drain returns all buffered output and clears the buffer in one step.
func (b *OutputBuffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := bytes.Join(b.chunks, nil)
	b.chunks, b.size = nil, 0
	return out
}

// Clear drops buffered output. Alternate-screen state is left as is.
func (b *OutputBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks, b.size = nil, 0
}

// Size returns the number of buffered bytes.
func (b *OutputBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// IsEmpty reports whether nothing is buffered.
func (b *OutputBuffer) IsEmpty() bool {
	return b.Size() == 0
}

// Len returns the number of buffered chunks.
func (b *OutputBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chunks)
}

// InAltScreen reports whether a full-screen program holds the alternate screen.
func (b *OutputBuffer) InAltScreen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.inAlt
}

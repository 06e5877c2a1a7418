package session

import (
	"sync"
	"time"
)

type fakePTY struct {
	mu      sync.Mutex
	dims    Dimensions
	alive   bool
	closed  int
	written []byte
}

func newFakePTY(dims Dimensions) *fakePTY {
	return &fakePTY{dims: dims, alive: true}
}

func (f *fakePTY) Read(p []byte) (int, error) { return 0, nil }

func (f *fakePTY) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakePTY) Resize(d Dimensions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dims = d
	return nil
}

func (f *fakePTY) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakePTY) kill() {
	f.mu.Lock()
	f.alive = false
	f.mu.Unlock()
}

func (f *fakePTY) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.alive = false
	return nil
}

func (f *fakePTY) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePTY) Dimensions() Dimensions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dims
}

// fakeFactory records every spawn and the environment it was given.
type fakeFactory struct {
	mu      sync.Mutex
	ptys    []*fakePTY
	envs    []map[string]string
	workDir string
	err     error
}

func (ff *fakeFactory) spawn(shell Shell, dims Dimensions, env map[string]string, workDir string) (PTY, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.err != nil {
		return nil, ff.err
	}
	p := newFakePTY(dims)
	ff.ptys = append(ff.ptys, p)
	ff.envs = append(ff.envs, env)
	ff.workDir = workDir
	return p, nil
}

// manualClock is a settable time source.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var bash = Shell{ID: "bash", Name: "Bash", Command: "/bin/bash", Args: []string{"--login"}}

func newTestSession(userID string, clock *manualClock) (*Session, *fakePTY) {
	p := newFakePTY(DefaultDimensions())
	return NewSession("sess-"+userID, userID, "bash", DefaultDimensions(), p, 0, clock.Now()), p
}

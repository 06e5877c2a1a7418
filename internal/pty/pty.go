// Package pty starts shells on pseudo-terminals with creack/pty.
package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/lyehe/porterminal/internal/session"
)

const readBufferSize = 4096

var ErrClosed = errors.New("pty closed")

// Process is a shell attached to a pseudo-terminal. A background reader
// drains the master side into a channel so Read never blocks.
type Process struct {
	cmd  *exec.Cmd
	file *os.File

	chunks chan []byte
	done   chan struct{} // closed when the reader stops

	mu      sync.Mutex
	pending []byte
	dims    session.Dimensions
	readErr error

	closeOnce sync.Once
	closeErr  error
}

var _ session.PTY = (*Process)(nil)

// Spawn starts shell on a new PTY. It has the session.PTYFactory signature.
func Spawn(shell session.Shell, dims session.Dimensions, env map[string]string, workDir string) (session.PTY, error) {
	cmd := exec.Command(shell.Command, shell.Args...)
	cmd.Env = session.EnvironList(env)
	cmd.Dir = workDir

	f, err := pty.StartWithSize(cmd, winsize(dims))
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", shell.Command, err)
	}

	p := &Process{
		cmd:    cmd,
		file:   f,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
		dims:   dims,
	}
	go p.pump()
	return p, nil
}

func winsize(d session.Dimensions) *pty.Winsize {
	return &pty.Winsize{Cols: uint16(d.Cols), Rows: uint16(d.Rows)}
}

func (p *Process) pump() {
	defer close(p.done)
	defer close(p.chunks)

	buf := make([]byte, readBufferSize)
	for {
		n, err := p.file.Read(buf)
		if n > 0 {
			p.chunks <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			// EIO is how Linux reports the slave side closing.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				p.mu.Lock()
				p.readErr = err
				p.mu.Unlock()
			}
			return
		}
	}
}

// Read copies pending output into b. It returns 0, nil when nothing is
// pending.
func (p *Process) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		select {
		case chunk, ok := <-p.chunks:
			if !ok {
				return 0, p.readErr
			}
			p.pending = chunk
		default:
			return 0, nil
		}
	}

	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *Process) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, ErrClosed
	default:
	}
	return p.file.Write(b)
}

func (p *Process) Resize(d session.Dimensions) error {
	if err := pty.Setsize(p.file, winsize(d)); err != nil {
		return fmt.Errorf("set size: %w", err)
	}
	p.mu.Lock()
	p.dims = d
	p.mu.Unlock()
	return nil
}

// Alive reports whether the shell is running or output is still pending.
func (p *Process) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) > 0 || len(p.chunks) > 0 {
		return true
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Process) Dimensions() session.Dimensions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dims
}

// Close kills the shell and releases the PTY.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		p.closeErr = p.file.Close()
		p.cmd.Wait()

		// Discard unread output so the reader can finish.
		for range p.chunks {
		}
		<-p.done

		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()
	})
	return p.closeErr
}

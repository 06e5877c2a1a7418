// Package terminal pumps bytes and control messages between a PTY session
// and one attached client.
//
// HandleSession runs three loops for the life of an attachment:
//
//   - the read loop polls the PTY, records output in the session buffer
//     and forwards it to the client;
//   - the heartbeat loop sends a ping every HeartbeatInterval;
//   - the input loop receives client messages and dispatches input,
//     resize and ping/pong.
//
// The input loop owns the attachment. When it returns, the other two
// loops are cancelled and awaited before HandleSession returns.
package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lyehe/porterminal/internal/metrics"
	"github.com/lyehe/porterminal/internal/protocol"
	"github.com/lyehe/porterminal/internal/ratelimit"
	"github.com/lyehe/porterminal/internal/session"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReadInterval      = 8 * time.Millisecond // ~120Hz
	DefaultReadChunkSize     = 4096
	DefaultMaxInputSize      = 4096
)

// Config tunes a Service. Zero fields take the defaults.
type Config struct {
	RateLimit         ratelimit.Config
	MaxInputSize      int
	HeartbeatInterval time.Duration
	ReadInterval      time.Duration
	ReadChunkSize     int
}

func DefaultConfig() Config {
	return Config{
		RateLimit:         ratelimit.DefaultConfig(),
		MaxInputSize:      DefaultMaxInputSize,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ReadInterval:      DefaultReadInterval,
		ReadChunkSize:     DefaultReadChunkSize,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.MaxInputSize <= 0 {
		c.MaxInputSize = d.MaxInputSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ReadInterval <= 0 {
		c.ReadInterval = d.ReadInterval
	}
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = d.ReadChunkSize
	}
	return c
}

// Service handles terminal attachments.
type Service struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   ratelimit.Clock
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock sets the time source for rate limiting and activity stamps.
func WithClock(c ratelimit.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func NewService(cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		clock:  ratelimit.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleSession serves one client attached to sess until the client goes
// away or ctx is cancelled. Unless skipBuffer is set, buffered output is
// replayed once before live output starts. Transport failures end the
// attachment with a nil error. A non-nil error reports a PTY write
// failure, which the client has already been told about inline.
func (s *Service) HandleSession(ctx context.Context, sess *session.Session, conn Connection, skipBuffer bool) error {
	limiter := ratelimit.New(s.cfg.RateLimit, s.clock)

	if err := conn.SendMessage(protocol.NewSessionInfo(sess.ID, sess.ShellID)); err != nil {
		s.logger.Debug("send session info", "session_id", sess.ID, "error", err)
		return nil
	}

	if !skipBuffer {
		if buffered := sess.DrainBuffer(); len(buffered) > 0 {
			if err := conn.SendOutput(buffered); err != nil {
				s.logger.Debug("replay buffer", "session_id", sess.ID, "error", err)
				return nil
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx, sess, conn)
	}()
	go func() {
		defer wg.Done()
		s.heartbeatLoop(ctx, conn)
	}()

	err := s.inputLoop(ctx, sess, conn, limiter)

	cancel()
	wg.Wait()
	return err
}

func (s *Service) readLoop(ctx context.Context, sess *session.Session, conn Connection) {
	pty := sess.PTY()
	if !pty.Alive() {
		s.logger.Error("pty not alive at start", "session_id", sess.ID)
		conn.SendOutput(protocol.NoticePTYFailed)
		return
	}

	buf := make([]byte, s.cfg.ReadChunkSize)
	ticker := time.NewTicker(s.cfg.ReadInterval)
	defer ticker.Stop()

	for conn.IsConnected() && pty.Alive() {
		n, err := pty.Read(buf)
		if err != nil {
			s.logger.Error("pty read", "session_id", sess.ID, "error", err)
			conn.SendOutput(protocol.PTYErrorNotice(err))
			break
		}
		if n > 0 {
			data := buf[:n]
			sess.AddOutput(data)
			if err := conn.SendOutput(data); err != nil {
				s.logger.Debug("forward output", "session_id", sess.ID, "error", err)
				return
			}
			sess.Touch(s.clock.Now())
			s.metrics.Output(n)
		}

		// A full chunk means more is likely pending.
		if n == len(buf) {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	if ctx.Err() == nil && conn.IsConnected() && !pty.Alive() {
		conn.SendOutput(protocol.NoticeShellExit)
	}
}

func (s *Service) heartbeatLoop(ctx context.Context, conn Connection) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !conn.IsConnected() {
				return
			}
			if err := conn.SendMessage(protocol.Ping()); err != nil {
				return
			}
		}
	}
}

func (s *Service) inputLoop(ctx context.Context, sess *session.Session, conn Connection, limiter *ratelimit.TokenBucket) error {
	for conn.IsConnected() {
		in, err := conn.Receive(ctx)
		if err != nil {
			s.logger.Debug("receive ended", "session_id", sess.ID, "error", err)
			return nil
		}

		if in.Binary {
			if err := s.handleInput(sess, conn, limiter, in.Data, len(in.Data)); err != nil {
				return err
			}
			continue
		}

		msg, err := protocol.ParseControl(in.Data)
		if err != nil {
			s.logger.Warn("ignoring client message", "session_id", sess.ID, "error", err)
			continue
		}
		if err := s.handleControl(sess, conn, limiter, msg); err != nil {
			return err
		}
	}
	return nil
}

// handleInput writes data to the PTY if it fits the size limit and the
// rate budget. size is the length checked against the limit.
func (s *Service) handleInput(sess *session.Session, conn Connection, limiter *ratelimit.TokenBucket, data []byte, size int) error {
	if size > s.cfg.MaxInputSize {
		s.metrics.InputDropped("too_large")
		s.sendError(sess, conn, protocol.ErrInputTooLarge)
		return nil
	}

	if !limiter.TryAcquire(len(data)) {
		s.metrics.InputDropped("rate_limited")
		s.logger.Warn("rate limit exceeded", "session_id", sess.ID)
		s.sendError(sess, conn, protocol.ErrRateLimited)
		return nil
	}

	if _, err := sess.PTY().Write(data); err != nil {
		s.logger.Error("pty write", "session_id", sess.ID, "error", err)
		conn.SendOutput(protocol.PTYErrorNotice(err))
		return fmt.Errorf("write pty: %w", err)
	}
	sess.Touch(s.clock.Now())
	s.metrics.Input(len(data))
	return nil
}

func (s *Service) handleControl(sess *session.Session, conn Connection, limiter *ratelimit.TokenBucket, msg *protocol.Control) error {
	switch msg.Type {
	case protocol.TypeResize:
		s.handleResize(sess, msg)
	case protocol.TypeInput:
		if msg.Data == "" {
			return nil
		}
		return s.handleInput(sess, conn, limiter, []byte(msg.Data), utf8.RuneCountInString(msg.Data))
	case protocol.TypePing:
		if err := conn.SendMessage(protocol.Pong()); err != nil {
			s.logger.Debug("send pong", "session_id", sess.ID, "error", err)
		}
		sess.Touch(s.clock.Now())
	case protocol.TypePong:
		sess.Touch(s.clock.Now())
	}
	return nil
}

func (s *Service) handleResize(sess *session.Session, msg *protocol.Control) {
	dims := session.ClampDimensions(msg.Size())
	if dims == sess.Dimensions() {
		return
	}

	sess.UpdateDimensions(dims)
	if err := sess.PTY().Resize(dims); err != nil {
		s.logger.Warn("resize pty", "session_id", sess.ID, "error", err)
	}
	sess.Touch(s.clock.Now())

	s.logger.Info("terminal resized", "session_id", sess.ID, "cols", dims.Cols, "rows", dims.Rows)
}

func (s *Service) sendError(sess *session.Session, conn Connection, message string) {
	if err := conn.SendMessage(protocol.NewError(message)); err != nil {
		s.logger.Debug("send error message", "session_id", sess.ID, "error", err)
	}
}

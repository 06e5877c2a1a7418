// Package realtime serves the terminal websocket and the HTTP API.
package realtime

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lyehe/porterminal/internal/config"
	"github.com/lyehe/porterminal/internal/metrics"
	"github.com/lyehe/porterminal/internal/protocol"
	"github.com/lyehe/porterminal/internal/session"
	"github.com/lyehe/porterminal/internal/terminal"
)

const (
	// UserHeader carries the identity asserted by Cloudflare Access.
	UserHeader  = "Cf-Access-Authenticated-User-Email"
	DefaultUser = "local-user"

	shutdownDelay = 500 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The tunnel in front of the server enforces access.
	},
}

// Server routes websocket attachments and API calls to the session and
// tab services.
type Server struct {
	sessions *session.Manager
	tabs     *session.TabService
	terminal *terminal.Service
	config   *config.Store
	registry *Registry

	logger        *slog.Logger
	metrics       *metrics.Metrics
	gatherer      prometheus.Gatherer
	shutdown      func()
	shutdownDelay time.Duration
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records connection metrics in m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithShutdown sets the function /api/shutdown calls. Without it the
// endpoint responds but does nothing.
func WithShutdown(fn func()) Option {
	return func(s *Server) { s.shutdown = fn }
}

// New creates a new realtime server.
func New(sessions *session.Manager, tabs *session.TabService, term *terminal.Service, cfg *config.Store, opts ...Option) *Server {
	s := &Server{
		sessions:      sessions,
		tabs:          tabs,
		terminal:      term,
		config:        cfg,
		registry:      NewRegistry(),
		logger:        slog.Default(),
		shutdownDelay: shutdownDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", s.handleConfig)
		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions/{id}", s.handleKillSession)

		r.Get("/tabs", s.handleListTabs)
		r.Post("/tabs", s.handleCreateTab)
		r.Patch("/tabs/{id}", s.handleRenameTab)
		r.Post("/tabs/{id}/touch", s.handleTouchTab)
		r.Delete("/tabs/{id}", s.handleCloseTab)

		r.Post("/shutdown", s.handleShutdown)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	if dir := s.config.Get().Server.StaticDir; dir != "" {
		r.Handle("/*", noCache(http.FileServer(http.Dir(dir))))
	}

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// noCache keeps browsers from holding stale frontend assets.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string {
	if u := r.Header.Get(UserHeader); u != "" {
		return u
	}
	return DefaultUser
}

// handleWebSocket attaches a client to a session: the one named by
// session_id, else the user's active session, else a new one.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "error", err)
		return
	}

	q := r.URL.Query()
	sessionID := q.Get("session_id")
	shellID := q.Get("shell")
	skipBuffer := q.Get("skip_buffer") != ""
	user := userID(r)

	conn := newWSConn(ws)
	log := s.logger.With("user_id", user, "remote", r.RemoteAddr)
	log.Info("websocket accepted", "session_id", sessionID, "shell", shellID, "skip_buffer", skipBuffer)

	sess, code, msg := s.attach(user, sessionID, shellID, log)
	if sess == nil {
		conn.SendMessage(protocol.NewError(msg))
		conn.Close(code, msg)
		return
	}

	s.registry.Register(user, conn)
	s.metrics.ClientAttached()
	defer func() {
		s.registry.Unregister(user, conn)
		s.metrics.ClientDetached()
		s.sessions.Disconnect(sess.ID)
		log.Info("websocket handler finished", "session_id", sess.ID)
	}()

	if err := s.terminal.HandleSession(r.Context(), sess, conn, skipBuffer); err != nil {
		log.Warn("terminal session ended", "session_id", sess.ID, "error", err)
	}
	conn.Close(websocket.CloseNormalClosure, "")
}

// attach resolves the session for a new connection and registers the
// client on it. On failure it returns the close code and message.
func (s *Server) attach(user, sessionID, shellID string, log *slog.Logger) (*session.Session, int, string) {
	if sessionID != "" {
		sess := s.sessions.Reconnect(sessionID, user)
		if sess == nil {
			log.Warn("reconnect denied", "session_id", sessionID)
			return nil, protocol.CloseSessionNotFound, protocol.ErrSessionUnauthorized
		}
		log.Info("reconnected", "session_id", sess.ID, "clients", sess.ConnectedClients())
		return sess, 0, ""
	}

	if sess := s.sessions.ActiveSession(user); sess != nil {
		n := sess.AddClient()
		log.Info("auto-joined active session", "session_id", sess.ID, "clients", n)
		return sess, 0, ""
	}

	cfg := s.config.Get()
	shell, err := cfg.ShellOrDefault(shellID)
	if err != nil {
		return nil, protocol.CloseNoShell, protocol.ErrNoShell
	}

	sess, err := s.sessions.Create(user, shell, cfg.Dimensions())
	if err != nil {
		var limitErr *session.LimitError
		if errors.As(err, &limitErr) {
			return nil, protocol.CloseSessionLimit, limitErr.Reason
		}
		log.Error("create session", "shell", shell.ID, "error", err)
		return nil, protocol.CloseInternalError, "Failed to start shell"
	}
	sess.AddClient()
	return sess, 0, ""
}

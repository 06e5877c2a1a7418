package realtime

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lyehe/porterminal/internal/config"
	"github.com/lyehe/porterminal/internal/protocol"
	"github.com/lyehe/porterminal/internal/session"
)

type shellInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type clientConfig struct {
	Shells       []shellInfo     `json:"shells"`
	Buttons      []config.Button `json:"buttons"`
	DefaultShell string          `json:"default_shell"`
}

type createTabRequest struct {
	SessionID string `json:"session_id"`
	ShellID   string `json:"shell_id"`
	Name      string `json:"name"`
}

type renameTabRequest struct {
	Name string `json:"name"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Get()
	resp := clientConfig{
		Shells:       make([]shellInfo, 0, len(cfg.Terminal.Shells)),
		Buttons:      cfg.Buttons,
		DefaultShell: cfg.Terminal.DefaultShell,
	}
	if resp.Buttons == nil {
		resp.Buttons = []config.Button{}
	}
	for _, sh := range cfg.Terminal.Shells {
		resp.Shells = append(resp.Shells, shellInfo{ID: sh.ID, Name: sh.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List(userID(r))
	infos := make([]session.Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleKillSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Kill(id, userID(r)); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "terminated"})
}

func (s *Server) handleListTabs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.NewTabList(s.tabs.UserTabs(userID(r)), time.Now()))
}

func (s *Server) handleCreateTab(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	var req createTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	sess, err := s.sessions.Get(req.SessionID)
	if err != nil || sess.UserID != user {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	shellID := req.ShellID
	if shellID == "" {
		shellID = sess.ShellID
	}

	tab, err := s.tabs.Create(user, sess.ID, shellID, req.Name)
	if err != nil {
		var limitErr *session.LimitError
		if errors.As(err, &limitErr) {
			writeError(w, http.StatusTooManyRequests, limitErr.Reason)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.registry.Broadcast(user, protocol.NewTabStateUpdate(protocol.TabActionAdd, tab, time.Now()), nil)
	writeJSON(w, http.StatusCreated, protocol.NewTabCreated(tab))
}

func (s *Server) handleRenameTab(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	var req renameTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tab := s.tabs.Rename(chi.URLParam(r, "id"), user, req.Name)
	if tab == nil {
		writeError(w, http.StatusBadRequest, "tab not found or invalid name")
		return
	}

	s.registry.Broadcast(user, protocol.NewTabStateUpdate(protocol.TabActionUpdate, tab, time.Now()), nil)
	writeJSON(w, http.StatusOK, tab.Info())
}

func (s *Server) handleTouchTab(w http.ResponseWriter, r *http.Request) {
	tab := s.tabs.Touch(chi.URLParam(r, "id"), userID(r))
	if tab == nil {
		writeError(w, http.StatusNotFound, "tab not found")
		return
	}
	writeJSON(w, http.StatusOK, tab.Info())
}

func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	user := userID(r)

	tab := s.tabs.Close(chi.URLParam(r, "id"), user)
	if tab == nil {
		writeError(w, http.StatusNotFound, "tab not found")
		return
	}

	s.registry.Broadcast(user, protocol.NewTabStateUpdate(protocol.TabActionRemove, tab, time.Now()), nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// handleShutdown stops the server shortly after responding. Only local
// callers and Cloudflare Access users may do this.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	cfUser := r.Header.Get(UserHeader)
	if !isLoopback(r.RemoteAddr) && cfUser == "" {
		s.logger.Warn("unauthorized shutdown attempt", "remote", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "Unauthorized - must be localhost or authenticated via Cloudflare Access")
		return
	}

	by := cfUser
	if by == "" {
		by = r.RemoteAddr
	}
	s.logger.Info("shutdown requested", "by", by)

	if s.shutdown != nil {
		time.AfterFunc(s.shutdownDelay, s.shutdown)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server shutting down..."})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// OnSessionRemoved closes the tabs of a destroyed session and tells the
// owner's connections. Register it with Manager.OnRemove.
func (s *Server) OnSessionRemoved(sess *session.Session, reason string) {
	for _, tab := range s.tabs.CloseForSession(sess.ID) {
		s.registry.Broadcast(sess.UserID, protocol.NewTabStateUpdate(protocol.TabActionRemove, tab, time.Now()), nil)
	}
}

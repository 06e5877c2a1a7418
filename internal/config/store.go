package config

import (
	"log/slog"
	"slices"
	"sync/atomic"
)

// Store holds the live config. Reload swaps in the parts that can change
// without a restart: buttons and shells.
type Store struct {
	current atomic.Pointer[Config]
	logger  *slog.Logger
}

func NewStore(cfg *Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{logger: logger}
	s.current.Store(cfg)
	return s
}

// Get returns the current config. Callers must not modify it.
func (s *Store) Get() *Config {
	return s.current.Load()
}

// Path is the file Reload reads.
func (s *Store) Path() string {
	return s.Get().Path
}

// Reload re-reads the file. On error the current config is kept.
func (s *Store) Reload() error {
	path := s.Path()
	fresh, err := Load(path)
	if err != nil {
		s.logger.Warn("config reload failed", "path", path, "error", err)
		return err
	}

	next := *s.Get()
	next.Buttons = slices.Clone(fresh.Buttons)
	next.Terminal.Shells = slices.Clone(fresh.Terminal.Shells)
	next.Terminal.DefaultShell = fresh.Terminal.DefaultShell
	s.current.Store(&next)

	s.logger.Info("config reloaded", "path", path, "shells", len(next.Terminal.Shells), "buttons", len(next.Buttons))
	return nil
}

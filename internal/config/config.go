// Package config loads server settings from a YAML file, PORTERMINAL_*
// environment variables and the set of shells installed on the host.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/lyehe/porterminal/internal/ratelimit"
	"github.com/lyehe/porterminal/internal/session"
	"github.com/lyehe/porterminal/internal/terminal"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "PORTERMINAL"

const DefaultPath = "config.yaml"

var ErrNoShell = errors.New("no shell available")

type Config struct {
	// Path is the file the config was loaded from.
	Path string `yaml:"-"`

	Server    ServerConfig    `yaml:"server"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Limits    LimitsConfig    `yaml:"limits"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Buttons   []Button        `yaml:"buttons" validate:"dive"`
}

type ServerConfig struct {
	Host      string `yaml:"host" validate:"required"`
	Port      int    `yaml:"port" validate:"min=1,max=65535"`
	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	StaticDir string `yaml:"static_dir"`
}

type TerminalConfig struct {
	DefaultShell string  `yaml:"default_shell"`
	Cols         int     `yaml:"cols" validate:"min=40,max=500"`
	Rows         int     `yaml:"rows" validate:"min=10,max=200"`
	WorkDir      string  `yaml:"cwd"`
	Shells       []Shell `yaml:"shells" validate:"dive"`
}

type Shell struct {
	Name    string   `yaml:"name" validate:"required"`
	ID      string   `yaml:"id" validate:"required"`
	Command string   `yaml:"command" validate:"required"`
	Args    []string `yaml:"args"`
}

type LimitsConfig struct {
	MaxSessionsPerUser int           `yaml:"max_sessions_per_user" validate:"min=1"`
	MaxTotalSessions   int           `yaml:"max_total_sessions" validate:"min=1"`
	MaxSessionDuration time.Duration `yaml:"max_session_duration"`
	ReconnectWindow    time.Duration `yaml:"reconnect_window"`
	MaxTabsPerUser     int           `yaml:"max_tabs_per_user" validate:"min=1"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
}

type RateLimitConfig struct {
	Rate         float64 `yaml:"rate" validate:"gt=0"`
	Burst        float64 `yaml:"burst" validate:"gt=0"`
	MaxInputSize int     `yaml:"max_input_size" validate:"gt=0"`
}

// Button is a custom toolbar key that sends a fixed string.
type Button struct {
	Label string `yaml:"label" json:"label" validate:"required"`
	Send  string `yaml:"send" json:"send"`
}

// Default returns the built-in settings with no shells.
func Default() *Config {
	sl := session.DefaultSessionLimitConfig()
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8000,
			LogLevel: "info",
		},
		Terminal: TerminalConfig{
			Cols: session.DefaultCols,
			Rows: session.DefaultRows,
		},
		Limits: LimitsConfig{
			MaxSessionsPerUser: sl.MaxPerUser,
			MaxTotalSessions:   sl.MaxTotal,
			MaxSessionDuration: sl.MaxDuration,
			ReconnectWindow:    sl.ReconnectWindow,
			MaxTabsPerUser:     session.DefaultTabLimitConfig().MaxPerUser,
			CleanupInterval:    5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Rate:         ratelimit.DefaultRate,
			Burst:        ratelimit.DefaultBurst,
			MaxInputSize: terminal.DefaultMaxInputSize,
		},
	}
}

// envOverrides are read from PORTERMINAL_* variables. Unset values leave
// the file settings alone.
type envOverrides struct {
	ConfigPath   string `envconfig:"CONFIG_PATH"`
	Host         string `envconfig:"HOST"`
	Port         int    `envconfig:"PORT"`
	WorkDir      string `envconfig:"CWD"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
	DefaultShell string `envconfig:"DEFAULT_SHELL"`
}

// Load reads the config file at path, applies environment overrides,
// resolves shells and validates the result. An empty path falls back to
// PORTERMINAL_CONFIG_PATH and then DefaultPath. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if path == "" {
		path = env.ConfigPath
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	cfg.Path = path
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv(env)
	cfg.ResolveShells()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(env envOverrides) {
	if env.Host != "" {
		c.Server.Host = env.Host
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.LogLevel != "" {
		c.Server.LogLevel = env.LogLevel
	}
	if env.WorkDir != "" {
		c.Terminal.WorkDir = env.WorkDir
	}
	if env.DefaultShell != "" {
		c.Terminal.DefaultShell = env.DefaultShell
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Shell returns the shell with the given id.
func (c *Config) Shell(id string) (session.Shell, bool) {
	for _, s := range c.Terminal.Shells {
		if s.ID == id {
			return s.Session(), true
		}
	}
	return session.Shell{}, false
}

// ShellOrDefault returns the shell with the given id, or the default shell
// when id is empty or unknown.
func (c *Config) ShellOrDefault(id string) (session.Shell, error) {
	if id != "" {
		if s, ok := c.Shell(id); ok {
			return s, nil
		}
	}
	if s, ok := c.Shell(c.Terminal.DefaultShell); ok {
		return s, nil
	}
	return session.Shell{}, ErrNoShell
}

func (c *Config) Dimensions() session.Dimensions {
	return session.ClampDimensions(c.Terminal.Cols, c.Terminal.Rows)
}

func (c *Config) SessionLimits() session.SessionLimitConfig {
	return session.SessionLimitConfig{
		MaxPerUser:      c.Limits.MaxSessionsPerUser,
		MaxTotal:        c.Limits.MaxTotalSessions,
		MaxDuration:     c.Limits.MaxSessionDuration,
		ReconnectWindow: c.Limits.ReconnectWindow,
	}
}

func (c *Config) TabLimits() session.TabLimitConfig {
	return session.TabLimitConfig{MaxPerUser: c.Limits.MaxTabsPerUser}
}

// TerminalService returns the per-connection settings.
func (c *Config) TerminalService() terminal.Config {
	cfg := terminal.DefaultConfig()
	cfg.RateLimit = ratelimit.Config{Rate: c.RateLimit.Rate, Burst: c.RateLimit.Burst}
	cfg.MaxInputSize = c.RateLimit.MaxInputSize
	return cfg
}

func (s Shell) Session() session.Shell {
	return session.Shell{ID: s.ID, Name: s.Name, Command: s.Command, Args: s.Args}
}

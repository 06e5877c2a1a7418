package config

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyehe/porterminal/internal/session"
)

// fakeShells makes lookPath resolve only the given names to /usr/bin/<name>.
func fakeShells(t *testing.T, platform string, names ...string) {
	t.Helper()
	origLook, origOS := lookPath, goos
	t.Cleanup(func() { lookPath, goos = origLook, origOS })

	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
		known["/usr/bin/"+n] = true
	}
	lookPath = func(name string) (string, error) {
		if known[name] {
			return "/usr/bin/" + filepath.Base(name), nil
		}
		return "", exec.ErrNotFound
	}
	goos = platform
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	fakeShells(t, "linux", "bash", "sh")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr())
	assert.Equal(t, session.DefaultDimensions(), cfg.Dimensions())
	assert.Equal(t, "bash", cfg.Terminal.DefaultShell)
	assert.Equal(t, 10, cfg.Limits.MaxSessionsPerUser)
	assert.Equal(t, 100, cfg.Limits.MaxTotalSessions)
	assert.Equal(t, 20, cfg.Limits.MaxTabsPerUser)
	assert.Equal(t, 100.0, cfg.RateLimit.Rate)
	assert.Equal(t, 500.0, cfg.RateLimit.Burst)
	assert.Equal(t, 4096, cfg.RateLimit.MaxInputSize)
}

func TestLoad_File(t *testing.T) {
	fakeShells(t, "linux", "bash", "zsh")

	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9000
  log_level: debug
terminal:
  default_shell: zsh
  cols: 100
  rows: 40
  cwd: /srv
limits:
  max_sessions_per_user: 3
  reconnect_window: 10m
  max_session_duration: 8h
buttons:
  - label: "^C"
    send: "\x03"
  - label: Tab
    send: "\t"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "zsh", cfg.Terminal.DefaultShell)
	assert.Equal(t, session.Dimensions{Cols: 100, Rows: 40}, cfg.Dimensions())
	assert.Equal(t, "/srv", cfg.Terminal.WorkDir)
	assert.Equal(t, []Button{{Label: "^C", Send: "\x03"}, {Label: "Tab", Send: "\t"}}, cfg.Buttons)

	limits := cfg.SessionLimits()
	assert.Equal(t, 3, limits.MaxPerUser)
	assert.Equal(t, 100, limits.MaxTotal)
	assert.Equal(t, 10*time.Minute, limits.ReconnectWindow)
	assert.Equal(t, 8*time.Hour, limits.MaxDuration)
}

func TestLoad_EnvOverrides(t *testing.T) {
	fakeShells(t, "linux", "bash", "sh")
	path := writeConfig(t, "server:\n  port: 9000\n")

	t.Setenv("PORTERMINAL_PORT", "9100")
	t.Setenv("PORTERMINAL_HOST", "0.0.0.0")
	t.Setenv("PORTERMINAL_LOG_LEVEL", "warn")
	t.Setenv("PORTERMINAL_CWD", "/tmp")
	t.Setenv("PORTERMINAL_DEFAULT_SHELL", "sh")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9100", cfg.Addr())
	assert.Equal(t, "warn", cfg.Server.LogLevel)
	assert.Equal(t, "/tmp", cfg.Terminal.WorkDir)
	assert.Equal(t, "sh", cfg.Terminal.DefaultShell)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	fakeShells(t, "linux", "bash")
	path := writeConfig(t, "server:\n  port: 9200\n")
	t.Setenv("PORTERMINAL_CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	fakeShells(t, "linux", "bash")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"port too high", "server:\n  port: 70000\n", "Config.Server.Port must be at most 65535"},
		{"cols too small", "terminal:\n  cols: 20\n", "Config.Terminal.Cols must be at least 40"},
		{"rows too large", "terminal:\n  rows: 500\n", "Config.Terminal.Rows must be at most 200"},
		{"bad log level", "server:\n  log_level: loud\n", "Config.Server.LogLevel must be one of"},
		{"zero rate", "rate_limit:\n  rate: 0\n", "Config.RateLimit.Rate must be greater than 0"},
		{"button without label", "buttons:\n  - send: x\n", "Label is required"},
		{"negative window", "limits:\n  reconnect_window: -1m\n", "must not be negative"},
		{"bad yaml", "server: [\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolveShells_FiltersMissing(t *testing.T) {
	fakeShells(t, "linux", "bash", "fish")

	cfg := Default()
	cfg.Terminal.Shells = []Shell{
		{Name: "Fish", ID: "fish", Command: "fish"},
		{Name: "Nu", ID: "nu", Command: "nu"},
	}
	cfg.ResolveShells()

	require.Len(t, cfg.Terminal.Shells, 1)
	assert.Equal(t, "fish", cfg.Terminal.Shells[0].ID)
	// bash is installed but not configured, so the first shell wins.
	assert.Equal(t, "fish", cfg.Terminal.DefaultShell)
}

func TestResolveShells_DetectsWhenNoneConfigured(t *testing.T) {
	fakeShells(t, "linux", "zsh", "sh")

	cfg := Default()
	cfg.ResolveShells()

	ids := make([]string, 0, len(cfg.Terminal.Shells))
	for _, s := range cfg.Terminal.Shells {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"zsh", "sh"}, ids)
	assert.Equal(t, "/usr/bin/zsh", cfg.Terminal.Shells[0].Command)
	assert.Equal(t, []string{"--login"}, cfg.Terminal.Shells[0].Args)
	assert.Equal(t, "zsh", cfg.Terminal.DefaultShell)
}

func TestResolveShells_PlatformDefaults(t *testing.T) {
	tests := []struct {
		goos      string
		installed []string
		want      string
	}{
		{"linux", []string{"bash", "zsh", "sh"}, "bash"},
		{"linux", []string{"zsh", "sh"}, "zsh"},
		{"linux", []string{"sh"}, "sh"},
		{"darwin", []string{"bash", "zsh"}, "zsh"},
		{"darwin", []string{"bash"}, "bash"},
		{"darwin", []string{"fish"}, "fish"},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.want, func(t *testing.T) {
			fakeShells(t, tt.goos, tt.installed...)
			cfg := Default()
			cfg.ResolveShells()
			assert.Equal(t, tt.want, cfg.Terminal.DefaultShell)
		})
	}
}

func TestResolveShells_KeepsValidDefault(t *testing.T) {
	fakeShells(t, "linux", "bash", "sh")

	cfg := Default()
	cfg.Terminal.DefaultShell = "sh"
	cfg.ResolveShells()
	assert.Equal(t, "sh", cfg.Terminal.DefaultShell)
}

func TestShellOrDefault(t *testing.T) {
	fakeShells(t, "linux", "bash", "sh")
	cfg := Default()
	cfg.ResolveShells()

	s, err := cfg.ShellOrDefault("sh")
	require.NoError(t, err)
	assert.Equal(t, session.Shell{ID: "sh", Name: "Sh", Command: "/usr/bin/sh"}, s)

	s, err = cfg.ShellOrDefault("powershell")
	require.NoError(t, err)
	assert.Equal(t, "bash", s.ID)

	empty := Default()
	_, err = empty.ShellOrDefault("")
	assert.True(t, errors.Is(err, ErrNoShell))
}

func TestValidate_DuplicateShellIDs(t *testing.T) {
	cfg := Default()
	cfg.Terminal.Shells = []Shell{
		{Name: "A", ID: "x", Command: "/bin/a"},
		{Name: "B", ID: "x", Command: "/bin/b"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestTerminalService(t *testing.T) {
	cfg := Default()
	cfg.RateLimit = RateLimitConfig{Rate: 50, Burst: 200, MaxInputSize: 1024}

	tc := cfg.TerminalService()
	assert.Equal(t, 50.0, tc.RateLimit.Rate)
	assert.Equal(t, 200.0, tc.RateLimit.Burst)
	assert.Equal(t, 1024, tc.MaxInputSize)
	assert.Equal(t, 30*time.Second, tc.HeartbeatInterval)
}

func TestStore_ReloadSwapsShellsAndButtons(t *testing.T) {
	fakeShells(t, "linux", "bash", "sh")
	path := writeConfig(t, "server:\n  port: 9000\nbuttons:\n  - label: A\n    send: a\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(cfg, nil)

	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
terminal:
  default_shell: sh
buttons:
  - label: B
    send: b
`), 0o644))
	require.NoError(t, store.Reload())

	got := store.Get()
	assert.Equal(t, []Button{{Label: "B", Send: "b"}}, got.Buttons)
	assert.Equal(t, "sh", got.Terminal.DefaultShell)
	assert.Equal(t, 9000, got.Server.Port, "server settings need a restart")
	assert.Equal(t, []Button{{Label: "A", Send: "a"}}, cfg.Buttons, "old snapshot must not change")
}

func TestStore_ReloadKeepsCurrentOnError(t *testing.T) {
	fakeShells(t, "linux", "bash")
	path := writeConfig(t, "buttons:\n  - label: A\n    send: a\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(cfg, nil)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o644))
	assert.Error(t, store.Reload())
	assert.Same(t, cfg, store.Get())
}

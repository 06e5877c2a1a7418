package session

import (
	"maps"
	"strings"
)

// EnvRules selects which variables a shell inherits. Only allowed names
// pass; blocked names are dropped even if allowed. Forced values are
// applied last.
type EnvRules struct {
	Allowed         map[string]struct{}
	Blocked         map[string]struct{}
	BlockedSuffixes []string
	Forced          map[string]string
}

func setOf(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// DefaultEnvRules returns the rules used for every spawned shell.
func DefaultEnvRules() EnvRules {
	return EnvRules{
		Allowed: setOf(
			// System paths
			"PATH", "PATHEXT", "SYSTEMROOT", "WINDIR", "TEMP", "TMP", "COMSPEC",
			// User directories
			"HOME", "USERPROFILE", "HOMEDRIVE", "HOMEPATH", "LOCALAPPDATA", "APPDATA",
			"PROGRAMFILES", "PROGRAMFILES(X86)", "COMMONPROGRAMFILES",
			// System info
			"COMPUTERNAME", "USERNAME", "USERDOMAIN", "OS",
			"PROCESSOR_ARCHITECTURE", "NUMBER_OF_PROCESSORS",
			// Terminal and locale
			"TERM", "LANG", "LC_ALL", "LC_CTYPE",
			// Unix
			"USER", "LOGNAME", "SHELL",
			"XDG_CONFIG_HOME", "XDG_DATA_HOME", "XDG_CACHE_HOME", "XDG_RUNTIME_DIR",
		),
		Blocked: setOf(
			"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN",
			"AZURE_CLIENT_SECRET", "AZURE_CLIENT_ID",
			"GH_TOKEN", "GITHUB_TOKEN", "GITLAB_TOKEN", "NPM_TOKEN",
			"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY",
			"STRIPE_SECRET_KEY", "DATABASE_URL", "DB_PASSWORD",
			"SECRET_KEY", "API_KEY", "API_SECRET", "PRIVATE_KEY",
		),
		BlockedSuffixes: []string{"_KEY", "_SECRET", "_TOKEN", "_PASSWORD"},
		Forced: map[string]string{
			"TERM":              "xterm-256color",
			"TERM_SESSION_TYPE": "remote-web",
		},
	}
}

// EnvSanitizer filters a process environment through EnvRules.
type EnvSanitizer struct {
	rules EnvRules
}

func NewEnvSanitizer(rules EnvRules) *EnvSanitizer {
	return &EnvSanitizer{rules: rules}
}

// Sanitize returns a new map holding only permitted variables from src,
// plus the forced values.
func (e *EnvSanitizer) Sanitize(src map[string]string) map[string]string {
	out := make(map[string]string, len(e.rules.Allowed)+len(e.rules.Forced))
	for k, v := range src {
		if e.IsAllowed(k) && !e.IsBlocked(k) {
			out[k] = v
		}
	}
	maps.Copy(out, e.rules.Forced)
	return out
}

func (e *EnvSanitizer) IsAllowed(name string) bool {
	_, ok := e.rules.Allowed[name]
	return ok
}

func (e *EnvSanitizer) IsBlocked(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := e.rules.Blocked[upper]; ok {
		return true
	}
	for _, suffix := range e.rules.BlockedSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// EnvironMap converts os.Environ style KEY=VALUE pairs into a map.
func EnvironMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// EnvironList converts a map back into KEY=VALUE pairs.
func EnvironList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

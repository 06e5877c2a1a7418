package session

import "testing"

func TestEnvSanitizer_Sanitize(t *testing.T) {
	s := NewEnvSanitizer(DefaultEnvRules())
	src := map[string]string{
		"PATH":                  "/usr/bin",
		"HOME":                  "/home/me",
		"LANG":                  "en_US.UTF-8",
		"TERM":                  "dumb",
		"AWS_SECRET_ACCESS_KEY": "secret",
		"GITHUB_TOKEN":          "ghp_x",
		"MY_SERVICE_PASSWORD":   "hunter2",
		"RANDOM_VAR":            "x",
	}

	out := s.Sanitize(src)

	for k := range out {
		if !s.IsAllowed(k) && k != "TERM_SESSION_TYPE" {
			t.Errorf("unexpected variable %s in output", k)
		}
	}
	for _, k := range []string{"AWS_SECRET_ACCESS_KEY", "GITHUB_TOKEN", "MY_SERVICE_PASSWORD", "RANDOM_VAR"} {
		if _, ok := out[k]; ok {
			t.Errorf("expected %s removed", k)
		}
	}
	if out["PATH"] != "/usr/bin" || out["HOME"] != "/home/me" || out["LANG"] != "en_US.UTF-8" {
		t.Errorf("allowed variables not preserved: %v", out)
	}
	if out["TERM"] != "xterm-256color" {
		t.Errorf("expected forced TERM, got %q", out["TERM"])
	}
	if out["TERM_SESSION_TYPE"] != "remote-web" {
		t.Errorf("expected TERM_SESSION_TYPE, got %q", out["TERM_SESSION_TYPE"])
	}
}

func TestEnvSanitizer_EmptySourceGetsForcedVars(t *testing.T) {
	out := NewEnvSanitizer(DefaultEnvRules()).Sanitize(nil)
	if len(out) != 2 {
		t.Errorf("expected only forced variables, got %v", out)
	}
	if out["TERM"] != "xterm-256color" || out["TERM_SESSION_TYPE"] != "remote-web" {
		t.Errorf("forced variables missing: %v", out)
	}
}

func TestEnvSanitizer_BlockWinsOverAllow(t *testing.T) {
	s := NewEnvSanitizer(EnvRules{
		Allowed: setOf("SAFE", "BLOCKED_VAR"),
		Blocked: setOf("BLOCKED_VAR"),
		Forced:  map[string]string{"FORCED": "value"},
	})

	out := s.Sanitize(map[string]string{"SAFE": "ok", "BLOCKED_VAR": "blocked"})

	if _, ok := out["BLOCKED_VAR"]; ok {
		t.Error("expected blocked variable removed")
	}
	if out["SAFE"] != "ok" || out["FORCED"] != "value" {
		t.Errorf("unexpected output %v", out)
	}
}

func TestEnvSanitizer_IsBlocked(t *testing.T) {
	s := NewEnvSanitizer(DefaultEnvRules())
	blocked := []string{"AWS_SECRET_ACCESS_KEY", "MY_API_KEY", "DEPLOY_TOKEN", "db_password", "CLIENT_SECRET"}
	for _, name := range blocked {
		if !s.IsBlocked(name) {
			t.Errorf("expected %s blocked", name)
		}
	}
	for _, name := range []string{"PATH", "HOME", "TERM"} {
		if s.IsBlocked(name) {
			t.Errorf("expected %s not blocked", name)
		}
	}
}

func TestEnvSanitizer_IsAllowed(t *testing.T) {
	s := NewEnvSanitizer(DefaultEnvRules())
	if !s.IsAllowed("PATH") || !s.IsAllowed("PROGRAMFILES(X86)") {
		t.Error("expected PATH and PROGRAMFILES(X86) allowed")
	}
	if s.IsAllowed("GITHUB_TOKEN") {
		t.Error("expected GITHUB_TOKEN not allowed")
	}
}

func TestEnvironMap(t *testing.T) {
	m := EnvironMap([]string{"A=1", "B=x=y", "broken", "=skip", "C="})
	if m["A"] != "1" || m["B"] != "x=y" {
		t.Errorf("unexpected map %v", m)
	}
	if v, ok := m["C"]; !ok || v != "" {
		t.Errorf("expected empty C, got %q", v)
	}
	if _, ok := m["broken"]; ok {
		t.Error("expected entry without '=' skipped")
	}
	if len(m) != 3 {
		t.Errorf("expected 3 entries, got %d", len(m))
	}

	list := EnvironList(map[string]string{"K": "V"})
	if len(list) != 1 || list[0] != "K=V" {
		t.Errorf("unexpected list %v", list)
	}
}

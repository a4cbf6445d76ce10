package command

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigShow(t *testing.T) {
	env := newTestEnv(t)

	t.Run("table", func(t *testing.T) {
		r := env.run("", "--set", "security.seal_secret=0123456789abcdef", "config", "show")
		if r.err != nil {
			t.Fatalf("config show: %v", r.err)
		}
		if !containsAll(r.stdout, "KEY", "storage.dir", "session.refresh_threshold", "5m0s", env.server.URL) {
			t.Errorf("config show =\n%s", r.stdout)
		}
		if strings.Contains(r.stdout, "0123456789abcdef") {
			t.Error("config show leaked the seal secret")
		}
	})

	t.Run("json", func(t *testing.T) {
		r := env.run("", "-o", "json", "config", "show")
		if r.err != nil {
			t.Fatalf("config show: %v", r.err)
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(r.stdout), &out); err != nil {
			t.Fatalf("decode: %v\n%s", err, r.stdout)
		}
		session, ok := out["session"].(map[string]any)
		if !ok {
			t.Fatalf("session section missing: %v", out)
		}
		if session["retry_delay"] != "1ms" {
			t.Errorf("session.retry_delay = %v, want 1ms from the config file", session["retry_delay"])
		}
	})
}

func TestConfigValidate(t *testing.T) {
	env := newTestEnv(t)

	r := env.run("", "config", "validate")
	if r.err != nil {
		t.Fatalf("config validate: %v", r.err)
	}
	if !strings.Contains(r.stdout, env.configPath) {
		t.Errorf("stdout = %q, want config path", r.stdout)
	}

	r = env.run("", "--set", "session.max_retry_attempts=0", "config", "validate")
	if r.err == nil || !strings.Contains(r.err.Error(), "max_retry_attempts") {
		t.Errorf("config validate error = %v, want max_retry_attempts", r.err)
	}
}

func TestConfigPath(t *testing.T) {
	env := newTestEnv(t)

	r := env.run("", "config", "path")
	if !strings.HasSuffix(strings.TrimSpace(r.stdout), "client.yaml") {
		t.Errorf("config path = %q", r.stdout)
	}
}

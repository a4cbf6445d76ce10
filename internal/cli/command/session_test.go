package command

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func decodeView(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("decode output %q: %v", s, err)
	}
	return out
}

func TestImportAndStatus(t *testing.T) {
	env := newTestEnv(t)

	r := env.run(payloadJSON("access-token-0001", "refresh-token-0001", 3600), "-o", "json", "import")
	if r.err != nil {
		t.Fatalf("import: %v\nstderr: %s", r.err, r.stderr)
	}
	imported := decodeView(t, r.stdout)
	if imported["user_id"] != "u-1" || imported["valid"] != true {
		t.Errorf("import output = %v", imported)
	}
	if !strings.HasPrefix(imported["session_id"].(string), "tmcs-") {
		t.Errorf("session_id = %v, want generated tmcs- ID", imported["session_id"])
	}

	// A second process sees the same session
	r = env.run("", "-o", "json", "status")
	if r.err != nil {
		t.Fatalf("status: %v", r.err)
	}
	status := decodeView(t, r.stdout)
	if status["session_id"] != imported["session_id"] {
		t.Errorf("status session_id = %v, want %v", status["session_id"], imported["session_id"])
	}
	if status["access_token"] != "acce****0001" {
		t.Errorf("access_token = %v, want masked", status["access_token"])
	}

	r = env.run("", "-o", "json", "status", "--show-tokens")
	if decodeView(t, r.stdout)["refresh_token"] != "refresh-token-0001" {
		t.Errorf("--show-tokens output = %s", r.stdout)
	}

	r = env.run("", "status")
	if !containsAll(r.stdout, "FIELD", "session_id", "ada@example.com", "lifetime") {
		t.Errorf("table status = %s", r.stdout)
	}
}

func TestImport_FromFile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "payload.json")
	if err := os.WriteFile(path, []byte(payloadJSON("access-token-0002", "refresh-token-0002", 600)), 0600); err != nil {
		t.Fatal(err)
	}

	if r := env.run("", "import", path); r.err != nil {
		t.Fatalf("import %s: %v", path, r.err)
	}
	if r := env.run("", "token"); strings.TrimSpace(r.stdout) != "access-token-0002" {
		t.Errorf("token = %q", r.stdout)
	}
}

func TestImport_Invalid(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		stdin string
	}{
		{"not json", "access=1"},
		{"missing refresh token", `{"access_token":"a","expires_in":60,"user":{"id":"u"}}`},
		{"missing user", `{"access_token":"a","refresh_token":"r","expires_in":60}`},
		{"already expired", `{"access_token":"a","refresh_token":"r","expires_at":1000,"user":{"id":"u"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := env.run(tt.stdin, "import"); r.err == nil {
				t.Error("import should fail")
			}
		})
	}

	if r := env.run("", "status"); r.exitCode() != ExitNoSession {
		t.Errorf("status exit code = %d, want %d", r.exitCode(), ExitNoSession)
	}
}

func TestStatus_NoSession(t *testing.T) {
	env := newTestEnv(t)

	for _, cmd := range []string{"status", "token", "refresh", "validate"} {
		t.Run(cmd, func(t *testing.T) {
			r := env.run("", cmd)
			if r.exitCode() != ExitNoSession {
				t.Errorf("%s exit code = %d, want %d (err %v)", cmd, r.exitCode(), ExitNoSession, r.err)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.mustImport("access-token-0001", "refresh-token-0001")
	env.server.setNext(&domain.SessionPayload{
		AccessToken: "access-token-0002",
		ExpiresIn:   3600,
	})

	r := env.run("", "-o", "json", "refresh")
	if r.err != nil {
		t.Fatalf("refresh: %v\nstderr: %s", r.err, r.stderr)
	}
	if !strings.Contains(r.stderr, "session refreshed") {
		t.Errorf("stderr = %q, want success line", r.stderr)
	}

	calls, token := env.server.refreshes()
	if calls != 1 || token != "refresh-token-0001" {
		t.Errorf("refresh calls = %d with %q", calls, token)
	}

	// The refresh token and user carry over when not rotated
	r = env.run("", "-o", "json", "status", "--show-tokens")
	view := decodeView(t, r.stdout)
	if view["access_token"] != "access-token-0002" || view["refresh_token"] != "refresh-token-0001" {
		t.Errorf("status after refresh = %v", view)
	}
	if view["email"] != "ada@example.com" {
		t.Errorf("user not carried over: %v", view)
	}
}

func TestRefresh_Rejected(t *testing.T) {
	env := newTestEnv(t)
	env.mustImport("access-token-0001", "refresh-token-0001")
	env.server.setRefreshStatus(http.StatusUnauthorized)

	r := env.run("", "refresh")
	if r.exitCode() != ExitNoSession {
		t.Fatalf("refresh exit code = %d, want %d (err %v)", r.exitCode(), ExitNoSession, r.err)
	}
	if calls, _ := env.server.refreshes(); calls != 1 {
		t.Errorf("refresh calls = %d, want 1 (no retry on rejection)", calls)
	}

	if r := env.run("", "status"); r.exitCode() != ExitNoSession {
		t.Errorf("session should be cleared, status exit code = %d", r.exitCode())
	}
}

func TestRefresh_TransientRetries(t *testing.T) {
	env := newTestEnv(t)
	env.mustImport("access-token-0001", "refresh-token-0001")
	env.server.setRefreshStatus(http.StatusServiceUnavailable)

	r := env.run("", "refresh")
	if r.exitCode() != ExitNoSession {
		t.Fatalf("refresh exit code = %d, want %d (err %v)", r.exitCode(), ExitNoSession, r.err)
	}
	if calls, _ := env.server.refreshes(); calls != 3 {
		t.Errorf("refresh calls = %d, want 3", calls)
	}
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t)
	env.mustImport("access-token-0001", "refresh-token-0001")

	r := env.run("", "validate")
	if r.err != nil {
		t.Fatalf("validate: %v", r.err)
	}
	if !strings.Contains(r.stdout, "session is valid") {
		t.Errorf("stdout = %q", r.stdout)
	}

	env.server.setValidateStatus(http.StatusUnauthorized)
	r = env.run("", "validate")
	if r.exitCode() != ExitInvalidSession {
		t.Errorf("validate exit code = %d, want %d (err %v)", r.exitCode(), ExitInvalidSession, r.err)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.mustImport("access-token-0001", "refresh-token-0001")

	r := env.run("", "logout")
	if r.err != nil {
		t.Fatalf("logout: %v", r.err)
	}
	if !strings.Contains(r.stdout, "Session cleared.") {
		t.Errorf("stdout = %q", r.stdout)
	}

	if r := env.run("", "status"); r.exitCode() != ExitNoSession {
		t.Errorf("status after logout exit code = %d", r.exitCode())
	}

	// Logging out twice is fine
	if r := env.run("", "logout"); r.err != nil {
		t.Errorf("second logout: %v", r.err)
	}
}

func TestSealedStore(t *testing.T) {
	env := newTestEnv(t)
	secret := "--set=security.seal_secret=0123456789abcdef"

	if r := env.run(payloadJSON("access-token-0001", "refresh-token-0001", 3600), secret, "import"); r.err != nil {
		t.Fatalf("import: %v", r.err)
	}

	raw, err := os.ReadFile(filepath.Join(env.dir, "store", "tokmesh.session.json"))
	if err != nil {
		t.Fatalf("read store file: %v", err)
	}
	if strings.Contains(string(raw), "access-token-0001") {
		t.Error("sealed store contains the plaintext token")
	}

	if r := env.run("", secret, "token"); strings.TrimSpace(r.stdout) != "access-token-0001" {
		t.Errorf("token with secret = %q (err %v)", r.stdout, r.err)
	}
	if r := env.run("", "token"); r.exitCode() != ExitNoSession {
		t.Errorf("token without secret exit code = %d, want %d", r.exitCode(), ExitNoSession)
	}
}

func TestRemoteTLS_BadCAFile(t *testing.T) {
	env := newTestEnv(t)
	missing := filepath.Join(env.dir, "missing-ca.pem")

	r := env.run(payloadJSON("at-1", "rt-1", 3600), "--set", "remote.tls.ca_file="+missing, "import")
	if r.err == nil {
		t.Fatal("import with an unreadable CA file should fail")
	}
	if !strings.Contains(r.err.Error(), "remote tls") {
		t.Errorf("error = %v, want remote tls context", r.err)
	}
}
